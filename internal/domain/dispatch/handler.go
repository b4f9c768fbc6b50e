package dispatch

import (
	"log/slog"
	"net/http"

	"groupnotify/internal/common"

	"github.com/gin-gonic/gin"
)

// SessionHeader carries the host CMS session of the acting user.
const SessionHeader = "X-Session-ID"

// Handler handles HTTP requests for the dispatch domain.
type Handler struct {
	service *Service
}

// NewHandler creates a new dispatch handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// EntityCreated handles POST /api/v1/events/entity
// Queues a background dispatch and returns 202 Accepted, or 200 when the
// entity is not eligible.
func (h *Handler) EntityCreated(c *gin.Context) {
	var req EntityEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.EntityCreated(c.Request.Context(), &req, requestContext(c))
	if err != nil {
		slog.Error("entity event failed", "error", err, "event", req.Event, "guid", req.GUID)
		common.HandleError(c, err)
		return
	}

	respond(c, resp)
}

// AnnotationCreated handles POST /api/v1/events/annotation
func (h *Handler) AnnotationCreated(c *gin.Context) {
	var req AnnotationEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.AnnotationCreated(c.Request.Context(), &req, requestContext(c))
	if err != nil {
		slog.Error("annotation event failed", "error", err, "event", req.Event, "annotation_id", req.ID)
		common.HandleError(c, err)
		return
	}

	respond(c, resp)
}

// GetDelivery handles GET /api/v1/deliveries/:id
func (h *Handler) GetDelivery(c *gin.Context) {
	entry, err := h.service.GetDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, entry)
}

// ListDeliveries handles GET /api/v1/deliveries
func (h *Handler) ListDeliveries(c *gin.Context) {
	var filter ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid query parameters: "+err.Error())
		return
	}

	resp, err := h.service.ListDeliveries(c.Request.Context(), filter)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// RegisterRoutes registers dispatch routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/events/entity", h.EntityCreated)
	rg.POST("/events/annotation", h.AnnotationCreated)
	rg.GET("/deliveries", h.ListDeliveries)
	rg.GET("/deliveries/:id", h.GetDelivery)
}

func respond(c *gin.Context, resp *TriggerResponse) {
	status := http.StatusAccepted
	if resp.Status == TriggerSkipped {
		status = http.StatusOK
	}
	common.Success(c, status, resp)
}

// requestContext captures the parts of the inbound request a worker needs.
func requestContext(c *gin.Context) RequestContext {
	rc := RequestContext{
		Host:      c.Request.Host,
		SessionID: c.GetHeader(SessionHeader),
	}
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		rc.HTTPS = "on"
	}
	return rc
}
