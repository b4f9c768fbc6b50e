package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"groupnotify/internal/common"
)

// Service accepts creation events from the host CMS and hands eligible ones
// to a background worker: check eligibility → build worker request → launch.
type Service struct {
	entities   EntityStore
	registry   *Registry
	trigger    *Trigger
	deliveries DeliveryStore
}

// NewService creates a new dispatch intake service.
func NewService(entities EntityStore, registry *Registry, trigger *Trigger, deliveries DeliveryStore) *Service {
	return &Service{
		entities:   entities,
		registry:   registry,
		trigger:    trigger,
		deliveries: deliveries,
	}
}

// EntityCreated schedules notifications for a new entity.
func (s *Service) EntityCreated(ctx context.Context, req *EntityEventRequest, rc RequestContext) (*TriggerResponse, error) {
	e, err := s.entities.GetEntity(ctx, GUID(req.GUID))
	if err != nil {
		return nil, fmt.Errorf("loading entity: %w", err)
	}
	if reason := s.screen(e); reason != "" {
		return skipped(req.Event, reason, "guid", req.GUID), nil
	}

	s.trigger.Start(context.WithoutCancel(ctx), rc, EntityOverrides(req.Event, e.GUID, GUID(req.ActorGUID)))

	slog.Info("entity dispatch queued", "event", req.Event, "guid", e.GUID, "type", e.Type, "subtype", e.Subtype)
	return &TriggerResponse{Status: TriggerQueued}, nil
}

// AnnotationCreated schedules notifications for a new annotation.
func (s *Service) AnnotationCreated(ctx context.Context, req *AnnotationEventRequest, rc RequestContext) (*TriggerResponse, error) {
	a, err := s.entities.GetAnnotation(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("loading annotation: %w", err)
	}
	if a == nil {
		return skipped(req.Event, AbortNotFound, "annotation_id", req.ID), nil
	}
	if !s.registry.IsRegisteredAnnotation(a) {
		return skipped(req.Event, AbortNotRegistered, "annotation_id", req.ID), nil
	}

	e, err := s.entities.GetEntity(ctx, a.EntityGUID)
	if err != nil {
		return nil, fmt.Errorf("loading annotated entity: %w", err)
	}
	if reason := s.screen(e); reason != "" {
		return skipped(req.Event, reason, "annotation_id", req.ID), nil
	}

	s.trigger.Start(context.WithoutCancel(ctx), rc, AnnotationOverrides(req.Event, a.ID))

	slog.Info("annotation dispatch queued", "event", req.Event, "annotation_id", a.ID, "name", a.Name, "guid", e.GUID)
	return &TriggerResponse{Status: TriggerQueued}, nil
}

// screen applies the same eligibility rules as the dispatcher so that
// ineligible events never reach a worker.
func (s *Service) screen(e *Entity) AbortReason {
	switch {
	case e == nil:
		return AbortNotFound
	case e.AccessID == AccessPrivate:
		return AbortPrivate
	case !s.registry.IsRegisteredEntity(e):
		return AbortNotRegistered
	}
	return ""
}

func skipped(event string, reason AbortReason, idKey string, id int64) *TriggerResponse {
	slog.Info("event skipped", "event", event, idKey, id, "reason", reason)
	return &TriggerResponse{Status: TriggerSkipped, Reason: reason}
}

// GetDelivery retrieves a delivery log by ID.
func (s *Service) GetDelivery(ctx context.Context, id string) (*DeliveryLog, error) {
	entry, err := s.deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching delivery: %w", err)
	}
	if entry == nil {
		return nil, common.NewNotFoundError("delivery", id)
	}
	return entry, nil
}

// ListDeliveries retrieves delivery logs with pagination and filtering.
func (s *Service) ListDeliveries(ctx context.Context, filter ListFilter) (*ListResponse, error) {
	filter.Normalize()

	logs, total, err := s.deliveries.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}

	return &ListResponse{
		Deliveries: logs,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}, nil
}
