package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"groupnotify/internal/domain/dispatch"
)

var _ dispatch.Hooks = (*WebhookHooks)(nil)

// WebhookHooks forwards extension hook calls to a remote endpoint. The
// endpoint answers {"result": "..."} to replace the value, {"result": false}
// to suppress delivery, or {"result": null} (or an empty body) to keep the
// default. Any transport or decoding failure keeps the default.
type WebhookHooks struct {
	url        string
	httpClient *http.Client
}

// NewWebhookHooks creates hooks that POST to url.
func NewWebhookHooks(url string, timeout time.Duration) *WebhookHooks {
	return &WebhookHooks{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Request is the JSON body posted for each hook call.
type Request struct {
	Hook         string `json:"hook"`
	Type         string `json:"type"`
	Method       string `json:"method"`
	Recipient    int64  `json:"recipient"`
	EntityGUID   int64  `json:"entity_guid,omitempty"`
	AnnotationID int64  `json:"annotation_id,omitempty"`
	Default      string `json:"default"`
}

// Message calls the remote message hook.
func (h *WebhookHooks) Message(ctx context.Context, hc dispatch.HookContext, def string) dispatch.Override {
	return h.call(ctx, hc, def)
}

// Subject calls the remote subject hook.
func (h *WebhookHooks) Subject(ctx context.Context, hc dispatch.HookContext, def string) dispatch.Override {
	return h.call(ctx, hc, def)
}

func (h *WebhookHooks) call(ctx context.Context, hc dispatch.HookContext, def string) dispatch.Override {
	override, err := h.post(ctx, newRequest(hc, def))
	if err != nil {
		slog.Warn("extension hook failed, keeping default",
			"hook", hc.Name,
			"type", hc.Type,
			"method", hc.Method,
			"error", err,
		)
		return dispatch.UseDefault()
	}
	return override
}

func newRequest(hc dispatch.HookContext, def string) Request {
	req := Request{
		Hook:    hc.Name,
		Type:    hc.Type,
		Method:  hc.Method,
		Default: def,
	}
	if hc.Recipient != nil {
		req.Recipient = int64(hc.Recipient.GUID)
	}
	if hc.Entity != nil {
		req.EntityGUID = int64(hc.Entity.GUID)
	}
	if hc.Annotation != nil {
		req.AnnotationID = hc.Annotation.ID
	}
	return req
}

func (h *WebhookHooks) post(ctx context.Context, body Request) (dispatch.Override, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return dispatch.UseDefault(), fmt.Errorf("marshaling hook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return dispatch.UseDefault(), fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return dispatch.UseDefault(), fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max
	if err != nil {
		return dispatch.UseDefault(), fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return dispatch.UseDefault(), fmt.Errorf("hook endpoint returned status %d", resp.StatusCode)
	}

	return ParseResult(respBody)
}

// ParseResult maps a hook response body to an Override.
func ParseResult(body []byte) (dispatch.Override, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return dispatch.UseDefault(), nil
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return dispatch.UseDefault(), fmt.Errorf("parsing hook response: %w", err)
	}

	raw := bytes.TrimSpace(resp.Result)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("true")):
		return dispatch.UseDefault(), nil
	case bytes.Equal(raw, []byte("false")):
		return dispatch.Suppress(), nil
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return dispatch.UseDefault(), fmt.Errorf("hook result must be a string, false or null: %w", err)
	}
	return dispatch.Replace(value), nil
}
