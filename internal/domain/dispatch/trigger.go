package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// Worker request keys.
const (
	KeySecret       = "secret"
	KeyHost         = "host"
	KeyMemoryLimit  = "memory_limit"
	KeySessionID    = "session_id"
	KeyHTTPS        = "https"
	KeyEvent        = "event"
	KeyGUID         = "guid"
	KeyAnnotationID = "annotation_id"
	KeyActorGUID    = "actor_guid"
)

// Launcher starts a background worker for an encoded worker request.
// Implementations live in infra/queue and infra/process.
type Launcher interface {
	Launch(ctx context.Context, query string) error
}

// RequestContext describes the inbound request that caused a dispatch.
type RequestContext struct {
	Host      string
	HTTPS     string
	SessionID string
}

// Trigger hands dispatch work to a background worker so the inbound request
// never waits on fan-out.
type Trigger struct {
	secret      *Secret
	launcher    Launcher
	memoryLimit string
}

// NewTrigger creates a trigger. memoryLimit is forwarded to the worker
// verbatim, e.g. "256M".
func NewTrigger(secret *Secret, launcher Launcher, memoryLimit string) *Trigger {
	return &Trigger{
		secret:      secret,
		launcher:    launcher,
		memoryLimit: memoryLimit,
	}
}

// Request builds the worker request. Values in overrides replace defaults.
func (t *Trigger) Request(rc RequestContext, overrides url.Values) url.Values {
	q := url.Values{}
	q.Set(KeySecret, t.secret.Generate())
	q.Set(KeyHost, rc.Host)
	q.Set(KeyMemoryLimit, t.memoryLimit)
	q.Set(KeySessionID, rc.SessionID)
	if rc.HTTPS != "" {
		q.Set(KeyHTTPS, rc.HTTPS)
	}

	for k, vs := range overrides {
		q[k] = append([]string(nil), vs...)
	}
	return q
}

// Start launches a worker for the request. Launch failures are logged and
// otherwise ignored.
func (t *Trigger) Start(ctx context.Context, rc RequestContext, overrides url.Values) {
	q := t.Request(rc, overrides)
	if err := t.launcher.Launch(ctx, q.Encode()); err != nil {
		slog.Error("failed to start background worker",
			"event", q.Get(KeyEvent),
			"guid", q.Get(KeyGUID),
			"annotation_id", q.Get(KeyAnnotationID),
			"error", err,
		)
	}
}

// EntityOverrides returns the worker request values for an entity event.
func EntityOverrides(event string, guid, actor GUID) url.Values {
	v := url.Values{}
	v.Set(KeyEvent, event)
	v.Set(KeyGUID, guid.String())
	if actor != 0 {
		v.Set(KeyActorGUID, actor.String())
	}
	return v
}

// AnnotationOverrides returns the worker request values for an annotation event.
func AnnotationOverrides(event string, id int64) url.Values {
	v := url.Values{}
	v.Set(KeyEvent, event)
	v.Set(KeyAnnotationID, strconv.FormatInt(id, 10))
	return v
}

// WorkerRequest is a decoded worker request.
type WorkerRequest struct {
	Secret       string
	Host         string
	MemoryLimit  string
	SessionID    string
	HTTPS        bool
	Event        string
	EntityGUID   GUID
	AnnotationID int64
	ActorGUID    GUID
}

// ParseWorkerRequest decodes an encoded worker request.
func ParseWorkerRequest(raw string) (*WorkerRequest, error) {
	q, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing worker request: %w", err)
	}

	req := &WorkerRequest{
		Secret:      q.Get(KeySecret),
		Host:        q.Get(KeyHost),
		MemoryLimit: q.Get(KeyMemoryLimit),
		SessionID:   q.Get(KeySessionID),
		Event:       q.Get(KeyEvent),
	}

	switch q.Get(KeyHTTPS) {
	case "", "0", "off", "false":
	default:
		req.HTTPS = true
	}

	if req.EntityGUID, err = ParseGUID(q.Get(KeyGUID)); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", KeyGUID, err)
	}
	if req.ActorGUID, err = ParseGUID(q.Get(KeyActorGUID)); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", KeyActorGUID, err)
	}
	if v := q.Get(KeyAnnotationID); v != "" {
		if req.AnnotationID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", KeyAnnotationID, err)
		}
	}

	return req, nil
}

// SiteURL returns the site base URL the request was made against.
func (r *WorkerRequest) SiteURL() string {
	if r.Host == "" {
		return ""
	}
	scheme := "http"
	if r.HTTPS {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
