package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AbortReason explains why a dispatch was dropped before fan-out.
type AbortReason string

const (
	AbortNotFound      AbortReason = "not_found"
	AbortPrivate       AbortReason = "private"
	AbortNotRegistered AbortReason = "not_registered"
)

// Report summarizes one dispatch run.
type Report struct {
	Aborted    AbortReason `json:"aborted,omitempty"`
	Delivered  int         `json:"delivered"`
	Failed     int         `json:"failed"`
	Suppressed int         `json:"suppressed"`
	Skipped    int         `json:"skipped"`
}

// Config holds the delivery methods fanned out on every dispatch, in order.
type Config struct {
	Methods []string
}

// Dispatcher fans a notifiable event out to the subscribers of its container.
//
// A Dispatcher holds no per-run state and may serve concurrent dispatches.
// Each run gets its own read cache.
type Dispatcher struct {
	dir       Directory
	registry  *Registry
	resolver  *Resolver
	composer  *Composer
	deliverer Deliverer
	methods   []string
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(dir Directory, registry *Registry, hooks Hooks, deliverer Deliverer, cfg Config) *Dispatcher {
	return &Dispatcher{
		dir:       dir,
		registry:  registry,
		resolver:  NewResolver(dir),
		composer:  NewComposer(hooks),
		deliverer: deliverer,
		methods:   append([]string(nil), cfg.Methods...),
	}
}

// Dispatch validates the event and notifies every eligible subscriber.
//
// Missing records, private entities and unregistered types end the run with
// Report.Aborted set and a nil error. Storage errors before fan-out are
// returned so the caller may retry; nothing has been delivered at that point.
// Once fan-out starts, only context cancellation is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, ev NotifiableEvent) (*Report, error) {
	start := time.Now()
	kind := "entity"
	if ev.IsAnnotation() {
		kind = "annotation"
	}
	defer func() { dispatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds()) }()

	cache := newReadCache(d.dir)
	report := &Report{}

	src, reason, err := d.prepare(ctx, cache, ev)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		report.Aborted = reason
		dispatchAbortedTotal.WithLabelValues(string(reason)).Inc()
		slog.Info("dispatch skipped",
			"event", ev.Name,
			"guid", ev.EntityGUID,
			"annotation_id", ev.AnnotationID,
			"reason", reason,
		)
		return report, nil
	}

	for _, method := range d.methods {
		if err := d.fanOut(ctx, cache, ev, src, method, report); err != nil {
			return report, err
		}
	}

	slog.Info("dispatch complete",
		"event", ev.Name,
		"guid", src.Entity.GUID,
		"source", kind,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"suppressed", report.Suppressed,
		"skipped", report.Skipped,
		"duration", time.Since(start),
	)
	return report, nil
}

func (d *Dispatcher) prepare(ctx context.Context, cache *readCache, ev NotifiableEvent) (*Source, AbortReason, error) {
	if !ev.IsAnnotation() {
		e, err := cache.entity(ctx, ev.EntityGUID)
		if err != nil {
			return nil, "", fmt.Errorf("loading entity %s: %w", ev.EntityGUID, err)
		}
		if e == nil {
			return nil, AbortNotFound, nil
		}
		if e.AccessID == AccessPrivate {
			return nil, AbortPrivate, nil
		}
		subject, ok := d.registry.DefaultSubject(e)
		if !ok {
			return nil, AbortNotRegistered, nil
		}
		return NewEntitySource(e, subject, ev.ActorGUID), "", nil
	}

	a, err := d.dir.GetAnnotation(ctx, ev.AnnotationID)
	if err != nil {
		return nil, "", fmt.Errorf("loading annotation %d: %w", ev.AnnotationID, err)
	}
	if a == nil {
		return nil, AbortNotFound, nil
	}
	if !d.registry.IsRegisteredAnnotation(a) {
		return nil, AbortNotRegistered, nil
	}

	e, err := cache.entity(ctx, a.EntityGUID)
	if err != nil {
		return nil, "", fmt.Errorf("loading entity %s: %w", a.EntityGUID, err)
	}
	owner, err := cache.account(ctx, a.OwnerGUID)
	if err != nil {
		return nil, "", fmt.Errorf("loading annotation owner %s: %w", a.OwnerGUID, err)
	}
	if e == nil || owner == nil {
		return nil, AbortNotFound, nil
	}
	if e.AccessID == AccessPrivate {
		return nil, AbortPrivate, nil
	}
	subject, ok := d.registry.DefaultSubject(e)
	if !ok {
		return nil, AbortNotRegistered, nil
	}
	return NewAnnotationSource(a, e, subject, EntityURL(e, ev.SiteURL)), "", nil
}

// fanOut notifies the subscribers of one delivery method.
func (d *Dispatcher) fanOut(ctx context.Context, cache *readCache, ev NotifiableEvent, src *Source, method string, report *Report) error {
	for c, err := range d.resolver.Candidates(ctx, src.Entity.ContainerGUID, method, src.Exclude...) {
		if err != nil {
			slog.Error("resolving recipients failed, skipping method",
				"event", ev.Name,
				"guid", src.Entity.GUID,
				"method", method,
				"error", err,
			)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		d.notify(ctx, cache, ev, src, c, report)
		cache.forget(c.GUID)
	}
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, cache *readCache, ev NotifiableEvent, src *Source, c Candidate, report *Report) {
	account, err := cache.account(ctx, c.GUID)
	if err != nil || account == nil {
		if err != nil {
			slog.Warn("loading recipient failed", "recipient", c.GUID, "error", err)
		}
		report.Skipped++
		deliveriesTotal.WithLabelValues(c.Method, "skipped").Inc()
		return
	}

	allowed, err := cache.hasAccess(ctx, src.Entity, account)
	if err != nil {
		slog.Warn("access check failed", "recipient", c.GUID, "guid", src.Entity.GUID, "error", err)
	}
	if !allowed {
		report.Skipped++
		deliveriesTotal.WithLabelValues(c.Method, "skipped").Inc()
		return
	}

	composed := d.composer.Compose(ctx, src, account, c.Method)
	if composed.Suppressed {
		report.Suppressed++
		deliveriesTotal.WithLabelValues(c.Method, "suppressed").Inc()
		return
	}

	msg := &Message{
		Event:    ev.Name,
		Method:   c.Method,
		To:       account,
		FromGUID: src.Entity.ContainerGUID,
		Subject:  composed.Subject,
		Body:     composed.Body,
	}
	if err := d.deliver(ctx, msg); err != nil {
		report.Failed++
		deliveriesTotal.WithLabelValues(c.Method, "failed").Inc()
		slog.Warn("delivery failed, continuing",
			"event", ev.Name,
			"method", c.Method,
			"recipient", c.GUID,
			"error", err,
		)
		return
	}
	report.Delivered++
	deliveriesTotal.WithLabelValues(c.Method, "delivered").Inc()
}

// deliver isolates one delivery; a panicking backend counts as a failure.
func (d *Dispatcher) deliver(ctx context.Context, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panicked: %v", r)
		}
	}()
	return d.deliverer.Deliver(ctx, msg)
}
