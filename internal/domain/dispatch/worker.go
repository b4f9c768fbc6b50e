package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"strconv"
	"strings"

	"groupnotify/internal/common"

	"github.com/hibiken/asynq"
)

// SessionResolver maps a host CMS session to the account that owns it.
// Implementations live in infra/session/.
type SessionResolver interface {
	// ActorForSession returns 0 when the session is unknown.
	ActorForSession(ctx context.Context, sessionID string) (GUID, error)
}

// Worker executes worker requests produced by a Trigger.
// It authenticates the request, then runs the dispatch in-process.
type Worker struct {
	secret         *Secret
	dispatcher     *Dispatcher
	sessions       SessionResolver
	requestLimit   bool
	setMemoryLimit func(int64) int64
}

// NewWorker creates a worker. sessions may be nil when requests always carry
// the acting account.
func NewWorker(secret *Secret, dispatcher *Dispatcher, sessions SessionResolver) *Worker {
	return &Worker{
		secret:         secret,
		dispatcher:     dispatcher,
		sessions:       sessions,
		setMemoryLimit: debug.SetMemoryLimit,
	}
}

// ApplyRequestMemoryLimit makes Process set the process memory limit from
// each request. Only a worker that runs a single request per process may
// enable it; queue workers set the limit once at startup.
func (w *Worker) ApplyRequestMemoryLimit() *Worker {
	w.requestLimit = true
	return w
}

// Process handles one encoded worker request. A request with a bad secret
// is rejected with ErrInvalidSecret before any other work is done.
func (w *Worker) Process(ctx context.Context, raw string) (*Report, error) {
	req, err := ParseWorkerRequest(raw)
	if err != nil {
		workerRejectedTotal.Inc()
		return nil, common.NewValidationError(err.Error())
	}
	if !w.secret.Validate(req.Secret) {
		workerRejectedTotal.Inc()
		slog.Warn("worker request rejected", "reason", "invalid secret", "host", req.Host)
		return nil, ErrInvalidSecret
	}
	if req.EntityGUID == 0 && req.AnnotationID == 0 {
		workerRejectedTotal.Inc()
		return nil, common.NewValidationError("worker request names no entity or annotation")
	}

	if w.requestLimit {
		if limit, ok := ParseMemoryLimit(req.MemoryLimit); ok {
			w.setMemoryLimit(limit)
		}
	}

	ev := NotifiableEvent{
		Name:         req.Event,
		EntityGUID:   req.EntityGUID,
		AnnotationID: req.AnnotationID,
		ActorGUID:    req.ActorGUID,
		SiteURL:      req.SiteURL(),
	}
	if ev.ActorGUID == 0 && req.SessionID != "" && w.sessions != nil {
		actor, err := w.sessions.ActorForSession(ctx, req.SessionID)
		if err != nil {
			slog.Warn("session lookup failed, dispatching without actor", "error", err)
		}
		ev.ActorGUID = actor
	}

	report, err := w.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		return report, fmt.Errorf("dispatching %s: %w", ev.Name, err)
	}
	return report, nil
}

// ProcessTask handles a dispatch task from the queue. Requests that can never
// succeed are not retried.
func (w *Worker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDispatchPayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	if _, err := w.Process(ctx, payload.Request); err != nil {
		var vErr *common.ValidationError
		if errors.Is(err, ErrInvalidSecret) || errors.As(err, &vErr) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// ParseMemoryLimit converts a size such as "256M", "1G" or "134217728" to
// bytes. "-1", empty, malformed and out-of-range values report false.
func ParseMemoryLimit(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1 << 10
	case 'm', 'M':
		mult = 1 << 20
	case 'g', 'G':
		mult = 1 << 30
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 || n > math.MaxInt64/mult {
		return 0, false
	}
	return n * mult, true
}
