package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"groupnotify/internal/common"
)

var _ Deliverer = (*ProviderRegistry)(nil)

// ProviderRegistry routes messages to the provider of their delivery method
// and records every attempt in the delivery log.
type ProviderRegistry struct {
	providers map[string]Provider
	store     DeliveryStore
}

// NewProviderRegistry creates a registry. store may be nil to skip logging.
func NewProviderRegistry(store DeliveryStore, providers ...Provider) *ProviderRegistry {
	pm := make(map[string]Provider, len(providers))
	for _, p := range providers {
		pm[p.Method()] = p
	}
	return &ProviderRegistry{
		providers: pm,
		store:     store,
	}
}

// Methods returns the delivery methods that have a provider.
func (r *ProviderRegistry) Methods() []string {
	methods := make([]string, 0, len(r.providers))
	for m := range r.providers {
		methods = append(methods, m)
	}
	return methods
}

// MissingMethods returns the configured methods that have no provider, in
// configured order.
func (r *ProviderRegistry) MissingMethods(configured []string) []string {
	available := make(map[string]struct{}, len(r.providers))
	for _, m := range r.Methods() {
		available[m] = struct{}{}
	}

	var missing []string
	for _, m := range configured {
		if _, ok := available[m]; !ok {
			missing = append(missing, m)
		}
	}
	return missing
}

// Deliver sends msg through the provider registered for its method.
func (r *ProviderRegistry) Deliver(ctx context.Context, msg *Message) error {
	start := time.Now()

	provider, ok := r.providers[msg.Method]
	if !ok {
		err := common.NewDeliveryError(msg.Method, "no provider registered")
		r.record(ctx, msg, "", err)
		return err
	}

	providerID, err := provider.Send(ctx, msg)
	if err != nil {
		r.record(ctx, msg, "", err)
		slog.Error("notification delivery failed",
			"event", msg.Event,
			"method", msg.Method,
			"recipient", msg.To.GUID,
			"error", err,
			"duration", time.Since(start),
		)
		return common.NewDeliveryError(msg.Method, err.Error())
	}

	r.record(ctx, msg, providerID, nil)
	slog.Info("notification sent",
		"event", msg.Event,
		"method", msg.Method,
		"recipient", msg.To.GUID,
		"provider_id", providerID,
		"duration", time.Since(start),
	)
	return nil
}

func (r *ProviderRegistry) record(ctx context.Context, msg *Message, providerID string, sendErr error) {
	if r.store == nil {
		return
	}

	entry := &DeliveryLog{
		Event:         msg.Event,
		Method:        msg.Method,
		RecipientGUID: msg.To.GUID,
		FromGUID:      msg.FromGUID,
		Subject:       msg.Subject,
		Status:        StatusSent,
		ProviderID:    providerID,
	}
	if sendErr != nil {
		entry.Status = StatusFailed
		entry.ErrorMessage = fmt.Sprintf("provider error: %s", sendErr.Error())
	}

	if err := r.store.Create(ctx, entry); err != nil {
		slog.Error("failed to record delivery", "method", msg.Method, "recipient", msg.To.GUID, "error", err)
	}
}
