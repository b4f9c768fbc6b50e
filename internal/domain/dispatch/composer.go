package dispatch

import "context"

// Composer builds the per-recipient message from the source defaults and the
// extension hooks.
type Composer struct {
	hooks Hooks
}

// NewComposer creates a composer. A nil hooks value keeps every default.
func NewComposer(hooks Hooks) *Composer {
	if hooks == nil {
		hooks = NoHooks{}
	}
	return &Composer{hooks: hooks}
}

// Compose returns the subject and body for one recipient and method.
//
// Only the message hook can suppress delivery. A Suppress from the subject
// hook falls back to the default subject.
func (c *Composer) Compose(ctx context.Context, src *Source, recipient *Account, method string) ComposedMessage {
	msg := ComposedMessage{
		Subject: src.DefaultSubject,
		Body:    src.DefaultBody,
	}

	hc := src.HookContext(recipient, method)

	hc.Name = src.MessageHook
	body := c.hooks.Message(ctx, hc, src.DefaultBody)
	if body.IsSuppress() {
		msg.Suppressed = true
	} else if v, ok := body.Value(); ok {
		msg.Body = v
	}

	hc.Name = src.SubjectHook
	if v, ok := c.hooks.Subject(ctx, hc, src.DefaultSubject).Value(); ok {
		msg.Subject = v
	}

	return msg
}
