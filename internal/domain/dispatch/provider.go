package dispatch

import "context"

// Message is one notification addressed to a single recipient.
type Message struct {
	Event    string
	Method   string
	To       *Account
	FromGUID GUID
	Subject  string
	Body     string
}

// Provider defines the contract for a delivery method backend.
// Implementations live in infra/ (e.g., Resend or SMTP for email).
type Provider interface {
	// Send delivers a message and returns the provider's message ID.
	Send(ctx context.Context, msg *Message) (string, error)

	// Method returns the delivery method this provider handles.
	Method() string
}

// Deliverer hands a composed message to the delivery subsystem.
type Deliverer interface {
	Deliver(ctx context.Context, msg *Message) error
}
