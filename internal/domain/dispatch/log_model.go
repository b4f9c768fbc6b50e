package dispatch

import "time"

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "sent"
	StatusFailed DeliveryStatus = "failed"
)

// DeliveryLog records a single delivery attempt to one recipient.
type DeliveryLog struct {
	ID            string         `json:"id"`
	Event         string         `json:"event"`
	Method        string         `json:"method"`
	RecipientGUID GUID           `json:"recipient_guid"`
	FromGUID      GUID           `json:"from_guid"`
	Subject       string         `json:"subject"`
	Status        DeliveryStatus `json:"status"`
	ProviderID    string         `json:"provider_id,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ListFilter defines pagination and filtering options for listing delivery logs.
type ListFilter struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
	Method    string `form:"method"`
	Recipient int64  `form:"recipient"`
}

// Normalize applies paging defaults.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

// Offset returns the zero-based row offset of the current page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// ListResponse wraps a paginated list of delivery logs.
type ListResponse struct {
	Deliveries []*DeliveryLog `json:"deliveries"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}
