package dispatch

import (
	"context"
	"iter"
)

// EntityStore reads content and accounts from the host CMS.
// Implementations live in infra/store/ (Supabase, SQLite).
// Each getter returns nil, nil when the record does not exist.
type EntityStore interface {
	GetEntity(ctx context.Context, guid GUID) (*Entity, error)
	GetAnnotation(ctx context.Context, id int64) (*Annotation, error)
	GetAccount(ctx context.Context, guid GUID) (*Account, error)
}

// SubscriberQuery selects accounts related to a container through a named
// relationship.
type SubscriberQuery struct {
	Relationship string
	Container    GUID

	// Inverse selects accounts that hold the relationship towards the
	// container rather than the other way round.
	Inverse       bool
	ExcludeBanned bool
	Exclude       []GUID
}

// RelationshipQuerier queries the relationship graph.
type RelationshipQuerier interface {
	// RelatedAccounts yields matching account GUIDs in ascending order, each
	// at most once. The sequence may be iterated only once.
	RelatedAccounts(ctx context.Context, q SubscriberQuery) iter.Seq2[GUID, error]
}

// AccessChecker decides whether an account may read an entity.
type AccessChecker interface {
	HasAccess(ctx context.Context, e *Entity, a *Account) (bool, error)
}

// Directory is the full read surface dispatch needs from the host CMS.
type Directory interface {
	EntityStore
	RelationshipQuerier
	AccessChecker
}

// DeliveryStore persists delivery attempts.
type DeliveryStore interface {
	// Create inserts a delivery log record and fills in its ID.
	Create(ctx context.Context, log *DeliveryLog) error

	// GetByID returns nil, nil if no record is found.
	GetByID(ctx context.Context, id string) (*DeliveryLog, error)

	// List retrieves delivery logs with pagination and filtering.
	List(ctx context.Context, filter ListFilter) ([]*DeliveryLog, int, error)
}
