package store

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"groupnotify/internal/domain/dispatch"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const (
	entitiesTable    = "entities"
	annotationsTable = "annotations"
	usersTable       = "users"
	membersTable     = "access_collection_members"
	deliveryTable    = "delivery_logs"

	// subscribersView joins relationships to users so the banned flag can be
	// filtered server-side:
	//   SELECT r.guid_one, r.relationship, r.guid_two, u.banned
	//   FROM relationships r JOIN users u ON u.guid = r.guid_one
	subscribersView = "notification_subscribers"
)

var (
	_ dispatch.Directory     = (*SupabaseStore)(nil)
	_ dispatch.DeliveryStore = (*SupabaseStore)(nil)
)

// SupabaseStore implements the dispatch directory and delivery log using the
// Supabase Go SDK against the host CMS database.
type SupabaseStore struct {
	client *supa.Client
}

// NewSupabaseStore creates a new Supabase-backed store.
func NewSupabaseStore(supabaseURL, serviceKey string) (*SupabaseStore, error) {
	client, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

// Close is a no-op: the PostgREST client holds no connections.
func (s *SupabaseStore) Close() error { return nil }

// first selects at most one row matching column = value into dest.
// It reports false when nothing matched.
func (s *SupabaseStore) first(table, column, value string, dest any) (bool, error) {
	data, _, err := s.client.From(table).Select("*", "", false).Eq(column, value).Limit(1, "").Execute()
	if err != nil {
		return false, fmt.Errorf("querying %s: %w", table, err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("parsing %s rows: %w", table, err)
	}
	if len(rows) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return false, fmt.Errorf("parsing %s row: %w", table, err)
	}
	return true, nil
}

// GetEntity returns nil, nil when the entity does not exist.
func (s *SupabaseStore) GetEntity(ctx context.Context, guid dispatch.GUID) (*dispatch.Entity, error) {
	var e dispatch.Entity
	found, err := s.first(entitiesTable, "guid", guid.String(), &e)
	if err != nil || !found {
		return nil, err
	}
	return &e, nil
}

// GetAnnotation returns nil, nil when the annotation does not exist.
func (s *SupabaseStore) GetAnnotation(ctx context.Context, id int64) (*dispatch.Annotation, error) {
	var a dispatch.Annotation
	found, err := s.first(annotationsTable, "id", strconv.FormatInt(id, 10), &a)
	if err != nil || !found {
		return nil, err
	}
	return &a, nil
}

// GetAccount returns nil, nil when the user does not exist.
func (s *SupabaseStore) GetAccount(ctx context.Context, guid dispatch.GUID) (*dispatch.Account, error) {
	var a dispatch.Account
	found, err := s.first(usersTable, "guid", guid.String(), &a)
	if err != nil || !found {
		return nil, err
	}
	return &a, nil
}

// RelatedAccounts pages through the subscribers view by ascending GUID.
// Only inverse queries are supported: the view is keyed on the subscriber.
func (s *SupabaseStore) RelatedAccounts(ctx context.Context, q dispatch.SubscriberQuery) iter.Seq2[dispatch.GUID, error] {
	return func(yield func(dispatch.GUID, error) bool) {
		if !q.Inverse {
			yield(0, fmt.Errorf("supabase directory: forward relationship queries are not supported"))
			return
		}

		var exclude string
		if len(q.Exclude) > 0 {
			ids := make([]string, len(q.Exclude))
			for i, g := range q.Exclude {
				ids[i] = g.String()
			}
			exclude = "(" + strings.Join(ids, ",") + ")"
		}

		var last dispatch.GUID
		for {
			if err := ctx.Err(); err != nil {
				yield(0, err)
				return
			}

			query := s.client.From(subscribersView).
				Select("guid_one", "", false).
				Eq("relationship", q.Relationship).
				Eq("guid_two", q.Container.String()).
				Gt("guid_one", last.String())
			if q.ExcludeBanned {
				query = query.Eq("banned", "false")
			}
			if exclude != "" {
				query = query.Not("guid_one", "in", exclude)
			}
			query = query.Order("guid_one", &postgrest.OrderOpts{Ascending: true}).Limit(subscriberPageSize, "")

			data, _, err := query.Execute()
			if err != nil {
				yield(0, fmt.Errorf("querying subscribers: %w", err))
				return
			}

			var rows []struct {
				GUID dispatch.GUID `json:"guid_one"`
			}
			if err := json.Unmarshal(data, &rows); err != nil {
				yield(0, fmt.Errorf("parsing subscribers: %w", err))
				return
			}

			for _, row := range rows {
				if !yield(row.GUID, nil) {
					return
				}
			}
			if len(rows) < subscriberPageSize {
				return
			}
			last = rows[len(rows)-1].GUID
		}
	}
}

// HasAccess resolves access collections through access_collection_members.
func (s *SupabaseStore) HasAccess(ctx context.Context, e *dispatch.Entity, a *dispatch.Account) (bool, error) {
	if allowed, decided := accessByLevel(e, a); decided {
		return allowed, nil
	}

	data, _, err := s.client.From(membersTable).
		Select("user_guid", "", false).
		Eq("access_id", strconv.FormatInt(int64(e.AccessID), 10)).
		Eq("user_guid", a.GUID.String()).
		Limit(1, "").
		Execute()
	if err != nil {
		return false, fmt.Errorf("querying access collection %d: %w", e.AccessID, err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("parsing access collection rows: %w", err)
	}
	return len(rows) > 0, nil
}

// deliveryRow is the PostgREST representation of a delivery log.
type deliveryRow struct {
	ID            string  `json:"id,omitempty"`
	Event         string  `json:"event"`
	Method        string  `json:"method"`
	RecipientGUID int64   `json:"recipient_guid"`
	FromGUID      int64   `json:"from_guid"`
	Subject       string  `json:"subject"`
	Status        string  `json:"status"`
	ProviderID    *string `json:"provider_id,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// Create inserts a delivery log record and reads back the generated ID.
func (s *SupabaseStore) Create(ctx context.Context, log *dispatch.DeliveryLog) error {
	row := deliveryRow{
		Event:         log.Event,
		Method:        log.Method,
		RecipientGUID: int64(log.RecipientGUID),
		FromGUID:      int64(log.FromGUID),
		Subject:       log.Subject,
		Status:        string(log.Status),
	}
	if log.ProviderID != "" {
		row.ProviderID = &log.ProviderID
	}
	if log.ErrorMessage != "" {
		row.ErrorMessage = &log.ErrorMessage
	}

	data, _, err := s.client.From(deliveryTable).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting delivery log: %w", err)
	}

	var results []deliveryRow
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parsing insert response: %w", err)
	}
	if len(results) > 0 {
		created := rowToLog(&results[0])
		log.ID = created.ID
		log.CreatedAt = created.CreatedAt
	}
	return nil
}

// GetByID returns nil, nil if no record is found.
func (s *SupabaseStore) GetByID(ctx context.Context, id string) (*dispatch.DeliveryLog, error) {
	var row deliveryRow
	found, err := s.first(deliveryTable, "id", id, &row)
	if err != nil || !found {
		return nil, err
	}
	return rowToLog(&row), nil
}

// List retrieves delivery logs with pagination and filtering.
func (s *SupabaseStore) List(ctx context.Context, filter dispatch.ListFilter) ([]*dispatch.DeliveryLog, int, error) {
	filter.Normalize()
	offset := filter.Offset()

	query := s.client.From(deliveryTable).Select("*", "exact", false)

	if filter.Status != "" {
		query = query.Eq("status", filter.Status)
	}
	if filter.Method != "" {
		query = query.Eq("method", filter.Method)
	}
	if filter.Recipient != 0 {
		query = query.Eq("recipient_guid", strconv.FormatInt(filter.Recipient, 10))
	}

	query = query.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	query = query.Range(offset, offset+filter.PageSize-1, "")

	data, count, err := query.Execute()
	if err != nil {
		return nil, 0, fmt.Errorf("listing delivery logs: %w", err)
	}

	var rows []deliveryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, 0, fmt.Errorf("parsing delivery list: %w", err)
	}

	logs := make([]*dispatch.DeliveryLog, len(rows))
	for i := range rows {
		logs[i] = rowToLog(&rows[i])
	}
	return logs, int(count), nil
}

func rowToLog(row *deliveryRow) *dispatch.DeliveryLog {
	log := &dispatch.DeliveryLog{
		ID:            row.ID,
		Event:         row.Event,
		Method:        row.Method,
		RecipientGUID: dispatch.GUID(row.RecipientGUID),
		FromGUID:      dispatch.GUID(row.FromGUID),
		Subject:       row.Subject,
		Status:        dispatch.DeliveryStatus(row.Status),
	}
	if row.ProviderID != nil {
		log.ProviderID = *row.ProviderID
	}
	if row.ErrorMessage != nil {
		log.ErrorMessage = *row.ErrorMessage
	}
	if row.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, row.CreatedAt); err == nil {
			log.CreatedAt = t
		}
	}
	return log
}
