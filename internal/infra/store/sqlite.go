package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"groupnotify/internal/domain/dispatch"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver.
)

var (
	_ dispatch.Directory     = (*SQLiteStore)(nil)
	_ dispatch.DeliveryStore = (*SQLiteStore)(nil)
)

// Schema mirrors the host CMS tables dispatch reads, plus the delivery log.
const schema = `
CREATE TABLE IF NOT EXISTS entities (
    guid           INTEGER PRIMARY KEY,
    type           TEXT NOT NULL DEFAULT '',
    subtype        TEXT NOT NULL DEFAULT '',
    owner_guid     INTEGER NOT NULL DEFAULT 0,
    container_guid INTEGER NOT NULL DEFAULT 0,
    access_id      INTEGER NOT NULL DEFAULT 0,
    url            TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS annotations (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    entity_guid INTEGER NOT NULL,
    owner_guid  INTEGER NOT NULL,
    value       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS users (
    guid     INTEGER PRIMARY KEY,
    name     TEXT NOT NULL DEFAULT '',
    username TEXT NOT NULL DEFAULT '',
    email    TEXT NOT NULL DEFAULT '',
    banned   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS relationships (
    guid_one     INTEGER NOT NULL,
    relationship TEXT NOT NULL,
    guid_two     INTEGER NOT NULL,
    PRIMARY KEY (guid_one, relationship, guid_two)
);
CREATE INDEX IF NOT EXISTS idx_relationships_target
    ON relationships(guid_two, relationship, guid_one);

CREATE TABLE IF NOT EXISTS access_collection_members (
    access_id INTEGER NOT NULL,
    user_guid INTEGER NOT NULL,
    PRIMARY KEY (access_id, user_guid)
);

CREATE TABLE IF NOT EXISTS delivery_logs (
    id             TEXT PRIMARY KEY,
    event          TEXT NOT NULL DEFAULT '',
    method         TEXT NOT NULL,
    recipient_guid INTEGER NOT NULL,
    from_guid      INTEGER NOT NULL,
    subject        TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL,
    provider_id    TEXT NOT NULL DEFAULT '',
    error_message  TEXT NOT NULL DEFAULT '',
    created_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_delivery_logs_created ON delivery_logs(created_at DESC);
`

// SQLiteStore implements the dispatch directory and delivery log on an
// embedded SQLite database holding a replica of the host CMS tables.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an in-process database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle, e.g. for seeding replicas.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetEntity returns nil, nil when the entity does not exist.
func (s *SQLiteStore) GetEntity(ctx context.Context, guid dispatch.GUID) (*dispatch.Entity, error) {
	var e dispatch.Entity
	err := s.db.QueryRowContext(ctx, `
		SELECT guid, type, subtype, owner_guid, container_guid, access_id, url
		FROM entities WHERE guid = ?`, int64(guid),
	).Scan(&e.GUID, &e.Type, &e.Subtype, &e.OwnerGUID, &e.ContainerGUID, &e.AccessID, &e.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying entity %s: %w", guid, err)
	}
	return &e, nil
}

// GetAnnotation returns nil, nil when the annotation does not exist.
func (s *SQLiteStore) GetAnnotation(ctx context.Context, id int64) (*dispatch.Annotation, error) {
	var a dispatch.Annotation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_guid, owner_guid, value
		FROM annotations WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.EntityGUID, &a.OwnerGUID, &a.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying annotation %d: %w", id, err)
	}
	return &a, nil
}

// GetAccount returns nil, nil when the user does not exist.
func (s *SQLiteStore) GetAccount(ctx context.Context, guid dispatch.GUID) (*dispatch.Account, error) {
	var a dispatch.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT guid, name, username, email, banned
		FROM users WHERE guid = ?`, int64(guid),
	).Scan(&a.GUID, &a.Name, &a.Username, &a.Email, &a.Banned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user %s: %w", guid, err)
	}
	return &a, nil
}

// RelatedAccounts pages through matching users by ascending GUID. Each page
// is read and closed before it is yielded, so callers may query the store
// while iterating.
func (s *SQLiteStore) RelatedAccounts(ctx context.Context, q dispatch.SubscriberQuery) iter.Seq2[dispatch.GUID, error] {
	selectCol, matchCol := "r.guid_one", "r.guid_two"
	if !q.Inverse {
		selectCol, matchCol = "r.guid_two", "r.guid_one"
	}

	var where []string
	args := []any{q.Relationship, int64(q.Container)}
	if q.ExcludeBanned {
		where = append(where, "u.banned = 0")
	}
	if len(q.Exclude) > 0 {
		where = append(where, selectCol+" NOT IN (?"+strings.Repeat(",?", len(q.Exclude)-1)+")")
		for _, g := range q.Exclude {
			args = append(args, int64(g))
		}
	}
	where = append(where, selectCol+" > ?")

	query := fmt.Sprintf(`
		SELECT %[1]s FROM relationships r
		JOIN users u ON u.guid = %[1]s
		WHERE r.relationship = ? AND %[2]s = ? AND %[3]s
		ORDER BY %[1]s
		LIMIT %[4]d`, selectCol, matchCol, strings.Join(where, " AND "), subscriberPageSize)

	return func(yield func(dispatch.GUID, error) bool) {
		var last int64
		for {
			page, err := s.subscriberPage(ctx, query, append(args, last))
			if err != nil {
				yield(0, err)
				return
			}
			for _, guid := range page {
				if !yield(dispatch.GUID(guid), nil) {
					return
				}
			}
			if len(page) < subscriberPageSize {
				return
			}
			last = page[len(page)-1]
		}
	}
}

func (s *SQLiteStore) subscriberPage(ctx context.Context, query string, args []any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	var page []int64
	for rows.Next() {
		var guid int64
		if err := rows.Scan(&guid); err != nil {
			return nil, fmt.Errorf("scanning subscriber row: %w", err)
		}
		page = append(page, guid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriber rows: %w", err)
	}
	return page, nil
}

// HasAccess resolves access collections through access_collection_members.
func (s *SQLiteStore) HasAccess(ctx context.Context, e *dispatch.Entity, a *dispatch.Account) (bool, error) {
	if allowed, decided := accessByLevel(e, a); decided {
		return allowed, nil
	}

	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM access_collection_members
		WHERE access_id = ? AND user_guid = ?`, int64(e.AccessID), int64(a.GUID),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying access collection %d: %w", e.AccessID, err)
	}
	return true, nil
}

// Create inserts a delivery log record.
func (s *SQLiteStore) Create(ctx context.Context, log *dispatch.DeliveryLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_logs
		    (id, event, method, recipient_guid, from_guid, subject, status, provider_id, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Event, log.Method, int64(log.RecipientGUID), int64(log.FromGUID),
		log.Subject, string(log.Status), log.ProviderID, log.ErrorMessage, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery log: %w", err)
	}
	return nil
}

const deliveryColumns = `id, event, method, recipient_guid, from_guid, subject, status, provider_id, error_message, created_at`

// GetByID returns nil, nil if no record is found.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*dispatch.DeliveryLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM delivery_logs WHERE id = ?`, id)
	log, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying delivery log: %w", err)
	}
	return log, nil
}

// List retrieves delivery logs, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter dispatch.ListFilter) ([]*dispatch.DeliveryLog, int, error) {
	filter.Normalize()

	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Method != "" {
		where = append(where, "method = ?")
		args = append(args, filter.Method)
	}
	if filter.Recipient != 0 {
		where = append(where, "recipient_guid = ?")
		args = append(args, filter.Recipient)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_logs`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting delivery logs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deliveryColumns+` FROM delivery_logs`+cond+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, filter.PageSize, filter.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing delivery logs: %w", err)
	}
	defer rows.Close()

	var logs []*dispatch.DeliveryLog
	for rows.Next() {
		log, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning delivery log row: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating delivery log rows: %w", err)
	}
	return logs, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(r rowScanner) (*dispatch.DeliveryLog, error) {
	var (
		log    dispatch.DeliveryLog
		status string
	)
	if err := r.Scan(&log.ID, &log.Event, &log.Method, &log.RecipientGUID, &log.FromGUID,
		&log.Subject, &status, &log.ProviderID, &log.ErrorMessage, &log.CreatedAt); err != nil {
		return nil, err
	}
	log.Status = dispatch.DeliveryStatus(status)
	return &log, nil
}
