package store_test

import (
	"context"
	"database/sql"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupnotify/internal/domain/dispatch"
	"groupnotify/internal/infra/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func exec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err)
}

func addUser(t *testing.T, db *sql.DB, guid int64, banned bool) {
	t.Helper()
	exec(t, db, `INSERT INTO users (guid, name, username, email, banned) VALUES (?, ?, ?, ?, ?)`,
		guid, "User", "user", "u@example.com", banned)
}

func subscribe(t *testing.T, db *sql.DB, user int64, method string, container int64) {
	t.Helper()
	exec(t, db, `INSERT INTO relationships (guid_one, relationship, guid_two) VALUES (?, ?, ?)`,
		user, dispatch.RelationshipPrefix+method, container)
}

func collect(t *testing.T, seq iter.Seq2[dispatch.GUID, error]) []dispatch.GUID {
	t.Helper()
	var out []dispatch.GUID
	for guid, err := range seq {
		require.NoError(t, err)
		out = append(out, guid)
	}
	return out
}

func TestSQLite_Getters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()

	exec(t, db, `INSERT INTO entities (guid, type, subtype, owner_guid, container_guid, access_id, url)
		VALUES (500, 'object', 'blog', 1, 100, 1, '')`)
	exec(t, db, `INSERT INTO annotations (id, name, entity_guid, owner_guid, value)
		VALUES (42, 'group_topic_post', 500, 2, 'reply')`)
	addUser(t, db, 2, true)

	e, err := s.GetEntity(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, &dispatch.Entity{
		GUID: 500, Type: "object", Subtype: "blog", OwnerGUID: 1, ContainerGUID: 100, AccessID: dispatch.AccessLoggedIn,
	}, e)

	a, err := s.GetAnnotation(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "group_topic_post", a.Name)
	assert.Equal(t, dispatch.GUID(2), a.OwnerGUID)

	u, err := s.GetAccount(ctx, 2)
	require.NoError(t, err)
	assert.True(t, u.Banned)
	assert.Equal(t, "u@example.com", u.Email)

	missingEntity, err := s.GetEntity(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, missingEntity)

	missingAnnotation, err := s.GetAnnotation(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, missingAnnotation)

	missingAccount, err := s.GetAccount(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, missingAccount)
}

func TestSQLite_RelatedAccountsFilters(t *testing.T) {
	s := newTestStore(t)
	db := s.DB()

	for _, g := range []int64{1, 2, 3, 4} {
		addUser(t, db, g, g == 3)
		subscribe(t, db, g, "email", 100)
	}
	subscribe(t, db, 4, "site", 100)
	subscribe(t, db, 2, "email", 200)
	// Relationship to a non-user is ignored.
	subscribe(t, db, 9999, "email", 100)

	q := dispatch.SubscriberQuery{
		Relationship:  "notifyemail",
		Container:     100,
		Inverse:       true,
		ExcludeBanned: true,
		Exclude:       []dispatch.GUID{1},
	}
	assert.Equal(t, []dispatch.GUID{2, 4}, collect(t, s.RelatedAccounts(context.Background(), q)))

	q.ExcludeBanned = false
	q.Exclude = nil
	assert.Equal(t, []dispatch.GUID{1, 2, 3, 4}, collect(t, s.RelatedAccounts(context.Background(), q)))

	q.Relationship = "notifysite"
	assert.Equal(t, []dispatch.GUID{4}, collect(t, s.RelatedAccounts(context.Background(), q)))
}

func TestSQLite_RelatedAccountsPagesAndAllowsNestedReads(t *testing.T) {
	s := newTestStore(t)
	db := s.DB()
	ctx := context.Background()

	tx, err := db.Begin()
	require.NoError(t, err)
	const n = 1203
	for g := int64(1); g <= n; g++ {
		_, err := tx.Exec(`INSERT INTO users (guid, email) VALUES (?, ?)`, g, "u@example.com")
		require.NoError(t, err)
		_, err = tx.Exec(`INSERT INTO relationships (guid_one, relationship, guid_two) VALUES (?, 'notifyemail', 100)`, g)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	q := dispatch.SubscriberQuery{Relationship: "notifyemail", Container: 100, Inverse: true, ExcludeBanned: true}

	var last dispatch.GUID
	count := 0
	for guid, err := range s.RelatedAccounts(ctx, q) {
		require.NoError(t, err)
		require.Greater(t, guid, last)
		last = guid

		// The store has a single connection; this would block if the
		// subscriber rows were still open.
		a, err := s.GetAccount(ctx, guid)
		require.NoError(t, err)
		require.NotNil(t, a)
		count++
	}
	assert.Equal(t, n, count)
	assert.Equal(t, dispatch.GUID(n), last)
}

func TestSQLite_RelatedAccountsForward(t *testing.T) {
	s := newTestStore(t)
	db := s.DB()
	addUser(t, db, 7, false)
	addUser(t, db, 8, false)
	exec(t, db, `INSERT INTO relationships (guid_one, relationship, guid_two) VALUES (1, 'friend', 8), (1, 'friend', 7)`)

	q := dispatch.SubscriberQuery{Relationship: "friend", Container: 1}
	assert.Equal(t, []dispatch.GUID{7, 8}, collect(t, s.RelatedAccounts(context.Background(), q)))
}

func TestSQLite_HasAccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exec(t, s.DB(), `INSERT INTO access_collection_members (access_id, user_guid) VALUES (7, 3)`)

	owner := &dispatch.Account{GUID: 1}
	member := &dispatch.Account{GUID: 3}
	other := &dispatch.Account{GUID: 4}

	tests := []struct {
		name   string
		access dispatch.AccessID
		who    *dispatch.Account
		want   bool
	}{
		{"owner of private", dispatch.AccessPrivate, owner, true},
		{"other on private", dispatch.AccessPrivate, other, false},
		{"logged in", dispatch.AccessLoggedIn, other, true},
		{"public", dispatch.AccessPublic, other, true},
		{"collection member", 7, member, true},
		{"collection outsider", 7, other, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &dispatch.Entity{GUID: 500, OwnerGUID: 1, AccessID: tt.access}
			got, err := s.HasAccess(ctx, e, tt.who)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLite_DeliveryLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, status := range []dispatch.DeliveryStatus{dispatch.StatusSent, dispatch.StatusFailed, dispatch.StatusSent} {
		entry := &dispatch.DeliveryLog{
			Event:         "create",
			Method:        "email",
			RecipientGUID: dispatch.GUID(i + 1),
			FromGUID:      100,
			Subject:       "New blog post",
			Status:        status,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if status == dispatch.StatusFailed {
			entry.ErrorMessage = "provider error: boom"
		}
		require.NoError(t, s.Create(ctx, entry))
		assert.NotEmpty(t, entry.ID)
	}

	all, total, err := s.List(ctx, dispatch.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, dispatch.GUID(3), all[0].RecipientGUID, "newest first")

	sent, total, err := s.List(ctx, dispatch.ListFilter{Status: "sent", PageSize: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, sent, 1)
	assert.Equal(t, dispatch.GUID(1), sent[0].RecipientGUID)

	byRecipient, total, err := s.List(ctx, dispatch.ListFilter{Recipient: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, byRecipient, 1)

	got, err := s.GetByID(ctx, byRecipient[0].ID)
	require.NoError(t, err)
	assert.Equal(t, dispatch.StatusFailed, got.Status)
	assert.Equal(t, "provider error: boom", got.ErrorMessage)
	assert.True(t, got.CreatedAt.Equal(base.Add(time.Minute)))

	missing, err := s.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
