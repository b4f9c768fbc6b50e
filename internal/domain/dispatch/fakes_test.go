package dispatch_test

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"

	"groupnotify/internal/domain/dispatch"
)

// --- in-memory host CMS directory ---

type relKey struct {
	relationship string
	container    dispatch.GUID
}

type memDirectory struct {
	entities    map[dispatch.GUID]*dispatch.Entity
	annotations map[int64]*dispatch.Annotation
	accounts    map[dispatch.GUID]*dispatch.Account
	subscribers map[relKey][]dispatch.GUID
	members     map[dispatch.AccessID][]dispatch.GUID

	// failAfter makes RelatedAccounts fail after yielding that many rows.
	failAfter  int
	relErr     error
	entityErr  error
	queries    []dispatch.SubscriberQuery
	accountHit map[dispatch.GUID]int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		entities:    make(map[dispatch.GUID]*dispatch.Entity),
		annotations: make(map[int64]*dispatch.Annotation),
		accounts:    make(map[dispatch.GUID]*dispatch.Account),
		subscribers: make(map[relKey][]dispatch.GUID),
		members:     make(map[dispatch.AccessID][]dispatch.GUID),
		accountHit:  make(map[dispatch.GUID]int),
	}
}

func (d *memDirectory) addAccount(guid dispatch.GUID, banned bool) *dispatch.Account {
	a := &dispatch.Account{GUID: guid, Name: "user " + guid.String(), Email: guid.String() + "@example.com", Banned: banned}
	d.accounts[guid] = a
	return a
}

func (d *memDirectory) subscribe(user dispatch.GUID, method string, container dispatch.GUID) {
	k := relKey{relationship: dispatch.RelationshipPrefix + method, container: container}
	d.subscribers[k] = append(d.subscribers[k], user)
	slices.Sort(d.subscribers[k])
}

func (d *memDirectory) GetEntity(_ context.Context, guid dispatch.GUID) (*dispatch.Entity, error) {
	if d.entityErr != nil {
		return nil, d.entityErr
	}
	return d.entities[guid], nil
}

func (d *memDirectory) GetAnnotation(_ context.Context, id int64) (*dispatch.Annotation, error) {
	return d.annotations[id], nil
}

func (d *memDirectory) GetAccount(_ context.Context, guid dispatch.GUID) (*dispatch.Account, error) {
	d.accountHit[guid]++
	return d.accounts[guid], nil
}

func (d *memDirectory) RelatedAccounts(_ context.Context, q dispatch.SubscriberQuery) iter.Seq2[dispatch.GUID, error] {
	d.queries = append(d.queries, q)
	rows := d.subscribers[relKey{relationship: q.Relationship, container: q.Container}]
	return func(yield func(dispatch.GUID, error) bool) {
		n := 0
		for _, guid := range rows {
			if d.relErr != nil && n == d.failAfter {
				yield(0, d.relErr)
				return
			}
			if slices.Contains(q.Exclude, guid) {
				continue
			}
			if a := d.accounts[guid]; q.ExcludeBanned && a != nil && a.Banned {
				continue
			}
			n++
			if !yield(guid, nil) {
				return
			}
		}
		if d.relErr != nil && n == d.failAfter {
			yield(0, d.relErr)
		}
	}
}

func (d *memDirectory) HasAccess(_ context.Context, e *dispatch.Entity, a *dispatch.Account) (bool, error) {
	if e.OwnerGUID == a.GUID {
		return true, nil
	}
	switch e.AccessID {
	case dispatch.AccessPublic, dispatch.AccessLoggedIn:
		return true, nil
	case dispatch.AccessPrivate:
		return false, nil
	}
	return slices.Contains(d.members[e.AccessID], a.GUID), nil
}

// --- recording deliverer ---

type recordingDeliverer struct {
	mu       sync.Mutex
	sent     []*dispatch.Message
	failFor  map[dispatch.GUID]bool
	panicFor map[dispatch.GUID]bool
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{
		failFor:  make(map[dispatch.GUID]bool),
		panicFor: make(map[dispatch.GUID]bool),
	}
}

func (r *recordingDeliverer) Deliver(_ context.Context, msg *dispatch.Message) error {
	if r.panicFor[msg.To.GUID] {
		panic("backend exploded")
	}
	if r.failFor[msg.To.GUID] {
		return errors.New("mailbox unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingDeliverer) recipients() []dispatch.GUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dispatch.GUID, len(r.sent))
	for i, m := range r.sent {
		out[i] = m.To.GUID
	}
	return out
}

// --- configurable hooks ---

type funcHooks struct {
	message func(hc dispatch.HookContext, def string) dispatch.Override
	subject func(hc dispatch.HookContext, def string) dispatch.Override
}

func (h funcHooks) Message(_ context.Context, hc dispatch.HookContext, def string) dispatch.Override {
	if h.message == nil {
		return dispatch.UseDefault()
	}
	return h.message(hc, def)
}

func (h funcHooks) Subject(_ context.Context, hc dispatch.HookContext, def string) dispatch.Override {
	if h.subject == nil {
		return dispatch.UseDefault()
	}
	return h.subject(hc, def)
}

// --- in-memory delivery log ---

type memDeliveryStore struct {
	mu      sync.Mutex
	entries []*dispatch.DeliveryLog
	err     error
}

func (m *memDeliveryStore) Create(_ context.Context, log *dispatch.DeliveryLog) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = "log-" + dispatch.GUID(len(m.entries)+1).String()
	m.entries = append(m.entries, log)
	return nil
}

func (m *memDeliveryStore) GetByID(_ context.Context, id string) (*dispatch.DeliveryLog, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (m *memDeliveryStore) List(_ context.Context, filter dispatch.ListFilter) ([]*dispatch.DeliveryLog, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	var out []*dispatch.DeliveryLog
	for _, e := range m.entries {
		if filter.Status != "" && string(e.Status) != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

// --- recording launcher ---

type recordingLauncher struct {
	queries []string
	err     error
}

func (l *recordingLauncher) Launch(_ context.Context, query string) error {
	l.queries = append(l.queries, query)
	return l.err
}
