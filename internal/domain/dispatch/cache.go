package dispatch

import "context"

// readCache memoizes directory reads for a single dispatch run. The
// orchestrator forgets each recipient once processed, so memory stays bounded
// during large fan-outs.
type readCache struct {
	dir      Directory
	entities map[GUID]*Entity
	accounts map[GUID]*Account
	access   map[GUID]bool
}

func newReadCache(dir Directory) *readCache {
	return &readCache{
		dir:      dir,
		entities: make(map[GUID]*Entity),
		accounts: make(map[GUID]*Account),
		access:   make(map[GUID]bool),
	}
}

func (c *readCache) entity(ctx context.Context, guid GUID) (*Entity, error) {
	if e, ok := c.entities[guid]; ok {
		return e, nil
	}
	e, err := c.dir.GetEntity(ctx, guid)
	if err != nil {
		return nil, err
	}
	if e != nil {
		c.entities[guid] = e
	}
	return e, nil
}

func (c *readCache) account(ctx context.Context, guid GUID) (*Account, error) {
	if a, ok := c.accounts[guid]; ok {
		return a, nil
	}
	a, err := c.dir.GetAccount(ctx, guid)
	if err != nil {
		return nil, err
	}
	if a != nil {
		c.accounts[guid] = a
	}
	return a, nil
}

// hasAccess caches decisions per account; a run has a single subject entity.
func (c *readCache) hasAccess(ctx context.Context, e *Entity, a *Account) (bool, error) {
	if ok, cached := c.access[a.GUID]; cached {
		return ok, nil
	}
	ok, err := c.dir.HasAccess(ctx, e, a)
	if err != nil {
		return false, err
	}
	c.access[a.GUID] = ok
	return ok, nil
}

// forget drops everything cached for an account.
func (c *readCache) forget(guid GUID) {
	delete(c.accounts, guid)
	delete(c.access, guid)
}
