package store

import (
	"fmt"

	"groupnotify/internal/config"
	"groupnotify/internal/domain/dispatch"
)

// Store is a host CMS directory that also keeps the delivery log.
type Store interface {
	dispatch.Directory
	dispatch.DeliveryStore
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "supabase":
		s, err := NewSupabaseStore(cfg.SupabaseURL, cfg.ServiceKey)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
