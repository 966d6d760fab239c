package recordstore

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures a backend.
type Config struct {
	Backend string

	SQLitePath string

	SheetURL  string
	Worksheet string

	SharePoint SharePointConfig
}

// Open returns the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sheets":
		s, err := NewSheetsStore(ctx, cfg.SheetURL, cfg.Worksheet)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sharepoint":
		s, err := NewSharePointStore(ctx, cfg.SharePoint)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, NewRecordStoreError("Open", fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend), cfg.Backend)
}
