package docsource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/recordstore"
	"invoicepipe/pkg/models"
)

// ErrSyncRunning is returned when a sync is requested while one is in progress.
var ErrSyncRunning = errors.New("sync already running")

// SyncResult summarizes one folder sync.
type SyncResult struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Syncer creates a default record for every folder node the store does not know yet.
type Syncer struct {
	source  Source
	store   recordstore.Store
	urlTmpl string
	log     zerolog.Logger

	running sync.Mutex
}

// NewSyncer creates a syncer. urlTemplate renders GCDocsURL (see NodeURL).
func NewSyncer(source Source, store recordstore.Store, urlTemplate string) *Syncer {
	return &Syncer{
		source:  source,
		store:   store,
		urlTmpl: urlTemplate,
		log:     logger.WithComponent("sync"),
	}
}

// Sync lists folder and creates missing records. Per-node failures are
// counted and reported through progress, never returned. progress may be nil.
func (s *Syncer) Sync(ctx context.Context, folder string, progress func(string)) (SyncResult, error) {
	const op = "Sync"

	if !s.running.TryLock() {
		return SyncResult{}, ErrSyncRunning
	}
	defer s.running.Unlock()

	emit := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		s.log.Info().Msg(msg)
		if progress != nil {
			progress(msg)
		}
	}

	nodes, err := s.source.ListFolder(ctx, folder)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%s: failed to list folder %s: %w", op, folder, err)
	}

	existing, err := s.store.List(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%s: failed to read record store: %w", op, err)
	}
	known := recordstore.NodeIDs(existing)

	res := SyncResult{Total: len(nodes)}
	emit("Found %d nodes in folder %s. Beginning sync...", res.Total, folder)

	for i, n := range nodes {
		if err := ctx.Err(); err != nil {
			emit("Sync interrupted after %d of %d nodes", i, res.Total)
			return res, err
		}

		if _, ok := known[n.ID]; ok {
			res.Skipped++
			emit("[%d/%d] Skipped %s (already present)", i+1, res.Total, n.Name)
			continue
		}

		rec := models.NewRecord(n.ID, n.Name, NodeURL(s.urlTmpl, n.ID))
		if _, err := s.store.Create(ctx, rec); err != nil {
			if errors.Is(err, recordstore.ErrDuplicateNode) {
				res.Skipped++
				emit("[%d/%d] Skipped %s (already present)", i+1, res.Total, n.Name)
				continue
			}
			res.Errors++
			emit("[%d/%d] Error syncing node %s (%s): %v", i+1, res.Total, n.ID, n.Name, err)
			continue
		}
		known[n.ID] = struct{}{}
		res.Created++
		emit("[%d/%d] Created record for %s", i+1, res.Total, n.Name)
	}

	emit("Sync complete. Total: %d, created: %d, skipped: %d (already present), errors: %d",
		res.Total, res.Created, res.Skipped, res.Errors)
	return res, nil
}
