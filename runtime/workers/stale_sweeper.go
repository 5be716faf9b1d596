package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	"github.com/libersoft-org/yellow-server-module-messages/transfer"
)

// StaleSweeperWorker periodically feeds the manager's sweep with the union of
// persisted non-terminal rows and everything resident in memory, deduplicated
// by id with the in-memory copy winning. Each pass is independent; stopping is
// just canceling the context.
type StaleSweeperWorker struct {
	manager  *transfer.Manager
	uploads  transfer.Persistence
	onStale  transfer.OnStaleRecord
	interval time.Duration
	log      *slog.Logger
}

func NewStaleSweeperWorker(
	manager *transfer.Manager,
	uploads transfer.Persistence,
	onStale transfer.OnStaleRecord,
	interval time.Duration,
	log *slog.Logger,
) *StaleSweeperWorker {
	return &StaleSweeperWorker{
		manager:  manager,
		uploads:  uploads,
		onStale:  onStale,
		interval: interval,
		log:      log,
	}
}

func (w *StaleSweeperWorker) Run(ctx context.Context) error {
	w.log.Debug("starting stale upload sweeper", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("stopping stale upload sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.sweepOnce()
		}
	}
}

func (w *StaleSweeperWorker) sweepOnce() {
	batch := w.manager.ResidentRecords()
	if w.uploads != nil {
		persisted, err := w.uploads.ListActive()
		if err != nil {
			w.log.Error("failed to list active uploads for sweep", "error", err)
		} else {
			batch = append(batch, persisted...)
		}
	}
	// Resident records come first, so UniqBy keeps the in-memory copy.
	batch = lo.UniqBy(batch, func(r *domain.FileUploadRecord) string { return r.ID })
	if len(batch) == 0 {
		return
	}
	w.manager.Sweep(batch, w.onStale)
}
