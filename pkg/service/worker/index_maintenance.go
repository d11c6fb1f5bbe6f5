package worker

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

// Persister is the part of the vector index the worker flushes
type Persister interface {
	Dirty() bool
	Persist(ctx context.Context) error
}

// Reconciler repairs drift between the knowledge store and the vector index
type Reconciler interface {
	ReconcileIndex(ctx context.Context) (added, removed int, err error)
}

// IndexMaintenanceWorker persists the vector index when it changed and
// periodically reconciles it with the knowledge store
//
// Architecture assumptions:
// - Single server instance owns the index file (no distributed locking)
type IndexMaintenanceWorker struct {
	index             Persister
	reconciler        Reconciler
	flushInterval     time.Duration
	reconcileInterval time.Duration
	stopCh            chan struct{}
	doneCh            chan struct{}
}

// NewIndexMaintenanceWorker creates a worker. reconcileInterval <= 0 disables
// periodic reconciliation; reconciler may then be nil.
func NewIndexMaintenanceWorker(index Persister, reconciler Reconciler, flushInterval, reconcileInterval time.Duration) *IndexMaintenanceWorker {
	return &IndexMaintenanceWorker{
		index:             index,
		reconciler:        reconciler,
		flushInterval:     flushInterval,
		reconcileInterval: reconcileInterval,
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
}

// Start begins the background loop without blocking
func (w *IndexMaintenanceWorker) Start(ctx context.Context) error {
	if w.flushInterval <= 0 {
		return goerr.New("flush interval must be positive", goerr.V("interval", w.flushInterval))
	}
	if w.reconcileInterval > 0 && w.reconciler == nil {
		return goerr.New("reconciler is required when reconcile interval is set")
	}

	logging.Default().Info("index maintenance worker starting",
		"flush_interval", w.flushInterval.String(),
		"reconcile_interval", w.reconcileInterval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop, waits for it, and persists a final time
func (w *IndexMaintenanceWorker) Stop() {
	logging.Default().Info("index maintenance worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("index maintenance worker stopped")
}

func (w *IndexMaintenanceWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	flush := time.NewTicker(w.flushInterval)
	defer flush.Stop()

	// nil channel never fires
	var reconcileC <-chan time.Time
	if w.reconcileInterval > 0 {
		reconcile := time.NewTicker(w.reconcileInterval)
		defer reconcile.Stop()
		reconcileC = reconcile.C
	}

	for {
		select {
		case <-flush.C:
			if err := w.flush(ctx); err != nil {
				logging.Default().Error("index persist failed (will retry next interval)",
					"error", err.Error())
			}

		case <-reconcileC:
			if err := w.reconcile(ctx); err != nil {
				logging.Default().Error("index reconciliation failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			logging.Default().Info("index maintenance worker received stop signal")
			w.finalFlush(ctx)
			return

		case <-ctx.Done():
			logging.Default().Info("index maintenance worker context cancelled")
			w.finalFlush(ctx)
			return
		}
	}
}

func (w *IndexMaintenanceWorker) finalFlush(ctx context.Context) {
	if err := w.flush(context.WithoutCancel(ctx)); err != nil {
		logging.Default().Error("final index persist failed", "error", err.Error())
	}
}

func (w *IndexMaintenanceWorker) flush(ctx context.Context) error {
	if !w.index.Dirty() {
		return nil
	}

	startTime := time.Now()
	if err := w.index.Persist(ctx); err != nil {
		return goerr.Wrap(err, "failed to persist vector index")
	}

	logging.Default().Debug("vector index flushed", "duration", time.Since(startTime).String())
	return nil
}

func (w *IndexMaintenanceWorker) reconcile(ctx context.Context) error {
	startTime := time.Now()

	added, removed, err := w.reconciler.ReconcileIndex(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to reconcile vector index")
	}

	if added > 0 || removed > 0 {
		logging.Default().Warn("vector index drift repaired",
			"added", added,
			"removed", removed,
			"duration", time.Since(startTime).String())
	}
	return nil
}
