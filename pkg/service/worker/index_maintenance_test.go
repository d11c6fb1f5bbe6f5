package worker_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nik45114/kbcore/pkg/service/worker"
)

type mockIndex struct {
	mu       sync.Mutex
	dirty    bool
	persists int
	err      error
}

func (m *mockIndex) setDirty(dirty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = dirty
}

func (m *mockIndex) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockIndex) persistCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persists
}

func (m *mockIndex) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

func (m *mockIndex) Persist(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.persists++
	m.dirty = false
	return nil
}

type mockReconciler struct {
	mu    sync.Mutex
	calls int
}

func (m *mockReconciler) ReconcileIndex(ctx context.Context) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return 1, 0, nil
}

func (m *mockReconciler) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestIndexMaintenanceWorker_PersistsWhenDirty(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{dirty: true}

	w := worker.NewIndexMaintenanceWorker(idx, nil, 20*time.Millisecond, 0)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	// clean index is never rewritten
	if got := idx.persistCount(); got != 1 {
		t.Fatalf("expected 1 persist, got %d", got)
	}

	idx.setDirty(true)
	time.Sleep(100 * time.Millisecond)

	if got := idx.persistCount(); got != 2 {
		t.Errorf("expected 2 persists after index changed, got %d", got)
	}
}

func TestIndexMaintenanceWorker_FinalPersistOnStop(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{}

	w := worker.NewIndexMaintenanceWorker(idx, nil, time.Hour, 0)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	idx.setDirty(true)
	w.Stop()

	if got := idx.persistCount(); got != 1 {
		t.Errorf("expected final persist on stop, got %d persists", got)
	}
}

func TestIndexMaintenanceWorker_HandlesPersistErrors(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{dirty: true}
	idx.setErr(fmt.Errorf("disk full"))

	w := worker.NewIndexMaintenanceWorker(idx, nil, 20*time.Millisecond, 0)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer w.Stop()

	time.Sleep(60 * time.Millisecond)
	if got := idx.persistCount(); got != 0 {
		t.Fatalf("expected no successful persist, got %d", got)
	}

	// worker keeps running and succeeds once the error clears
	idx.setErr(nil)
	time.Sleep(60 * time.Millisecond)

	if got := idx.persistCount(); got != 1 {
		t.Errorf("expected persist after error cleared, got %d", got)
	}
}

func TestIndexMaintenanceWorker_PeriodicReconcile(t *testing.T) {
	ctx := context.Background()
	idx := &mockIndex{}
	rec := &mockReconciler{}

	w := worker.NewIndexMaintenanceWorker(idx, rec, time.Hour, 30*time.Millisecond)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer w.Stop()

	time.Sleep(120 * time.Millisecond)

	if got := rec.callCount(); got < 2 {
		t.Errorf("expected at least 2 reconciliations, got %d", got)
	}
}

func TestIndexMaintenanceWorker_RejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()

	w := worker.NewIndexMaintenanceWorker(&mockIndex{}, nil, 0, 0)
	if err := w.Start(ctx); err == nil {
		t.Error("expected error for zero flush interval")
	}

	w = worker.NewIndexMaintenanceWorker(&mockIndex{}, nil, time.Second, time.Second)
	if err := w.Start(ctx); err == nil {
		t.Error("expected error for missing reconciler")
	}
}

func TestIndexMaintenanceWorker_StopsCleanly(t *testing.T) {
	ctx := context.Background()
	w := worker.NewIndexMaintenanceWorker(&mockIndex{}, &mockReconciler{}, 100*time.Millisecond, 100*time.Millisecond)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	stopStart := time.Now()
	w.Stop()
	if d := time.Since(stopStart); d > time.Second {
		t.Errorf("Stop() took too long: %v", d)
	}
}
