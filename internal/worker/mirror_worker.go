package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"despesas/internal/amqp"
	"despesas/internal/query"
	"despesas/internal/sheets"
	"despesas/internal/storage"
)

// MirrorWorker copies the full expense list to an ExpenseMirror whenever an
// expense event arrives, and on a fixed interval as a backstop for lost
// events.
type MirrorWorker struct {
	store    storage.ExpenseStore
	mirror   sheets.ExpenseMirror
	interval time.Duration

	syncMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMirrorWorker(store storage.ExpenseStore, mirror sheets.ExpenseMirror, interval time.Duration) *MirrorWorker {
	return &MirrorWorker{
		store:    store,
		mirror:   mirror,
		interval: interval,
	}
}

// HandleExpenseEvent re-syncs the mirror. The event only tells that
// something changed; the store is the source of truth.
func (w *MirrorWorker) HandleExpenseEvent(ctx context.Context, ev amqp.ExpenseEvent) error {
	slog.InfoContext(ctx, "Processing expense event",
		"id", ev.ID,
		"action", ev.Action,
		"timestamp", ev.Timestamp)

	if err := w.Sync(ctx); err != nil {
		return fmt.Errorf("handle %s event for %s: %w", ev.Action, ev.ID, err)
	}
	return nil
}

// Sync writes every stored expense, newest first, to the mirror.
func (w *MirrorWorker) Sync(ctx context.Context) error {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	expenses, err := w.store.ListExpenses(ctx, query.Predicate{})
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}

	rows, err := w.mirror.ReplaceExpenses(ctx, expenses)
	if err != nil {
		return fmt.Errorf("replace mirrored expenses: %w", err)
	}

	slog.InfoContext(ctx, "Mirror synced", "rows", rows)
	return nil
}

// Start syncs once and then on every interval until Stop or ctx is done.
// A non-positive interval performs only the initial sync.
func (w *MirrorWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("mirror worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Mirror worker started", "interval", w.interval)
	return nil
}

// Stop signals the loop and waits for it to finish.
func (w *MirrorWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Mirror worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *MirrorWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *MirrorWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	w.syncLogged(ctx)
	if w.interval <= 0 {
		select {
		case <-w.stopCh:
		case <-ctx.Done():
		}
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.syncLogged(ctx)
		}
	}
}

func (w *MirrorWorker) syncLogged(ctx context.Context) {
	if err := w.Sync(ctx); err != nil {
		slog.ErrorContext(ctx, "Periodic mirror sync failed", "error", err)
	}
}
