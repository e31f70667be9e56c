// Package engine orchestrates synchronization between the local store and
// the remote backend.
//
// Control flow:
//
//	UI mutation → Submit() → local store write (optimistic) → sync queue
//	                                                              ↓
//	SyncAll(): push phase (drain queue → remote client)
//	           pull phase (remote list → conflict resolver → local store)
//
// The engine owns all of its state explicitly (the single-flight flag, the
// status hub, the periodic timer) so independent instances can coexist in
// tests. Sync runs when one of the triggers fires: the device comes back
// online, the app becomes visible, the periodic interval elapses, a mutation
// is submitted while the gate is open, or the user forces a sync.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fintrackapp/fintrack/internal/merge"
	"github.com/fintrackapp/fintrack/internal/model"
	"github.com/fintrackapp/fintrack/internal/remote"
	"github.com/fintrackapp/fintrack/internal/store"
)

// ErrSyncInFlight is returned when SyncAll is called while a cycle is
// already running. The in-progress cycle covers the caller's intent.
var ErrSyncInFlight = errors.New("sync already in flight")

// ErrGateClosed is returned by ForceSync when the gate blocks sync. The
// automatic triggers treat a closed gate as a silent deferral instead.
var ErrGateClosed = errors.New("sync gate is closed")

// Remote is the slice of the remote client the engine needs. Satisfied by
// *remote.Client.
type Remote interface {
	List(ctx context.Context, table model.Table) ([]remote.Record, error)
	Create(ctx context.Context, table model.Table, payload json.RawMessage) (*remote.Record, error)
	Update(ctx context.Context, table model.Table, cloudID string, payload json.RawMessage) (*remote.Record, error)
	Delete(ctx context.Context, table model.Table, cloudID string) error
}

// FailureFunc reports a permanently failed queue item (retries exhausted).
// The owning UI is responsible for telling the user the change was not saved
// remotely.
type FailureFunc func(table model.Table, op model.Op, recordID string, err error)

// Config holds configuration for the engine.
type Config struct {
	Store  *store.Store
	Remote Remote
	Gate   *Gate

	// Interval is the periodic sync trigger (default: 60s).
	Interval time.Duration

	// OnPermanentFailure, if set, receives items dropped after the retry
	// ceiling.
	OnPermanentFailure FailureFunc

	// Logger for engine activity (default: stderr logger).
	Logger *log.Logger
}

// Engine coordinates push, pull, and merge. One instance per session.
type Engine struct {
	store  *store.Store
	queue  *store.Queue
	remote Remote
	gate   *Gate
	status *statusHub

	interval  time.Duration
	onFailure FailureFunc
	logger    *log.Logger

	mu       sync.Mutex
	inFlight bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine.
func New(config *Config) (*Engine, error) {
	if config == nil || config.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config.Remote == nil {
		return nil, fmt.Errorf("remote client cannot be nil")
	}
	if config.Gate == nil {
		return nil, fmt.Errorf("gate cannot be nil")
	}

	interval := config.Interval
	if interval == 0 {
		interval = 60 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	return &Engine{
		store:     config.Store,
		queue:     config.Store.Queue(),
		remote:    config.Remote,
		gate:      config.Gate,
		status:    newStatusHub(),
		interval:  interval,
		onFailure: config.OnPermanentFailure,
		logger:    logger,
	}, nil
}

// Start launches the periodic sync timer and attempts an initial sync.
// Stop (or Logout) releases the timer.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	if e.cancel != nil {
		e.runMu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.runMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		// Initial sync on startup; a closed gate is a silent deferral.
		e.trigger(runCtx, "startup")

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				e.trigger(runCtx, "interval")
			}
		}
	}()
}

// Stop halts the periodic timer and waits for the background goroutine.
// An in-flight cycle is not aborted; it finishes on its own.
func (e *Engine) Stop() {
	e.runMu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.runMu.Unlock()

	if cancel != nil {
		cancel()
		e.wg.Wait()
	}
}

// trigger runs SyncAll and logs the outcome; used by all automatic triggers,
// for which neither a closed gate nor an in-flight cycle is an error.
func (e *Engine) trigger(ctx context.Context, cause string) {
	err := e.SyncAll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInFlight), errors.Is(err, ErrGateClosed):
	default:
		e.logger.Printf("Sync (%s) failed: %v", cause, err)
	}
}

// Submit applies a local mutation: optimistic store write, durable enqueue,
// and, if the gate happens to be open, an immediate async sync. This is the
// narrow interface the CRUD layer consumes.
func (e *Engine) Submit(ctx context.Context, table model.Table, op model.Op, rec *model.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}

	t := e.store.Table(table)

	switch op {
	case model.OpCreate, model.OpUpdate:
		rec.UpdatedAt = time.Now()
		if err := t.Put(ctx, rec); err != nil {
			return err
		}
		if _, err := e.queue.Enqueue(ctx, table, op, rec.ID, rec.Data); err != nil {
			return err
		}

	case model.OpDelete:
		if err := t.Delete(ctx, rec.ID); err != nil {
			return err
		}
		if rec.CloudID == "" {
			// Never pushed: nothing remote to delete. Drop any queued
			// ops for the record instead of enqueueing a delete.
			return e.dropQueuedOps(ctx, table, rec.ID)
		}
		payload, _ := json.Marshal(map[string]string{"cloud_id": rec.CloudID})
		if _, err := e.queue.Enqueue(ctx, table, op, rec.ID, payload); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown operation %q", op)
	}

	e.notifyPending(ctx)

	if e.gate.CanSync() {
		go e.trigger(context.WithoutCancel(ctx), "enqueue")
	}
	return nil
}

// dropQueuedOps removes pending queue items for a record that was deleted
// before ever reaching the server.
func (e *Engine) dropQueuedOps(ctx context.Context, table model.Table, recordID string) error {
	items, err := e.queue.Drain(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Table == table && item.RecordID == recordID {
			if err := e.queue.Remove(ctx, item.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// SyncAll runs one full push+pull cycle.
//
// At most one cycle is in flight at a time; concurrent callers get
// ErrSyncInFlight immediately, before any I/O. A closed gate returns
// ErrGateClosed and sets the offline status. Failures inside a single queue
// item or a single table's pull never abort the cycle; partial progress is
// kept, and the next cycle resumes rather than rolls back.
func (e *Engine) SyncAll(ctx context.Context) error {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrSyncInFlight
	}
	e.inFlight = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	if !e.gate.CanSync() {
		e.setStatus(ctx, StatusOffline)
		return ErrGateClosed
	}

	e.setStatus(ctx, StatusPending)

	e.pushPhase(ctx)

	pullFailed := e.pullPhase(ctx)
	if pullFailed {
		e.setStatus(ctx, StatusConflict)
		return fmt.Errorf("pull phase had unrecoverable failures")
	}

	if err := e.store.SetLastSyncedAt(ctx, time.Now()); err != nil {
		e.logger.Printf("Failed to record sync time: %v", err)
	}

	pending, err := e.queue.Len(ctx)
	if err != nil {
		e.logger.Printf("Failed to read queue length: %v", err)
	}
	if pending > 0 {
		e.setStatus(ctx, StatusPending)
	} else {
		e.setStatus(ctx, StatusSynced)
	}
	return nil
}

// pushPhase drains the queue to the remote client. Items are processed
// sequentially in enqueue order, which preserves per-record ordering; a
// failed item is requeued with bounded retries and does not block the rest.
func (e *Engine) pushPhase(ctx context.Context) {
	items, err := e.queue.Drain(ctx)
	if err != nil {
		e.logger.Printf("Failed to drain queue: %v", err)
		return
	}

	for _, item := range items {
		if err := e.pushItem(ctx, item); err != nil {
			e.logger.Printf("Push %s %s/%s failed: %v", item.Op, item.Table, item.RecordID, err)
			e.requeueOrDrop(ctx, item, err)
			continue
		}
		if err := e.queue.Remove(ctx, item.ID); err != nil {
			e.logger.Printf("Failed to ack queue item %s: %v", item.ID, err)
		}
	}
}

// pushItem sends one queued mutation to the remote client.
func (e *Engine) pushItem(ctx context.Context, item *store.QueueItem) error {
	t := e.store.Table(item.Table)

	switch item.Op {
	case model.OpCreate:
		local, err := t.Get(ctx, item.RecordID)
		if errors.Is(err, store.ErrNotFound) {
			// Deleted locally before the create was pushed; nothing to do.
			return nil
		}
		if err != nil {
			return err
		}
		if local.CloudID != "" {
			// A previous attempt reached the server even though the
			// response was lost. Pushing again as an update keeps the
			// create idempotent.
			_, err := e.remote.Update(ctx, item.Table, local.CloudID, item.Payload)
			return err
		}
		created, err := e.remote.Create(ctx, item.Table, item.Payload)
		if err != nil {
			return err
		}
		return t.SetCloudID(ctx, item.RecordID, created.ID)

	case model.OpUpdate:
		local, err := t.Get(ctx, item.RecordID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if local.CloudID == "" {
			// The preceding create has not been acknowledged yet. FIFO
			// ordering means it is earlier in this same drain; hitting
			// this state means the create failed, so fail the update
			// into the retry path too.
			return fmt.Errorf("record %s has no cloud_id yet", item.RecordID)
		}
		_, err = e.remote.Update(ctx, item.Table, local.CloudID, item.Payload)
		return err

	case model.OpDelete:
		var payload struct {
			CloudID string `json:"cloud_id"`
		}
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return fmt.Errorf("bad delete payload: %w", err)
		}
		if payload.CloudID == "" {
			return nil
		}
		return e.remote.Delete(ctx, item.Table, payload.CloudID)

	default:
		return fmt.Errorf("unknown operation %q", item.Op)
	}
}

// requeueOrDrop requeues a failed item; past the retry ceiling it is dropped
// and reported as a permanent failure.
func (e *Engine) requeueOrDrop(ctx context.Context, item *store.QueueItem, cause error) {
	err := e.queue.RequeueWithBackoff(ctx, item)
	if errors.Is(err, store.ErrRetriesExhausted) {
		e.logger.Printf("Dropping %s %s/%s after %d attempts: %v",
			item.Op, item.Table, item.RecordID, item.Retries, cause)
		if e.onFailure != nil {
			e.onFailure(item.Table, item.Op, item.RecordID, cause)
		}
		return
	}
	if err != nil {
		e.logger.Printf("Failed to requeue item %s: %v", item.ID, err)
	}
}

// pullPhase fetches the authoritative state for every table and merges it
// into the local store. Returns true if any table failed outright.
func (e *Engine) pullPhase(ctx context.Context) bool {
	failed := false
	for _, table := range model.Tables() {
		if err := e.PullTable(ctx, table); err != nil {
			e.logger.Printf("Pull %s failed: %v", table, err)
			failed = true
		}
	}
	return failed
}

// PullTable re-pulls a single entity table and merges it. Realtime change
// notifications call this directly so the conflict resolver stays the single
// source of truth for what gets written locally; the push payload itself is
// never trusted blindly.
func (e *Engine) PullTable(ctx context.Context, table model.Table) error {
	records, err := e.remote.List(ctx, table)
	if err != nil {
		return err
	}

	t := e.store.Table(table)

	// Merges apply one record at a time; no two merges for the same
	// cloud_id can race.
	for _, rem := range records {
		if err := e.mergeRecord(ctx, t, rem); err != nil {
			e.logger.Printf("Merge %s/%s failed: %v", table, rem.ID, err)
		}
	}
	return nil
}

// mergeRecord applies the resolver's verdict for one pulled record. The
// engine must never overwrite a record the resolver decided to Ignore.
func (e *Engine) mergeRecord(ctx context.Context, t store.Table, rem remote.Record) error {
	local, err := t.GetByCloudID(ctx, rem.ID)
	if errors.Is(err, store.ErrNotFound) {
		local = nil
	} else if err != nil {
		return err
	}

	switch action := merge.Resolve(local, rem); action {
	case merge.ActionInsert:
		return t.Put(ctx, merge.Apply(action, nil, rem, newLocalID()))
	case merge.ActionUpdate:
		return t.Put(ctx, merge.Apply(action, local, rem, ""))
	default:
		// Ignore: local value wins and will be pushed on a later cycle.
		return nil
	}
}

// setStatus recomputes the status event and notifies subscribers.
func (e *Engine) setStatus(ctx context.Context, status Status) {
	pending, err := e.queue.Len(ctx)
	if err != nil {
		pending = 0
	}
	event := StatusEvent{Status: status, Pending: pending}
	if status == StatusOffline {
		event.Reason = e.gate.Reason()
	}
	e.status.set(event)
}

// notifyPending refreshes the pending count on the current status.
func (e *Engine) notifyPending(ctx context.Context) {
	current := e.status.get()
	e.setStatus(ctx, current.Status)
}

// NotifyOnline feeds the network reachability signal. A transition from
// offline to online triggers a sync.
func (e *Engine) NotifyOnline(ctx context.Context, online bool) {
	wasOpen := e.gate.CanSync()
	e.gate.SetOnline(online)

	if !online {
		e.setStatus(ctx, StatusOffline)
		return
	}
	if !wasOpen && e.gate.CanSync() {
		go e.trigger(context.WithoutCancel(ctx), "online")
	}
}

// NotifyVisible signals that the app regained user visibility, which
// triggers a sync.
func (e *Engine) NotifyVisible(ctx context.Context) {
	go e.trigger(context.WithoutCancel(ctx), "visible")
}

// ForceSync is the user-initiated trigger. Unlike the automatic triggers it
// surfaces a closed gate as an error the UI can show.
func (e *Engine) ForceSync(ctx context.Context) error {
	if !e.gate.CanSync() {
		e.setStatus(ctx, StatusOffline)
		return fmt.Errorf("%w: %s", ErrGateClosed, e.gate.Reason())
	}
	err := e.SyncAll(ctx)
	if errors.Is(err, ErrSyncInFlight) {
		return nil
	}
	return err
}

// Logout tears the session down: timers stopped, queue discarded, every
// entity table and sync marker cleared. Local data never outlives the
// session that owns it.
func (e *Engine) Logout(ctx context.Context) error {
	e.Stop()
	if err := e.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear local data: %w", err)
	}
	e.setStatus(ctx, StatusOffline)
	return nil
}

// Subscribe registers a status callback. The callback immediately receives
// the current state, then every change.
func (e *Engine) Subscribe(fn func(StatusEvent)) Subscription {
	return e.status.subscribe(fn)
}

// Unsubscribe removes a status callback.
func (e *Engine) Unsubscribe(id Subscription) {
	e.status.unsubscribe(id)
}

// Status returns the current status event.
func (e *Engine) Status() StatusEvent {
	return e.status.get()
}

// PendingCount returns the number of queued, unacknowledged mutations.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.queue.Len(ctx)
}

// newLocalID generates a local identifier for records inserted from remote.
func newLocalID() string {
	return uuid.NewString()
}
