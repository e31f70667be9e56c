package engine

import "sync"

// Status is the process-wide sync indicator consumed by UI badges. It is
// derived and ephemeral, never persisted.
type Status string

const (
	// StatusSynced means the last cycle completed and nothing is pending.
	StatusSynced Status = "synced"

	// StatusPending means a cycle is running or local mutations await push.
	StatusPending Status = "pending"

	// StatusConflict means the last pull hit an unrecoverable failure.
	// Per-record merge decisions are not conflicts; they are resolved
	// outcomes.
	StatusConflict Status = "conflict"

	// StatusOffline means the gate is closed (no network, or account not
	// verified; see StatusEvent.Reason).
	StatusOffline Status = "offline"
)

// StatusEvent is delivered to subscribers on every status change.
type StatusEvent struct {
	Status Status

	// Reason is set when Status is StatusOffline.
	Reason GateReason

	// Pending is the queue length at the time of the change.
	Pending int
}

// Subscription identifies a status subscriber for Unsubscribe.
type Subscription int

// statusHub fans status changes out to UI subscribers. Callbacks run on the
// notifying goroutine and must be quick.
type statusHub struct {
	mu          sync.Mutex
	current     StatusEvent
	nextID      Subscription
	subscribers map[Subscription]func(StatusEvent)
}

func newStatusHub() *statusHub {
	return &statusHub{
		current:     StatusEvent{Status: StatusOffline, Reason: GateOffline},
		subscribers: make(map[Subscription]func(StatusEvent)),
	}
}

func (h *statusHub) subscribe(fn func(StatusEvent)) Subscription {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subscribers[id] = fn
	current := h.current
	h.mu.Unlock()

	// New subscribers learn the current state immediately.
	fn(current)
	return id
}

func (h *statusHub) unsubscribe(id Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}

func (h *statusHub) get() StatusEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// set records the new state and notifies subscribers if anything changed.
func (h *statusHub) set(event StatusEvent) {
	h.mu.Lock()
	if event == h.current {
		h.mu.Unlock()
		return
	}
	h.current = event
	subs := make([]func(StatusEvent), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}
