package realtime

import "sync"

// Handler receives inbound channel messages for one event name.
type Handler func(msg Message)

// Subscription identifies a registered handler so it can be removed.
type Subscription int

// registry is the source of truth for who is listening. It is owned by the
// Channel, not by any particular connection: handlers registered before a
// connection exists, or across reconnects, are never lost because the
// transport is merely replayed into the registry.
type registry struct {
	mu       sync.RWMutex
	nextID   Subscription
	handlers map[string]map[Subscription]Handler
}

func newRegistry() *registry {
	return &registry{
		handlers: make(map[string]map[Subscription]Handler),
	}
}

func (r *registry) on(event string, handler Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	subs, ok := r.handlers[event]
	if !ok {
		subs = make(map[Subscription]Handler)
		r.handlers[event] = subs
	}
	subs[id] = handler
	return id
}

func (r *registry) off(event string, id Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subs, ok := r.handlers[event]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.handlers, event)
		}
	}
}

// dispatch invokes every handler registered for the event, sequentially.
func (r *registry) dispatch(msg Message) {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.handlers[msg.Event]))
	for _, h := range r.handlers[msg.Event] {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}
