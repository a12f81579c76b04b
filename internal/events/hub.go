// Package events implements a typed publish/subscribe hub for connection
// lifecycle events.
//
// Handlers run synchronously on the publishing goroutine in registration
// order. A handler that panics is logged and skipped; the remaining handlers
// still see the event.
package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives published events.
type Handler func(Event)

// Token identifies a registration for Unsubscribe.
type Token uint64

type registration struct {
	token   Token
	handler Handler
}

// Hub is a registry of handlers keyed by event kind.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	next     Token
	handlers map[Kind][]registration
}

// NewHub creates an empty hub. Handler panics are reported to logger.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger.With("component", "events"),
		handlers: make(map[Kind][]registration),
	}
}

// Subscribe registers handler for kind.
func (h *Hub) Subscribe(kind Kind, handler Handler) Token {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	h.handlers[kind] = append(h.handlers[kind], registration{token: h.next, handler: handler})
	return h.next
}

// Unsubscribe removes the registration for token. It reports whether a
// registration was removed.
func (h *Hub) Unsubscribe(token Token) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for kind, regs := range h.handlers {
		for i, r := range regs {
			if r.token != token {
				continue
			}
			// Copy so in-flight Publish snapshots are unaffected.
			updated := make([]registration, 0, len(regs)-1)
			updated = append(updated, regs[:i]...)
			updated = append(updated, regs[i+1:]...)
			if len(updated) == 0 {
				delete(h.handlers, kind)
			} else {
				h.handlers[kind] = updated
			}
			return true
		}
	}
	return false
}

// Publish delivers ev to every handler registered for its kind.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	regs := h.handlers[ev.Kind()]
	h.mu.RUnlock()

	for _, r := range regs {
		h.invoke(r, ev)
	}
}

// Count returns the number of handlers registered for kind.
func (h *Hub) Count(kind Kind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[kind])
}

func (h *Hub) invoke(r registration, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("event handler panicked",
				"kind", ev.Kind(),
				"token", r.token,
				"panic", fmt.Sprint(p),
			)
		}
	}()
	r.handler(ev)
}
