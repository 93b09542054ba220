package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHandoffTTL is how long an unclaimed result waits for its view.
const DefaultHandoffTTL = 10 * time.Minute

// Handoff passes a result from the view that produced it to the view that
// renders it. Each token can be taken exactly once; unclaimed entries expire.
type Handoff[T any] struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*handoffEntry[T]
}

type handoffEntry[T any] struct {
	value T
	timer *time.Timer
}

// NewHandoff returns an empty store.
func NewHandoff[T any](ttl time.Duration) *Handoff[T] {
	if ttl <= 0 {
		ttl = DefaultHandoffTTL
	}
	return &Handoff[T]{ttl: ttl, entries: make(map[string]*handoffEntry[T])}
}

// Put stores v and returns the token that claims it.
func (h *Handoff[T]) Put(v T) string {
	token := uuid.NewString()
	e := &handoffEntry[T]{value: v}

	h.mu.Lock()
	h.entries[token] = e
	e.timer = time.AfterFunc(h.ttl, func() { h.expire(token, e) })
	h.mu.Unlock()

	return token
}

// Take returns and removes the value for token. ok is false for unknown,
// expired, or already taken tokens.
func (h *Handoff[T]) Take(token string) (v T, ok bool) {
	h.mu.Lock()
	e, found := h.entries[token]
	if found {
		delete(h.entries, token)
	}
	h.mu.Unlock()

	if !found {
		return v, false
	}
	e.timer.Stop()
	return e.value, true
}

// Len returns the number of unclaimed entries.
func (h *Handoff[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Close drops every entry and stops their timers.
func (h *Handoff[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for token, e := range h.entries {
		e.timer.Stop()
		delete(h.entries, token)
	}
}

func (h *Handoff[T]) expire(token string, e *handoffEntry[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.entries[token]; ok && cur == e {
		delete(h.entries, token)
	}
}
