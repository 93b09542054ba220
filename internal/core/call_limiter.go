package core

// call_limiter.go caps how many diagnosis calls the process has in flight.
//
// Every orchestrator in the server shares one CallLimiter. When all slots are
// taken a call waits up to maxWait and then fails with ErrTooManyCalls.
// WaitForDrain lets shutdown block until in-flight calls finish.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyCalls is returned when no slot frees up within the wait limit.
var ErrTooManyCalls = errors.New("too many diagnosis calls in progress, please try again later")

const (
	DefaultMaxConcurrentCalls = 8
	DefaultMaxCallWait        = 10 * time.Second
)

// CallLimiter is a counting semaphore with drain support.
type CallLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.Mutex
	active int
	idle   chan struct{} // closed while active == 0
}

// NewCallLimiter allows at most maxConcurrent calls at once.
func NewCallLimiter(maxConcurrent int, maxWait time.Duration) *CallLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentCalls
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxCallWait
	}
	idle := make(chan struct{})
	close(idle)
	return &CallLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		idle:    idle,
	}
}

// Acquire takes a slot. The caller must Release it.
func (l *CallLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.enter()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyCalls
	}
}

// TryAcquire takes a slot without waiting.
func (l *CallLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.enter()
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *CallLimiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()
	<-l.slots
}

func (l *CallLimiter) enter() {
	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.mu.Unlock()
}

// Active returns the number of calls holding a slot.
func (l *CallLimiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// WaitForDrain blocks until no call holds a slot or ctx ends.
func (l *CallLimiter) WaitForDrain(ctx context.Context) error {
	for {
		l.mu.Lock()
		idle, active := l.idle, l.active
		l.mu.Unlock()
		if active == 0 {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CallLimiterStatus is a snapshot for the health endpoint.
type CallLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *CallLimiter) Status() CallLimiterStatus {
	active := l.Active()
	return CallLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}
