package core

// orchestrator.go drives one form's request lifecycle.
//
//	Idle ──Submit──▶ Pending ──ok──▶ Succeeded
//	                    │
//	                    └──error──▶ Failed
//
// Succeeded and Failed re-enter Pending on the next Submit. Each Submit gets
// a monotonic request id; a response whose id is no longer current is
// dropped and its caller receives ErrSuperseded. Under SupersedePending the
// older call's context is also cancelled.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle position of an orchestrator.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SubmitPolicy decides what a Submit does while another is pending.
type SubmitPolicy int

const (
	// SupersedePending cancels the in-flight call and starts the new one.
	SupersedePending SubmitPolicy = iota
	// RejectWhilePending refuses the new call with ErrSubmissionInFlight.
	RejectWhilePending
)

// ParseSubmitPolicy accepts "supersede" (or empty) and "reject".
func ParseSubmitPolicy(s string) (SubmitPolicy, bool) {
	switch s {
	case "", "supersede":
		return SupersedePending, true
	case "reject":
		return RejectWhilePending, true
	}
	return SupersedePending, false
}

// DefaultCallTimeout bounds a single diagnosis call.
const DefaultCallTimeout = 30 * time.Second

// State is a snapshot of an orchestrator.
type State[R any] struct {
	Phase         Phase
	Result        R     // set when Phase is PhaseSucceeded
	Err           error // set when Phase is PhaseFailed
	RequestID     uint64
	CorrelationID string
}

// Message is the user-visible error text for a failed state.
func (s State[R]) Message() string {
	if s.Phase != PhaseFailed || s.Err == nil {
		return ""
	}
	return MapError(s.Err).Message
}

// SendFunc performs the network call for a payload.
type SendFunc[P Payload, R any] func(ctx context.Context, payload P) (R, error)

// Orchestrator owns the state of one submitting view. It is safe for
// concurrent use.
type Orchestrator[P Payload, R any] struct {
	name    string
	send    SendFunc[P, R]
	timeout time.Duration
	policy  SubmitPolicy
	limiter *CallLimiter
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	seq    uint64
	state  State[R]
	cancel context.CancelFunc
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestratorOptions)

type orchestratorOptions struct {
	timeout time.Duration
	policy  SubmitPolicy
	limiter *CallLimiter
	logger  *slog.Logger
}

// WithTimeout bounds each call. Zero or less disables the bound.
func WithTimeout(d time.Duration) OrchestratorOption {
	return func(o *orchestratorOptions) { o.timeout = d }
}

// WithSubmitPolicy sets the resubmission policy.
func WithSubmitPolicy(p SubmitPolicy) OrchestratorOption {
	return func(o *orchestratorOptions) { o.policy = p }
}

// WithCallLimiter gates calls through a shared limiter.
func WithCallLimiter(l *CallLimiter) OrchestratorOption {
	return func(o *orchestratorOptions) { o.limiter = l }
}

// WithLogger sets the logger used for transitions.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *orchestratorOptions) { o.logger = l }
}

// NewOrchestrator returns an idle orchestrator that sends through send.
func NewOrchestrator[P Payload, R any](name string, send SendFunc[P, R], opts ...OrchestratorOption) *Orchestrator[P, R] {
	o := orchestratorOptions{timeout: DefaultCallTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Orchestrator[P, R]{
		name:    name,
		send:    send,
		timeout: o.timeout,
		policy:  o.policy,
		limiter: o.limiter,
		logger:  o.logger.With("orchestrator", name),
		now:     time.Now,
	}
}

// State returns the current snapshot.
func (o *Orchestrator[P, R]) State() State[R] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Submit sends payload and blocks until the call settles.
//
// The returned state is the settled state of this submission. Request
// failures are reported in the state, not as an error. The error is non-nil
// only when the submission was refused (ErrSubmissionInFlight) or replaced
// by a newer one (ErrSuperseded).
func (o *Orchestrator[P, R]) Submit(ctx context.Context, payload P) (State[R], error) {
	if payload.Len() == 0 {
		return o.Reject(&EmptyPayloadError{})
	}

	id, corr, callCtx, err := o.begin(ctx)
	if err != nil {
		return o.State(), err
	}
	defer o.release(id)

	start := o.now()
	o.logger.Debug("diagnosis call started",
		"request_id", id,
		"correlation_id", corr,
		"records", payload.Len(),
	)

	result, sendErr := o.call(callCtx, payload)

	o.mu.Lock()
	defer o.mu.Unlock()

	if id != o.seq {
		o.logger.Debug("stale diagnosis response discarded",
			"request_id", id,
			"current_id", o.seq,
		)
		return o.state, ErrSuperseded
	}

	if sendErr != nil {
		o.state = State[R]{Phase: PhaseFailed, Err: sendErr, RequestID: id, CorrelationID: corr}
		o.logger.Warn("diagnosis call failed",
			"request_id", id,
			"correlation_id", corr,
			"duration_ms", o.now().Sub(start).Milliseconds(),
			"error", sendErr,
		)
		return o.state, nil
	}

	o.state = State[R]{Phase: PhaseSucceeded, Result: result, RequestID: id, CorrelationID: corr}
	o.logger.Info("diagnosis call succeeded",
		"request_id", id,
		"correlation_id", corr,
		"duration_ms", o.now().Sub(start).Milliseconds(),
	)
	return o.state, nil
}

// Reject records a failure that happened before any call could be made,
// such as a parse or validation error. It counts as a submission, so it
// follows the submit policy and supersedes a pending call.
func (o *Orchestrator[P, R]) Reject(err error) (State[R], error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase == PhasePending && o.policy == RejectWhilePending {
		return o.state, ErrSubmissionInFlight
	}
	o.supersedeLocked()
	o.seq++
	o.state = State[R]{Phase: PhaseFailed, Err: err, RequestID: o.seq}
	o.logger.Info("submission rejected before send", "request_id", o.seq, "error", err)
	return o.state, nil
}

// Reset cancels any pending call and returns to Idle.
func (o *Orchestrator[P, R]) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.supersedeLocked()
	o.seq++
	o.state = State[R]{Phase: PhaseIdle}
}

func (o *Orchestrator[P, R]) begin(ctx context.Context) (uint64, string, context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase == PhasePending && o.policy == RejectWhilePending {
		return 0, "", nil, ErrSubmissionInFlight
	}
	o.supersedeLocked()

	o.seq++
	id := o.seq
	corr := uuid.NewString()

	var callCtx context.Context
	var cancel context.CancelFunc
	if o.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	o.cancel = cancel
	o.state = State[R]{Phase: PhasePending, RequestID: id, CorrelationID: corr}

	return id, corr, ContextWithCorrelationID(callCtx, corr), nil
}

// release cancels the call context once the call has settled. The cancel
// func is cleared only if it still belongs to this request.
func (o *Orchestrator[P, R]) release(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if id == o.seq && o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator[P, R]) supersedeLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator[P, R]) call(ctx context.Context, payload P) (R, error) {
	if o.limiter != nil {
		if err := o.limiter.Acquire(ctx); err != nil {
			var zero R
			return zero, err
		}
		defer o.limiter.Release()
	}
	return o.send(ctx, payload)
}
