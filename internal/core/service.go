package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Diagnoser is the remote classifier.
type Diagnoser interface {
	Diagnose(ctx context.Context, req SingleRequest) (DiagnosisResult, error)
	DiagnoseBatch(ctx context.Context, req BatchRequest) (BatchResult, error)
}

// ServiceConfig tunes a Service. Zero fields take defaults.
type ServiceConfig struct {
	CallTimeout      time.Duration
	SubmitPolicy     SubmitPolicy
	ValidationPolicy ValidationPolicy
	MaxUploadBytes   int64
	SessionTTL       time.Duration
	ResultTTL        time.Duration
}

// DefaultSessionTTL is how long an idle session keeps its orchestrators.
const DefaultSessionTTL = 30 * time.Minute

// DefaultMaxUploadBytes caps batch uploads.
const DefaultMaxUploadBytes = 10 << 20

// Service ties ingestion, orchestration and interpretation together for
// any frontend. Each session gets its own pair of orchestrators, one per form.
type Service struct {
	client  Diagnoser
	audit   AuditSink
	limiter *CallLimiter
	cfg     ServiceConfig
	results *Handoff[DiagnosisResult]
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	single   *Orchestrator[SingleRequest, DiagnosisResult]
	batch    *Orchestrator[BatchRequest, BatchResult]
	lastSeen time.Time
}

// pending reports whether either form still has a call in flight.
func (s *session) pending() bool {
	return s.single.State().Phase == PhasePending || s.batch.State().Phase == PhasePending
}

// NewService returns a Service. audit and limiter may be nil.
func NewService(client Diagnoser, audit AuditSink, limiter *CallLimiter, cfg ServiceConfig) *Service {
	if audit == nil {
		audit = NopAudit{}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		client:   client,
		audit:    audit,
		limiter:  limiter,
		cfg:      cfg,
		results:  NewHandoff[DiagnosisResult](cfg.ResultTTL),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Limiter returns the shared call limiter, or nil.
func (s *Service) Limiter() *CallLimiter { return s.limiter }

// MaxUploadBytes is the effective upload cap.
func (s *Service) MaxUploadBytes() int64 { return s.cfg.MaxUploadBytes }

func (s *Service) session(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		opts := []OrchestratorOption{
			WithTimeout(s.cfg.CallTimeout),
			WithSubmitPolicy(s.cfg.SubmitPolicy),
			WithCallLimiter(s.limiter),
		}
		sess = &session{
			single: NewOrchestrator[SingleRequest, DiagnosisResult]("single", s.client.Diagnose, opts...),
			batch:  NewOrchestrator[BatchRequest, BatchResult]("batch", s.client.DiagnoseBatch, opts...),
		}
		s.sessions[id] = sess
	}
	sess.lastSeen = s.now()
	return sess
}

// SingleOutcome is the settled result of a form submission.
type SingleOutcome struct {
	State State[DiagnosisResult]
	Token string // handoff token, set on success
}

// SubmitSingle validates form input and submits it for sessionID.
// formErr is a build error from FormFromValues; when non-nil nothing is sent.
func (s *Service) SubmitSingle(ctx context.Context, sessionID string, form *FormState, formErr error) (SingleOutcome, error) {
	orch := s.session(sessionID).single
	start := s.now()

	var (
		st  State[DiagnosisResult]
		err error
	)
	if formErr != nil {
		st, err = orch.Reject(formErr)
	} else {
		st, err = orch.Submit(ctx, form.Build())
	}
	if err != nil {
		return SingleOutcome{State: st}, err
	}

	out := SingleOutcome{State: st}
	if st.Phase == PhaseSucceeded {
		out.Token = s.results.Put(st.Result)
	}
	s.record(ctx, ActionSingleDiagnosis, 1, st.Phase, st.Err, st.CorrelationID, start)
	return out, nil
}

// TakeResult claims a handed-off single result. An unknown, expired or
// already claimed token yields NoResult.
func (s *Service) TakeResult(token string) Interpretation {
	res, ok := s.results.Take(token)
	if !ok {
		return NoResult
	}
	return Interpret(&res)
}

// BatchOutcome is the settled result of a batch upload.
type BatchOutcome struct {
	State    State[BatchResult]
	Report   *ValidationReport // nil when the header check failed
	Patients []PatientInterpretation
}

// SubmitBatch parses, validates and submits an uploaded file for sessionID.
func (s *Service) SubmitBatch(ctx context.Context, sessionID string, r io.Reader, filename string) (BatchOutcome, error) {
	orch := s.session(sessionID).batch
	start := s.now()

	req, report, buildErr := s.buildBatch(r, filename)

	var (
		st  State[BatchResult]
		err error
	)
	if buildErr != nil {
		st, err = orch.Reject(buildErr)
	} else {
		st, err = orch.Submit(ctx, req)
	}
	if err != nil {
		return BatchOutcome{State: st, Report: report}, err
	}

	out := BatchOutcome{State: st, Report: report}
	if st.Phase == PhaseSucceeded {
		out.Patients = InterpretBatch(&st.Result, req.Lines)
	}
	s.record(ctx, ActionBatchDiagnosis, req.Len(), st.Phase, st.Err, st.CorrelationID, start)
	return out, nil
}

func (s *Service) buildBatch(r io.Reader, filename string) (BatchRequest, *ValidationReport, error) {
	table, err := ReadTable(r, filename, s.cfg.MaxUploadBytes)
	if err != nil {
		return BatchRequest{}, nil, err
	}
	rows, report, err := ValidateTable(table, s.cfg.ValidationPolicy)
	if err != nil {
		return BatchRequest{}, report, err
	}
	if report.Valid == 0 && report.Invalid > 0 {
		return BatchRequest{}, report, report.Err()
	}
	return BuildBatch(rows), report, nil
}

// ValidateUpload reports every row of an upload without submitting it.
func (s *Service) ValidateUpload(ctx context.Context, r io.Reader, filename string) (*ValidationReport, error) {
	start := s.now()
	table, err := ReadTable(r, filename, s.cfg.MaxUploadBytes)
	if err != nil {
		s.record(ctx, ActionBatchValidate, 0, PhaseFailed, err, "", start)
		return nil, err
	}
	_, report, err := ValidateTable(table, PolicyPartial)
	if err != nil {
		s.record(ctx, ActionBatchValidate, 0, PhaseFailed, err, "", start)
		return nil, err
	}
	phase := PhaseSucceeded
	reportErr := report.Err()
	if reportErr != nil {
		phase = PhaseFailed
	}
	s.record(ctx, ActionBatchValidate, report.Valid+report.Invalid, phase, reportErr, "", start)
	return report, nil
}

// SweepSessions drops sessions idle longer than the session TTL and
// returns how many were removed. A session with a call in flight is kept
// until the call settles.
func (s *Service) SweepSessions() int {
	cutoff := s.now().Add(-s.cfg.SessionTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) && !sess.pending() {
			sess.single.Reset()
			sess.batch.Reset()
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSessionJanitor sweeps idle sessions every interval until ctx ends.
func (s *Service) RunSessionJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.SweepSessions(); n > 0 {
				slog.Debug("idle sessions removed", "count", n)
			}
		}
	}
}

// Close cancels pending calls and drops unclaimed results.
func (s *Service) Close() {
	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.single.Reset()
		sess.batch.Reset()
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	s.results.Close()
}

func (s *Service) record(ctx context.Context, action AuditAction, records int, phase Phase, err error, corr string, start time.Time) {
	ip, ua := ClientFromContext(ctx)
	entry := AuditEntry{
		Action:        action,
		Records:       records,
		Outcome:       phase.String(),
		DurationMs:    s.now().Sub(start).Milliseconds(),
		CorrelationID: corr,
		IPAddress:     ip,
		UserAgent:     ua,
	}
	if err != nil {
		entry.ErrorCode = MapError(err).Code
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			entry.Status = reqErr.Status
		}
	}
	// The request context may already be done; the audit write should not be.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.audit.Record(auditCtx, entry); err != nil {
		slog.Warn("audit record failed", "action", action, "error", err)
	}
}
