package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeDiagnoser struct {
	mu         sync.Mutex
	single     []SingleRequest
	batch      []BatchRequest
	result     DiagnosisResult
	err        error
	batchLabel string
}

func (f *fakeDiagnoser) Diagnose(_ context.Context, req SingleRequest) (DiagnosisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, req)
	return f.result, f.err
}

func (f *fakeDiagnoser) DiagnoseBatch(_ context.Context, req BatchRequest) (BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batch = append(f.batch, req)
	if f.err != nil {
		return BatchResult{}, f.err
	}
	res := BatchResult{Summary: BatchSummary{TotalPatients: req.Len()}}
	for i := range req.Patients {
		res.Results = append(res.Results, PatientResult{PatientID: i + 1, Diagnosis: f.batchLabel, Confidence: 0.75})
	}
	return res, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (m *memAudit) Record(_ context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func TestService_SubmitSingle(t *testing.T) {
	client := &fakeDiagnoser{result: DiagnosisResult{Diagnosis: "Malignant", Confidence: 0.873}}
	audit := &memAudit{}
	svc := NewService(client, audit, NewCallLimiter(2, time.Second), ServiceConfig{})
	defer svc.Close()

	ctx := ContextWithClient(context.Background(), "10.0.0.1", "test-agent")
	out, err := svc.SubmitSingle(ctx, "s1", NewFormState(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.State.Phase != PhaseSucceeded || out.Token == "" {
		t.Fatalf("outcome = %+v", out)
	}

	view := svc.TakeResult(out.Token)
	if !view.Available || !view.Malignant || view.Confidence != "87.30%" {
		t.Errorf("view = %+v", view)
	}
	if again := svc.TakeResult(out.Token); again.Available {
		t.Error("result should be claimable once")
	}

	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	e := audit.entries[0]
	if e.Action != ActionSingleDiagnosis || e.Outcome != "succeeded" || e.IPAddress != "10.0.0.1" || e.Records != 1 {
		t.Errorf("audit entry = %+v", e)
	}
}

func TestService_SubmitSingle_FormError(t *testing.T) {
	client := &fakeDiagnoser{}
	svc := NewService(client, nil, nil, ServiceConfig{})
	defer svc.Close()

	out, err := svc.SubmitSingle(context.Background(), "s1", NewFormState(), &FormError{Field: "Mitoses", Value: "11", Reason: "range"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.State.Phase != PhaseFailed || out.Token != "" {
		t.Errorf("outcome = %+v", out)
	}
	if len(client.single) != 0 {
		t.Error("no call should be made for an invalid form")
	}
}

func TestService_SubmitBatch(t *testing.T) {
	header := strings.Join(FeatureNames(), ",")

	tests := []struct {
		name      string
		file      string
		err       error
		wantPhase Phase
		wantMsg   string
		wantCalls int
	}{
		{
			name:      "valid file",
			file:      header + "\n5,1,1,1,2,1,3,1,1\n\n3,1,1,1,2,2,3,1,1\n",
			wantPhase: PhaseSucceeded,
			wantCalls: 1,
		},
		{
			name:      "missing header",
			file:      "a,b\n1,2",
			wantPhase: PhaseFailed,
			wantMsg:   MsgSchema,
		},
		{
			name:      "bad cell",
			file:      header + "\n5,1,1,1,2,?,3,1,1",
			wantPhase: PhaseFailed,
			wantMsg:   MsgData,
		},
		{
			name:      "header only",
			file:      header + "\n",
			wantPhase: PhaseFailed,
			wantMsg:   MsgEmptyPayload,
		},
		{
			name:      "empty file",
			file:      "",
			wantPhase: PhaseFailed,
			wantMsg:   MsgParse,
		},
		{
			name:      "service error",
			file:      header + "\n5,1,1,1,2,1,3,1,1",
			err:       &RequestError{Status: 500, Detail: "model unavailable"},
			wantPhase: PhaseFailed,
			wantMsg:   "model unavailable",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeDiagnoser{err: tt.err, batchLabel: "Benign"}
			svc := NewService(client, nil, nil, ServiceConfig{})
			defer svc.Close()

			out, err := svc.SubmitBatch(context.Background(), "s1", strings.NewReader(tt.file), "batch.csv")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.State.Phase != tt.wantPhase {
				t.Fatalf("phase = %v, want %v (err %v)", out.State.Phase, tt.wantPhase, out.State.Err)
			}
			if got := out.State.Message(); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
			if len(client.batch) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", len(client.batch), tt.wantCalls)
			}
		})
	}
}

func TestService_SubmitBatch_CorrelatesLines(t *testing.T) {
	client := &fakeDiagnoser{batchLabel: "Malignant"}
	svc := NewService(client, nil, nil, ServiceConfig{})
	defer svc.Close()

	file := strings.Join(FeatureNames(), ",") + "\n\n5,1,1,1,2,1,3,1,1\n\n3,1,1,1,2,2,3,1,1"
	out, err := svc.SubmitBatch(context.Background(), "s1", strings.NewReader(file), "batch.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Patients) != 2 || out.Patients[0].Line != 3 || out.Patients[1].Line != 5 {
		t.Errorf("patients = %+v, want lines 3 and 5", out.Patients)
	}
	if !out.Patients[0].Malignant {
		t.Error("patient 1 should be malignant")
	}
}

func TestService_PartialPolicy(t *testing.T) {
	client := &fakeDiagnoser{batchLabel: "Benign"}
	svc := NewService(client, nil, nil, ServiceConfig{ValidationPolicy: PolicyPartial})
	defer svc.Close()

	file := strings.Join(FeatureNames(), ",") + "\n5,1,1,1,2,?,3,1,1\n3,1,1,1,2,2,3,1,1"
	out, err := svc.SubmitBatch(context.Background(), "s1", strings.NewReader(file), "batch.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.State.Phase != PhaseSucceeded || len(client.batch[0].Patients) != 1 {
		t.Errorf("phase %v, sent %d patients", out.State.Phase, len(client.batch[0].Patients))
	}
	if out.Report.Invalid != 1 {
		t.Errorf("report invalid = %d, want 1", out.Report.Invalid)
	}
}

func TestService_PartialPolicy_AllRowsInvalid(t *testing.T) {
	client := &fakeDiagnoser{batchLabel: "Benign"}
	svc := NewService(client, nil, nil, ServiceConfig{ValidationPolicy: PolicyPartial})
	defer svc.Close()

	file := strings.Join(FeatureNames(), ",") + "\n5,1,1,1,2,?,3,1,1\n3,x,1,1,2,2,3,1,1"
	out, err := svc.SubmitBatch(context.Background(), "s1", strings.NewReader(file), "batch.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.State.Phase != PhaseFailed {
		t.Fatalf("phase = %v, want failed", out.State.Phase)
	}
	if got := MapError(out.State.Err).Code; got != "DATA001" {
		t.Errorf("code = %s, want DATA001", got)
	}
	if out.Report == nil || out.Report.Invalid != 2 {
		t.Errorf("report = %+v", out.Report)
	}
	if len(client.batch) != 0 {
		t.Errorf("sent %d batches, want none", len(client.batch))
	}
}

func TestService_ValidateUpload(t *testing.T) {
	audit := &memAudit{}
	svc := NewService(&fakeDiagnoser{}, audit, nil, ServiceConfig{})
	defer svc.Close()

	file := strings.Join(FeatureNames(), ",") + "\n5,1,1,1,2,?,3,1,1\n3,1,1,1,2,2,3,1,1"
	report, err := svc.ValidateUpload(context.Background(), strings.NewReader(file), "batch.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Valid != 1 || report.Invalid != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(audit.entries) != 1 || audit.entries[0].ErrorCode != "DATA001" {
		t.Errorf("audit = %+v", audit.entries)
	}

	_, err = svc.ValidateUpload(context.Background(), strings.NewReader("x\n1"), "batch.csv")
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Errorf("err = %v, want *SchemaError", err)
	}
}

func TestService_SweepSessions(t *testing.T) {
	svc := NewService(&fakeDiagnoser{result: DiagnosisResult{Diagnosis: "Benign"}}, nil, nil, ServiceConfig{SessionTTL: time.Minute})
	defer svc.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, _ = svc.SubmitSingle(context.Background(), "old", NewFormState(), nil)
	now = now.Add(2 * time.Minute)
	_, _ = svc.SubmitSingle(context.Background(), "new", NewFormState(), nil)

	if n := svc.SweepSessions(); n != 1 {
		t.Errorf("swept %d sessions, want 1", n)
	}
	if _, ok := svc.sessions["new"]; !ok {
		t.Error("active session was removed")
	}
}

// gatedDiagnoser blocks single calls until gate is closed.
type gatedDiagnoser struct {
	fakeDiagnoser
	started chan struct{}
	gate    chan struct{}
}

func (g *gatedDiagnoser) Diagnose(ctx context.Context, req SingleRequest) (DiagnosisResult, error) {
	close(g.started)
	select {
	case <-g.gate:
		return DiagnosisResult{Diagnosis: "Benign", Confidence: 0.9}, nil
	case <-ctx.Done():
		return DiagnosisResult{}, ctx.Err()
	}
}

func TestService_SweepSessions_KeepsPendingCall(t *testing.T) {
	client := &gatedDiagnoser{started: make(chan struct{}), gate: make(chan struct{})}
	svc := NewService(client, nil, nil, ServiceConfig{SessionTTL: time.Minute, CallTimeout: 10 * time.Second})
	defer svc.Close()

	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	type result struct {
		out SingleOutcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := svc.SubmitSingle(context.Background(), "slow", NewFormState(), nil)
		done <- result{out, err}
	}()
	<-client.started

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	if n := svc.SweepSessions(); n != 0 {
		t.Fatalf("swept %d sessions with a call in flight", n)
	}

	close(client.gate)
	res := <-done
	if res.err != nil {
		t.Fatalf("pending call ended with %v", res.err)
	}
	if res.out.State.Phase != PhaseSucceeded || res.out.Token == "" {
		t.Errorf("state = %+v", res.out.State)
	}

	if n := svc.SweepSessions(); n != 1 {
		t.Errorf("swept %d sessions after the call settled, want 1", n)
	}
}
