package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/cytodx/internal/config"
	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/JonMunkholm/cytodx/internal/web/templates"
)

// fakeDiagnoser answers without a network.
type fakeDiagnoser struct {
	mu         sync.Mutex
	result     core.DiagnosisResult
	err        error
	batchLabel string
	calls      int
}

func (f *fakeDiagnoser) Diagnose(_ context.Context, _ core.SingleRequest) (core.DiagnosisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeDiagnoser) DiagnoseBatch(_ context.Context, req core.BatchRequest) (core.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return core.BatchResult{}, f.err
	}
	res := core.BatchResult{Summary: core.BatchSummary{TotalPatients: len(req.Patients)}}
	for i := range req.Patients {
		res.Results = append(res.Results, core.PatientResult{PatientID: i + 1, Diagnosis: f.batchLabel, Confidence: 0.9})
	}
	res.Raw, _ = json.Marshal(res)
	return res, nil
}

func (f *fakeDiagnoser) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAudit struct {
	entries []core.AuditEntry
	err     error
	limit   int
}

func (f *fakeAudit) Recent(_ context.Context, limit int) ([]core.AuditEntry, error) {
	f.limit = limit
	return f.entries, f.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.Session.TTL = time.Minute
	cfg.Session.ResultTTL = time.Minute
	cfg.Security.EnableCSP = true
	return cfg
}

func newTestServer(t *testing.T, client core.Diagnoser, audit AuditLog, cfg *config.Config, svcCfg core.ServiceConfig) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	svc := core.NewService(client, nil, core.NewCallLimiter(4, time.Second), svcCfg)
	srv := NewServer(svc, cfg, audit)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		svc.Close()
	})
	return srv
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/diagnose", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func uploadRequest(t *testing.T, path, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mpw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mpw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	mpw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	return req
}

func TestFormPage(t *testing.T) {
	srv := newTestServer(t, &fakeDiagnoser{}, nil, nil, core.ServiceConfig{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, f := range core.FeatureSchema {
		if !strings.Contains(body, `name="`+string(f)+`"`) {
			t.Errorf("form missing input %s", f)
		}
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), SessionCookie) {
		t.Errorf("no session cookie set: %q", rec.Header().Get("Set-Cookie"))
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
}

func TestDiagnose_RedirectsToOneShotResult(t *testing.T) {
	client := &fakeDiagnoser{result: core.DiagnosisResult{Diagnosis: core.LabelMalignant, Confidence: 0.873}}
	srv := newTestServer(t, client, nil, nil, core.ServiceConfig{})

	rec := do(srv, postForm(url.Values{"Clump_Thickness": {"5"}}))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303; body: %s", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/results?token=") {
		t.Fatalf("Location = %q", loc)
	}

	first := do(srv, httptest.NewRequest(http.MethodGet, loc, nil))
	body := first.Body.String()
	if !strings.Contains(body, "87.30%") || !strings.Contains(body, `class="malignant"`) {
		t.Errorf("results page missing interpretation: %s", body)
	}

	second := do(srv, httptest.NewRequest(http.MethodGet, loc, nil))
	if !strings.Contains(second.Body.String(), templates.NoResultsText) {
		t.Error("result was shown twice")
	}
}

func TestDiagnose_Failures(t *testing.T) {
	tests := []struct {
		name       string
		values     url.Values
		clientErr  error
		wantStatus int
		wantText   string
		wantCalls  int
	}{
		{
			name:       "out of range value",
			values:     url.Values{"Mitoses": {"11"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantText:   core.MsgForm,
		},
		{
			name:       "service error detail",
			values:     url.Values{},
			clientErr:  &core.RequestError{Status: 500, Detail: "model unavailable"},
			wantStatus: http.StatusBadGateway,
			wantText:   "model unavailable",
			wantCalls:  1,
		},
		{
			name:       "service error without detail",
			values:     url.Values{},
			clientErr:  &core.RequestError{Status: 503},
			wantStatus: http.StatusBadGateway,
			wantText:   "Server error 503",
			wantCalls:  1,
		},
		{
			name:       "transport failure",
			values:     url.Values{},
			clientErr:  &core.RequestError{Err: errors.New("connection refused")},
			wantStatus: http.StatusBadGateway,
			wantText:   "connection refused",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeDiagnoser{err: tt.clientErr}
			srv := newTestServer(t, client, nil, nil, core.ServiceConfig{})

			rec := do(srv, postForm(tt.values))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantText) {
				t.Errorf("body does not contain %q", tt.wantText)
			}
			if got := client.callCount(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestResults_NoToken(t *testing.T) {
	srv := newTestServer(t, &fakeDiagnoser{}, nil, nil, core.ServiceConfig{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/results", nil))

	if !strings.Contains(rec.Body.String(), templates.NoResultsText) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestBatch_Template(t *testing.T) {
	client := &fakeDiagnoser{batchLabel: core.LabelBenign}
	srv := newTestServer(t, client, nil, nil, core.ServiceConfig{})

	rec := do(srv, uploadRequest(t, "/batch", "batch.csv", core.TemplateCSV()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<td>1</td><td>2</td><td class=\"benign\">Benign</td><td>90.00%</td>") {
		t.Errorf("patient row missing: %s", body)
	}
	if !strings.Contains(body, "Raw response") {
		t.Error("raw response not rendered")
	}
}

func TestBatch_MissingHeaderSendsNothing(t *testing.T) {
	client := &fakeDiagnoser{batchLabel: core.LabelBenign}
	srv := newTestServer(t, client, nil, nil, core.ServiceConfig{})

	rec := do(srv, uploadRequest(t, "/batch", "batch.csv", "Clump_Thickness,Mitoses\n1,1"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), core.MsgSchema) {
		t.Errorf("body missing schema message")
	}
	if client.callCount() != 0 {
		t.Errorf("diagnosis service called %d times", client.callCount())
	}
}

func TestBatch_NoFile(t *testing.T) {
	srv := newTestServer(t, &fakeDiagnoser{}, nil, nil, core.ServiceConfig{})

	rec := do(srv, uploadRequest(t, "/batch", "", ""))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "FILE002") {
		t.Errorf("body missing FILE002")
	}
}

func TestValidate_ReportsEveryRow(t *testing.T) {
	client := &fakeDiagnoser{}
	srv := newTestServer(t, client, nil, nil, core.ServiceConfig{})

	csv := core.TemplateCSV() + "\n" + strings.Repeat("2,", core.FeatureCount-1) + "x"
	rec := do(srv, uploadRequest(t, "/api/validate", "rows.csv", csv))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Filename string `json:"filename"`
		OK       bool   `json:"ok"`
		Valid    int    `json:"valid"`
		Invalid  int    `json:"invalid"`
		Rows     []struct {
			Line   int  `json:"line"`
			Valid  bool `json:"valid"`
			Errors []struct {
				Column string `json:"column"`
				Value  string `json:"value"`
			} `json:"errors"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OK || got.Valid != 1 || got.Invalid != 1 {
		t.Errorf("ok=%v valid=%d invalid=%d, want false 1 1", got.OK, got.Valid, got.Invalid)
	}
	if len(got.Rows) != 2 || got.Rows[1].Line != 3 || len(got.Rows[1].Errors) != 1 || got.Rows[1].Errors[0].Column != "Mitoses" {
		t.Errorf("rows = %+v", got.Rows)
	}
	if client.callCount() != 0 {
		t.Error("validate must not call the diagnosis service")
	}
}

func TestValidate_FileTooLarge(t *testing.T) {
	srv := newTestServer(t, &fakeDiagnoser{}, nil, nil, core.ServiceConfig{MaxUploadBytes: 64})

	rec := do(srv, uploadRequest(t, "/api/validate", "big.csv", core.TemplateCSV()+strings.Repeat("\n1,1,1,1,1,1,1,1,1", 10)))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != "FILE001" {
		t.Errorf("code = %q, want FILE001", resp.Code)
	}
}

func TestTemplateDownload(t *testing.T) {
	srv := newTestServer(t, &fakeDiagnoser{}, nil, nil, core.ServiceConfig{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/template", nil))

	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, core.TemplateFilename) {
		t.Errorf("Content-Disposition = %q", got)
	}
	if rec.Body.String() != core.TemplateCSV() {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAudit(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv := newTestServer(t, &fakeDiagnoser{}, nil, nil, core.ServiceConfig{})
		rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("limit capped", func(t *testing.T) {
		audit := &fakeAudit{entries: []core.AuditEntry{{ID: "a", Action: core.ActionSingleDiagnosis, Outcome: "succeeded"}}}
		srv := newTestServer(t, &fakeDiagnoser{}, audit, nil, core.ServiceConfig{})

		rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/audit?limit=9999", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if audit.limit != maxAuditLimit {
			t.Errorf("limit = %d, want %d", audit.limit, maxAuditLimit)
		}
		var got []core.AuditEntry
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || len(got) != 1 {
			t.Errorf("entries = %v, err = %v", got, err)
		}
	})

	t.Run("client details withheld", func(t *testing.T) {
		audit := &fakeAudit{entries: []core.AuditEntry{{
			ID:            "b",
			Action:        core.ActionBatchDiagnosis,
			Outcome:       "failed",
			CorrelationID: "corr-1",
			IPAddress:     "203.0.113.9",
			UserAgent:     "curl/8.5.0",
		}}}
		srv := newTestServer(t, &fakeDiagnoser{}, audit, nil, core.ServiceConfig{})

		rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/audit", nil))

		body := rec.Body.String()
		if !strings.Contains(body, "corr-1") {
			t.Fatalf("entry missing from %s", body)
		}
		for _, leak := range []string{"203.0.113.9", "curl/8.5.0", "ipAddress", "userAgent"} {
			if strings.Contains(body, leak) {
				t.Errorf("response exposes %q: %s", leak, body)
			}
		}
	})
}

func TestCallStatus(t *testing.T) {
	srv := newTestServer(t, &fakeDiagnoser{}, nil, nil, core.ServiceConfig{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var got core.CallLimiterStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.MaxConcurrent != 4 || got.Available != 4 {
		t.Errorf("status = %+v", got)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 2
	cfg.Rate.SubmitLimit = 1
	srv := newTestServer(t, &fakeDiagnoser{}, nil, cfg, core.ServiceConfig{})

	for i := 0; i < 2; i++ {
		if rec := do(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	rec := do(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if !strings.Contains(rec.Body.String(), "RATE001") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.SchemaError{Missing: []string{"Mitoses"}}, http.StatusUnprocessableEntity},
		{&core.EmptyPayloadError{}, http.StatusUnprocessableEntity},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{core.ErrTooManyCalls, http.StatusServiceUnavailable},
		{core.ErrSubmissionInFlight, http.StatusConflict},
		{core.ErrSuperseded, http.StatusConflict},
		{&core.ResponseShapeError{Reason: "x"}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	s := &Server{}
	rl := s.newRateLimiter(2, time.Minute)
	defer rl.stop()

	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("a") {
		t.Error("third request in window should be refused")
	}
	if !rl.allow("b") {
		t.Error("limits are per client")
	}

	clock = clock.Add(time.Minute + time.Second)
	if !rl.allow("a") {
		t.Error("request after the window should pass")
	}
}
