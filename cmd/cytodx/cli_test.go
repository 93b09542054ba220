package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/JonMunkholm/cytodx/internal/core"
)

// fakeService mimics the diagnosis service endpoints.
type fakeService struct {
	calls    atomic.Int32
	features atomic.Value // []float64 of the last single request
}

func (f *fakeService) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /diagnose", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		var req struct {
			Features []float64 `json:"features"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.features.Store(req.Features)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"diagnosis":"Malignant","confidence":0.873}`))
	})
	mux.HandleFunc("POST /api/batch-diagnose", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		var req struct {
			Patients []map[string]float64 `json:"patients"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		type result struct {
			PatientID  int     `json:"patient_id"`
			Diagnosis  string  `json:"diagnosis"`
			Confidence float64 `json:"confidence"`
		}
		resp := struct {
			Summary struct {
				TotalPatients int `json:"total_patients"`
			} `json:"summary"`
			Results []result `json:"results"`
		}{}
		resp.Summary.TotalPatients = len(req.Patients)
		for i := range req.Patients {
			resp.Results = append(resp.Results, result{PatientID: i + 1, Diagnosis: "Benign", Confidence: 0.5})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = execute(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTemplateCmd(t *testing.T) {
	code, stdout, _ := run(t, "template")

	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if strings.TrimSpace(stdout) != core.TemplateCSV() {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestTemplateCmd_Output(t *testing.T) {
	path := filepath.Join(t.TempDir(), core.TemplateFilename)

	if code, _, stderr := run(t, "template", "-o", path); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != core.TemplateCSV() {
		t.Errorf("file = %q", got)
	}
}

func TestValidateCmd(t *testing.T) {
	svc := &fakeService{}
	srv := svc.start(t)
	path := writeFile(t, "rows.csv", core.TemplateCSV()+"\n1,1,1,1,1,1,1,1,abc")

	code, stdout, stderr := run(t, "validate", "--url", srv.URL, path)

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "1 valid, 1 invalid") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stdout, `line 3, column Mitoses: "abc"`) {
		t.Errorf("stdout missing cell error: %q", stdout)
	}
	if !strings.Contains(stderr, "DATA001") {
		t.Errorf("stderr = %q", stderr)
	}
	if svc.calls.Load() != 0 {
		t.Error("validate called the diagnosis service")
	}
}

func TestSingleCmd(t *testing.T) {
	svc := &fakeService{}
	srv := svc.start(t)

	code, stdout, stderr := run(t, "single", "--url", srv.URL, "--set", "Clump_Thickness=5", "--set", "Mitoses=2")

	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Malignant") || !strings.Contains(stdout, "87.30%") {
		t.Errorf("stdout = %q", stdout)
	}
	got, _ := svc.features.Load().([]float64)
	want := []float64{5, 1, 1, 1, 1, 1, 1, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("features = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("features = %v, want %v", got, want)
			break
		}
	}
}

func TestSingleCmd_JSON(t *testing.T) {
	srv := (&fakeService{}).start(t)

	code, stdout, _ := run(t, "single", "--url", srv.URL, "--json")

	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	var got struct {
		Diagnosis string `json:"diagnosis"`
		Malignant bool   `json:"malignant"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("stdout is not JSON: %v", err)
	}
	if got.Diagnosis != "Malignant" || !got.Malignant {
		t.Errorf("got %+v", got)
	}
}

func TestSingleCmd_FormErrors(t *testing.T) {
	tests := []struct {
		name string
		set  string
	}{
		{"out of range", "Mitoses=11"},
		{"unknown field", "Cell_Color=3"},
		{"missing equals", "Mitoses"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			srv := svc.start(t)

			code, _, stderr := run(t, "single", "--url", srv.URL, "--set", tt.set)

			if code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr, "FORM001") {
				t.Errorf("stderr = %q", stderr)
			}
			if svc.calls.Load() != 0 {
				t.Error("invalid form reached the diagnosis service")
			}
		})
	}
}

func TestBatchCmd(t *testing.T) {
	svc := &fakeService{}
	srv := svc.start(t)
	path := writeFile(t, "batch.csv", core.TemplateCSV()+"\n2,2,2,2,2,2,2,2,2")

	code, stdout, stderr := run(t, "batch", "--url", srv.URL, path)

	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("stdout = %q", stdout)
	}
	if fields := strings.Fields(lines[2]); len(fields) != 4 || fields[0] != "2" || fields[1] != "3" || fields[2] != "Benign" || fields[3] != "50.00%" {
		t.Errorf("row = %q", lines[2])
	}
}

func TestBatchCmd_RejectAllByDefault(t *testing.T) {
	svc := &fakeService{}
	srv := svc.start(t)
	path := writeFile(t, "batch.csv", core.TemplateCSV()+"\n2,2,2,2,2,2,2,2,")

	code, _, stderr := run(t, "batch", "--url", srv.URL, path)

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "DATA001") {
		t.Errorf("stderr = %q", stderr)
	}
	if svc.calls.Load() != 0 {
		t.Error("rejected batch reached the diagnosis service")
	}
}

func TestBatchCmd_Partial(t *testing.T) {
	svc := &fakeService{}
	srv := svc.start(t)
	path := writeFile(t, "batch.csv", core.TemplateCSV()+"\n2,2,2,2,2,2,2,2,")

	code, stdout, stderr := run(t, "batch", "--partial", "--url", srv.URL, path)

	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "1 valid, 1 invalid") {
		t.Errorf("stderr = %q", stderr)
	}
	if lines := strings.Split(strings.TrimSpace(stdout), "\n"); len(lines) != 2 {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestParseSets(t *testing.T) {
	values, err := parseSets([]string{"Mitoses=3", " Bare_nuclei =4"})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if values["Mitoses"] != "3" || values["Bare_nuclei"] != "4" {
		t.Errorf("values = %v", values)
	}
}
