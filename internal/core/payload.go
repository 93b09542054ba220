package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Record is one validated set of measurements in schema order.
type Record [FeatureCount]float64

// Get returns the value for a feature name.
func (r Record) Get(name Feature) (float64, bool) {
	i := FeatureIndex(string(name))
	if i < 0 {
		return 0, false
	}
	return r[i], true
}

// MarshalJSON writes the record as an object keyed by feature name, with
// keys in schema order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range FeatureSchema {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(string(f))
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r[i])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", f, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a keyed object. Every feature must be present.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for i, f := range FeatureSchema {
		v, ok := m[string(f)]
		if !ok {
			return fmt.Errorf("record missing %s", f)
		}
		r[i] = v
	}
	return nil
}

// Payload is anything the orchestrator can submit. Len reports how many
// records it carries; zero means nothing to send.
type Payload interface {
	Len() int
}

// SingleRequest is the body of a single-record diagnosis call.
type SingleRequest struct {
	Features [FeatureCount]float64 `json:"features"`
}

func (SingleRequest) Len() int { return 1 }

// BatchRequest is the body of a batch diagnosis call.
type BatchRequest struct {
	Patients []Record `json:"patients"`
	// Lines holds the source line of each patient, for correlating results.
	Lines []int `json:"-"`
}

func (b BatchRequest) Len() int { return len(b.Patients) }

// BuildBatch assembles validated rows into a batch payload.
func BuildBatch(rows []ValidatedRow) BatchRequest {
	req := BatchRequest{
		Patients: make([]Record, 0, len(rows)),
		Lines:    make([]int, 0, len(rows)),
	}
	for _, r := range rows {
		req.Patients = append(req.Patients, r.Record)
		req.Lines = append(req.Lines, r.Line)
	}
	return req
}

// Diagnosis labels returned by the service.
const (
	LabelMalignant = "Malignant"
	LabelBenign    = "Benign"
)

// DiagnosisResult is the service's answer for one record.
type DiagnosisResult struct {
	Diagnosis  string  `json:"diagnosis"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the result against the response contract.
func (d DiagnosisResult) Validate() error {
	if d.Diagnosis != LabelMalignant && d.Diagnosis != LabelBenign {
		return &ResponseShapeError{Reason: fmt.Sprintf("diagnosis %q is not %s or %s", d.Diagnosis, LabelMalignant, LabelBenign)}
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return &ResponseShapeError{Reason: fmt.Sprintf("confidence %v outside [0,1]", d.Confidence)}
	}
	return nil
}

// BatchSummary is the aggregate block of a batch response.
type BatchSummary struct {
	TotalPatients int `json:"total_patients"`
}

// PatientResult is one entry of a batch response. PatientID is 1-based and
// follows submission order.
type PatientResult struct {
	PatientID  int     `json:"patient_id"`
	Diagnosis  string  `json:"diagnosis"`
	Confidence float64 `json:"confidence"`
}

// BatchResult is the service's answer for a batch. Raw keeps the body as
// received for verbatim display.
type BatchResult struct {
	Summary BatchSummary    `json:"summary"`
	Results []PatientResult `json:"results"`
	Raw     json.RawMessage `json:"-"`
}

// Validate checks the batch against the response contract for a request of
// sent records.
func (b BatchResult) Validate(sent int) error {
	if b.Results == nil {
		return &ResponseShapeError{Reason: "missing results"}
	}
	if len(b.Results) != sent {
		return &ResponseShapeError{Reason: fmt.Sprintf("got %d results for %d patients", len(b.Results), sent)}
	}
	if b.Summary.TotalPatients != sent {
		return &ResponseShapeError{Reason: fmt.Sprintf("summary reports %d patients, sent %d", b.Summary.TotalPatients, sent)}
	}
	for i, r := range b.Results {
		if err := (DiagnosisResult{Diagnosis: r.Diagnosis, Confidence: r.Confidence}).Validate(); err != nil {
			return &ResponseShapeError{Reason: fmt.Sprintf("result %d: %s", i+1, err.(*ResponseShapeError).Reason)}
		}
	}
	return nil
}
