package diagnosis

import (
	"fmt"

	"github.com/JonMunkholm/cytodx/internal/core"
)

// Wire types use pointers so an absent field is distinguishable from zero.

type wireResult struct {
	Diagnosis  *string  `json:"diagnosis"`
	Confidence *float64 `json:"confidence"`
}

func (w wireResult) result() (core.DiagnosisResult, error) {
	if w.Diagnosis == nil {
		return core.DiagnosisResult{}, &core.ResponseShapeError{Reason: "missing diagnosis"}
	}
	if w.Confidence == nil {
		return core.DiagnosisResult{}, &core.ResponseShapeError{Reason: "missing confidence"}
	}
	return core.DiagnosisResult{Diagnosis: *w.Diagnosis, Confidence: *w.Confidence}, nil
}

type wirePatient struct {
	PatientID *int `json:"patient_id"`
	wireResult
}

type wireBatch struct {
	Summary *struct {
		TotalPatients *int `json:"total_patients"`
	} `json:"summary"`
	Results []wirePatient `json:"results"`
}

func (w wireBatch) result() (core.BatchResult, error) {
	if w.Summary == nil || w.Summary.TotalPatients == nil {
		return core.BatchResult{}, &core.ResponseShapeError{Reason: "missing summary.total_patients"}
	}
	if w.Results == nil {
		return core.BatchResult{}, &core.ResponseShapeError{Reason: "missing results"}
	}

	res := core.BatchResult{
		Summary: core.BatchSummary{TotalPatients: *w.Summary.TotalPatients},
		Results: make([]core.PatientResult, len(w.Results)),
	}
	for i, p := range w.Results {
		r, err := p.wireResult.result()
		if err != nil {
			return core.BatchResult{}, &core.ResponseShapeError{Reason: fmt.Sprintf("result %d: %v", i+1, err)}
		}
		id := i + 1
		if p.PatientID != nil {
			id = *p.PatientID
		}
		res.Results[i] = core.PatientResult{PatientID: id, Diagnosis: r.Diagnosis, Confidence: r.Confidence}
	}
	return res, nil
}
