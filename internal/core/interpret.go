package core

import (
	_ "embed"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

//go:embed recommendations.yaml
var recommendationsYAML []byte

// Recommendations holds the two static guidance lists.
type Recommendations struct {
	Malignant []string `yaml:"malignant"`
	Benign    []string `yaml:"benign"`
}

// DefaultRecommendations is parsed once from the embedded content.
var DefaultRecommendations = mustLoadRecommendations(recommendationsYAML)

// LoadRecommendations parses a recommendations document. Both lists must be
// non-empty.
func LoadRecommendations(data []byte) (Recommendations, error) {
	var r Recommendations
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Recommendations{}, fmt.Errorf("parse recommendations: %w", err)
	}
	if len(r.Malignant) == 0 || len(r.Benign) == 0 {
		return Recommendations{}, fmt.Errorf("parse recommendations: both lists are required")
	}
	return r, nil
}

func mustLoadRecommendations(data []byte) Recommendations {
	r, err := LoadRecommendations(data)
	if err != nil {
		panic(err)
	}
	return r
}

// Interpretation is what a results view renders for one diagnosis.
type Interpretation struct {
	Available       bool // false means "no result available"
	Diagnosis       string
	Malignant       bool
	Confidence      string // e.g. "87.30%"
	Recommendations []string
}

// NoResult is the interpretation of an absent result.
var NoResult = Interpretation{}

// FormatConfidence renders a probability as a percentage with two decimals.
// Ties round away from zero, so 0.00125 is "0.13%".
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.2f%%", math.Round(c*10000)/100)
}

// Interpret maps a result to its display form. A nil result yields NoResult.
func (r Recommendations) Interpret(res *DiagnosisResult) Interpretation {
	if res == nil {
		return NoResult
	}
	malignant := res.Diagnosis == LabelMalignant
	recs := r.Benign
	if malignant {
		recs = r.Malignant
	}
	return Interpretation{
		Available:       true,
		Diagnosis:       res.Diagnosis,
		Malignant:       malignant,
		Confidence:      FormatConfidence(res.Confidence),
		Recommendations: recs,
	}
}

// Interpret uses DefaultRecommendations.
func Interpret(res *DiagnosisResult) Interpretation {
	return DefaultRecommendations.Interpret(res)
}

// PatientInterpretation pairs one batch result with the input line it came from.
type PatientInterpretation struct {
	PatientID  int
	Line       int // 0 when the source line is unknown
	Diagnosis  string
	Malignant  bool
	Confidence string
}

// InterpretBatch correlates batch results to source lines by position.
// lines may be shorter than the results (or nil).
func InterpretBatch(res *BatchResult, lines []int) []PatientInterpretation {
	if res == nil {
		return nil
	}
	out := make([]PatientInterpretation, len(res.Results))
	for i, p := range res.Results {
		pi := PatientInterpretation{
			PatientID:  p.PatientID,
			Diagnosis:  p.Diagnosis,
			Malignant:  p.Diagnosis == LabelMalignant,
			Confidence: FormatConfidence(p.Confidence),
		}
		if i < len(lines) {
			pi.Line = lines[i]
		}
		out[i] = pi
	}
	return out
}
