package core

import "strings"

// Feature is the name of one cytology measurement column.
type Feature string

// FeatureSchema lists the nine measurements in the order the diagnosis
// service expects them. Every builder, the template exporter and the header
// check read this slice; nothing else may restate the order.
var FeatureSchema = [FeatureCount]Feature{
	"Clump_Thickness",
	"Uniformity_of_Cell_Size",
	"Uniformity_of_Cell_Shape",
	"Marginal_Adhesion",
	"Single_Epithelial_Cell_Size",
	"Bare_nuclei",
	"Bland_Chromatin",
	"Normal_Nucleoli",
	"Mitoses",
}

// FeatureCount is the number of measurements in a record.
const FeatureCount = 9

// Form input bounds for the single-record path. Batch input is not range checked.
const (
	FormMin     = 1
	FormMax     = 10
	FormDefault = 1
)

// FeatureDescriptions is the help text shown next to each form input.
var FeatureDescriptions = map[Feature]string{
	"Clump_Thickness":             "Assesses if cells are mono or multi-layered",
	"Uniformity_of_Cell_Size":     "Evaluates the consistency in size of cells",
	"Uniformity_of_Cell_Shape":    "Measures the similarity in shape of the cells",
	"Marginal_Adhesion":           "Loss of adhesion is a sign of malignancy",
	"Single_Epithelial_Cell_Size": "Relates to cell uniformity",
	"Bare_nuclei":                 "Nuclei not surrounded by cytoplasm",
	"Bland_Chromatin":             "Describes the uniform texture of the nucleus",
	"Normal_Nucleoli":             "Small structures in the nucleus",
	"Mitoses":                     "Measure of cell division rate",
}

// Label returns the feature name with underscores replaced by spaces.
func (f Feature) Label() string {
	return strings.ReplaceAll(string(f), "_", " ")
}

// FeatureIndex returns the schema position of name, or -1.
func FeatureIndex(name string) int {
	for i, f := range FeatureSchema {
		if string(f) == name {
			return i
		}
	}
	return -1
}

// FeatureNames returns the schema as plain strings.
func FeatureNames() []string {
	names := make([]string, FeatureCount)
	for i, f := range FeatureSchema {
		names[i] = string(f)
	}
	return names
}

// HeaderIndex maps trimmed header names to their column position.
type HeaderIndex map[string]int

// ValidationPolicy decides what happens to a batch that contains bad rows.
type ValidationPolicy int

const (
	// PolicyRejectAll fails the whole batch on the first bad cell.
	PolicyRejectAll ValidationPolicy = iota
	// PolicyPartial keeps the good rows and reports the bad ones.
	PolicyPartial
)

func (p ValidationPolicy) String() string {
	if p == PolicyPartial {
		return "partial"
	}
	return "reject_all"
}

// ParseValidationPolicy accepts "reject_all" (or empty) and "partial".
func ParseValidationPolicy(s string) (ValidationPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject_all", "reject-all", "rejectall":
		return PolicyRejectAll, true
	case "partial":
		return PolicyPartial, true
	}
	return PolicyRejectAll, false
}
