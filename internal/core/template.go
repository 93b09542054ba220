package core

import "strings"

// TemplateFilename is the download name of the batch template.
const TemplateFilename = "batch_template.csv"

// TemplateCSV returns the batch upload template: the schema header and one
// example row of 1s, with no trailing newline.
func TemplateCSV() string {
	ones := make([]string, FeatureCount)
	for i := range ones {
		ones[i] = FormatValue(FormDefault)
	}
	return strings.Join(FeatureNames(), ",") + "\n" + strings.Join(ones, ",")
}
