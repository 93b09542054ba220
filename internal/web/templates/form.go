package templates

import (
	"strconv"

	"github.com/JonMunkholm/cytodx/internal/core"
)

// FormData is what the single-record form shows.
type FormData struct {
	Values map[core.Feature]string
	Error  core.UserMessage
}

// FormField is one slider of the form, pre-formatted for rendering.
type FormField struct {
	Name        string
	Label       string
	Description string
	Min, Max    string
	Value       string
}

// DefaultFormData returns the form with every input at its default.
func DefaultFormData() FormData {
	return FormDataFrom(core.NewFormState(), core.UserMessage{})
}

// FormDataFrom renders the current values of f.
func FormDataFrom(f *core.FormState, msg core.UserMessage) FormData {
	values := make(map[core.Feature]string, core.FeatureCount)
	for _, feat := range core.FeatureSchema {
		values[feat] = f.ValueString(feat)
	}
	return FormData{Values: values, Error: msg}
}

// Fields lists the sliders in schema order. A missing value falls back to
// the form default.
func (d FormData) Fields() []FormField {
	fields := make([]FormField, 0, core.FeatureCount)
	for _, feat := range core.FeatureSchema {
		v := d.Values[feat]
		if v == "" {
			v = core.FormatValue(core.FormDefault)
		}
		fields = append(fields, FormField{
			Name:        string(feat),
			Label:       feat.Label(),
			Description: core.FeatureDescriptions[feat],
			Min:         strconv.Itoa(core.FormMin),
			Max:         strconv.Itoa(core.FormMax),
			Value:       v,
		})
	}
	return fields
}
