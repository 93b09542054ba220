package core

import (
	"errors"
	"fmt"
	"math"
)

// FormState holds the nine single-record inputs. The zero value is not
// usable; start from NewFormState.
type FormState struct {
	values [FeatureCount]float64
}

// NewFormState returns a form with every input at FormDefault.
func NewFormState() *FormState {
	f := &FormState{}
	for i := range f.values {
		f.values[i] = FormDefault
	}
	return f
}

// Set assigns a value by feature name. It rejects unknown names and values
// outside FormMin..FormMax.
func (f *FormState) Set(name string, v float64) error {
	i := FeatureIndex(name)
	if i < 0 {
		return &FormError{Field: name, Value: FormatValue(v), Reason: "unknown field"}
	}
	if math.IsNaN(v) || v < FormMin || v > FormMax {
		return &FormError{Field: name, Value: FormatValue(v), Reason: fmt.Sprintf("must be between %d and %d", FormMin, FormMax)}
	}
	f.values[i] = v
	return nil
}

// SetString parses raw and assigns it.
func (f *FormState) SetString(name, raw string) error {
	v, ok := CoerceNumeric(raw)
	if !ok {
		if FeatureIndex(name) < 0 {
			return &FormError{Field: name, Value: raw, Reason: "unknown field"}
		}
		return &FormError{Field: name, Value: raw, Reason: "not a number"}
	}
	return f.Set(name, v)
}

// Value returns the current value of a feature.
func (f *FormState) Value(name Feature) float64 {
	i := FeatureIndex(string(name))
	if i < 0 {
		return 0
	}
	return f.values[i]
}

// ValueString is Value formatted for an input element.
func (f *FormState) ValueString(name Feature) string {
	return FormatValue(f.Value(name))
}

// Build returns the single-record payload in schema order.
func (f *FormState) Build() SingleRequest {
	return SingleRequest{Features: f.values}
}

// FormFromValues builds a form from name/value pairs, such as a submitted
// HTML form. Fields absent from values keep their default. Every invalid
// field is reported, joined into one error.
func FormFromValues(get func(name string) (string, bool)) (*FormState, error) {
	f := NewFormState()
	var errs []error
	for _, feat := range FeatureSchema {
		raw, ok := get(string(feat))
		if !ok {
			continue
		}
		if err := f.SetString(string(feat), raw); err != nil {
			errs = append(errs, err)
		}
	}
	return f, errors.Join(errs...)
}
