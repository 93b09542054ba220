package core

import (
	"errors"
	"fmt"
	"strings"
)

// Fixed user-visible messages for the ingestion and request error kinds.
const (
	MsgParse        = "Failed to parse CSV file. Please check the format."
	MsgSchema       = "Invalid CSV format. Please ensure all required headers are present."
	MsgData         = "Invalid data found. Please ensure all values are numeric."
	MsgEmptyPayload = "No patient data to process."
	MsgShape        = "Unexpected response from the diagnosis service."
	MsgForm         = "Values must be between 1 and 10."
)

var (
	// ErrSuperseded is returned to a caller whose submission was replaced by
	// a newer one before its response arrived. The response is discarded.
	ErrSuperseded = errors.New("submission superseded by a newer request")

	// ErrSubmissionInFlight is returned when the orchestrator refuses a
	// resubmission while a call is pending.
	ErrSubmissionInFlight = errors.New("a submission is already in progress")

	// ErrFileTooLarge is returned when an upload exceeds the configured cap.
	ErrFileTooLarge = errors.New("file too large")
)

// ParseError reports tabular input that could not be read at all.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Reason, e.Err)
	}
	return "parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports required headers absent from the input.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// CellError describes one cell that failed numeric coercion.
type CellError struct {
	Line   int    `json:"line"`   // 1-based source line
	Column string `json:"column"` // header name, or "#n" for a cell past the header
	Value  string `json:"value"`
}

func (c CellError) String() string {
	return fmt.Sprintf("line %d, column %s: %q", c.Line, c.Column, c.Value)
}

// DataError reports non-numeric or missing values. Cells holds every
// failure the validator saw before it stopped.
type DataError struct {
	Cells []CellError
}

func (e *DataError) Error() string {
	if len(e.Cells) == 0 {
		return "non-numeric or missing value"
	}
	return "non-numeric or missing value at " + e.Cells[0].String()
}

// EmptyPayloadError reports a submission with no records.
type EmptyPayloadError struct{}

func (*EmptyPayloadError) Error() string { return "no patient data to process" }

// RequestError reports a failed call to the diagnosis service.
// Status is zero when the request never produced a response.
type RequestError struct {
	Status int
	Detail string // "detail" string from the error body, if any
	Err    error
}

func (e *RequestError) Error() string {
	switch {
	case e.Status != 0 && e.Detail != "":
		return fmt.Sprintf("diagnosis request: status %d: %s", e.Status, e.Detail)
	case e.Status != 0:
		return fmt.Sprintf("diagnosis request: status %d", e.Status)
	case e.Err != nil:
		return "diagnosis request: " + e.Err.Error()
	}
	return "diagnosis request failed"
}

func (e *RequestError) Unwrap() error { return e.Err }

// Message derives the text shown to the user: the service's own detail,
// else the status, else the transport error.
func (e *RequestError) Message() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Status != 0:
		return fmt.Sprintf("Server error %d", e.Status)
	case e.Err != nil:
		return e.Err.Error()
	}
	return "Request failed"
}

// ResponseShapeError reports a success response that does not match the
// expected contract.
type ResponseShapeError struct {
	Reason string
}

func (e *ResponseShapeError) Error() string { return "unexpected response shape: " + e.Reason }

// FormError reports an out-of-range or unknown single-record input.
type FormError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FormError) Error() string {
	return fmt.Sprintf("form field %s=%q: %s", e.Field, e.Value, e.Reason)
}
