package core

// # Error Codes Reference
//
// Every error that reaches a view is mapped to a UserMessage with a code
// that support staff can look up here.
//
// # Input Errors (PARSE, SCHEMA, DATA, FORM, EMPTY)
//
//	PARSE001  - File could not be read as comma-separated text
//	SCHEMA001 - One or more required headers are missing
//	DATA001   - A cell is empty or not a number
//	FORM001   - A form value is outside 1-10 or names an unknown field
//	EMPTY001  - The submission contains no records
//
// # Service Errors (REQ, SHAPE)
//
//	REQ001   - The diagnosis service answered with a non-success status
//	REQ002   - The diagnosis service could not be reached
//	REQ003   - The request was cancelled
//	REQ004   - The diagnosis service did not answer in time
//	SHAPE001 - The service answered successfully with an unexpected body
//
// # Upload and Capacity Errors (FILE, BUSY, RATE)
//
//	FILE001 - File exceeds the upload size limit
//	FILE002 - No file was provided
//	BUSY001 - Too many diagnosis calls are in progress
//	BUSY002 - A submission from this form is already pending
//	BUSY003 - A newer submission from the same form replaced this one
//	RATE001 - Too many requests from this client
//
// # Default Error (ERR000)
//
// Typed errors are matched first with errors.As. Anything else falls through
// to case-insensitive substring patterns, then to ERR000.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is consulted only for untyped errors. First match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the upload size limit",
			Action:  "Split the file into smaller batches",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV or XLSX file to upload",
			Code:    "FILE002",
		},
	},
	{
		pattern: "too many diagnosis calls",
		msg: UserMessage{
			Message: "The diagnosis service is busy",
			Action:  "Please wait a moment and try again",
			Code:    "BUSY001",
		},
	},
	{
		pattern: "already in progress",
		msg: UserMessage{
			Message: "A submission is already in progress",
			Action:  "Wait for the current result before submitting again",
			Code:    "BUSY002",
		},
	},
	{
		pattern: "superseded",
		msg: UserMessage{
			Message: "This submission was replaced by a newer one",
			Action:  "The latest submission's result will be shown instead",
			Code:    "BUSY003",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
// Returns an empty UserMessage for nil.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		parseErr  *ParseError
		schemaErr *SchemaError
		dataErr   *DataError
		emptyErr  *EmptyPayloadError
		reqErr    *RequestError
		shapeErr  *ResponseShapeError
		formErr   *FormError
	)
	switch {
	case errors.As(err, &parseErr):
		if errors.Is(err, ErrFileTooLarge) {
			break
		}
		return UserMessage{Message: MsgParse, Action: "Save the file as comma-separated text and try again", Code: "PARSE001"}
	case errors.As(err, &schemaErr):
		return UserMessage{Message: MsgSchema, Action: "Download the template and compare the header row", Code: "SCHEMA001"}
	case errors.As(err, &dataErr):
		return UserMessage{Message: MsgData, Action: "Fix or remove the rows listed in the validation report", Code: "DATA001"}
	case errors.As(err, &formErr):
		return UserMessage{Message: MsgForm, Action: "Adjust the highlighted value", Code: "FORM001"}
	case errors.As(err, &emptyErr):
		return UserMessage{Message: MsgEmptyPayload, Action: "Add at least one data row below the header", Code: "EMPTY001"}
	case errors.As(err, &shapeErr):
		return UserMessage{Message: MsgShape, Action: "Check that the service URL points at a compatible diagnosis service", Code: "SHAPE001"}
	case errors.As(err, &reqErr):
		return requestMessage(reqErr)
	case errors.Is(err, context.Canceled):
		return UserMessage{Message: "Request was cancelled", Action: "Please try again", Code: "REQ003"}
	case errors.Is(err, context.DeadlineExceeded):
		return UserMessage{Message: "The diagnosis service did not respond in time", Action: "Try again or submit a smaller batch", Code: "REQ004"}
	}

	lower := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(lower, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

func requestMessage(e *RequestError) UserMessage {
	if e.Status != 0 {
		return UserMessage{Message: e.Message(), Action: "Check the diagnosis service logs and try again", Code: "REQ001"}
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return UserMessage{Message: e.Message(), Action: "Try again or submit a smaller batch", Code: "REQ004"}
	}
	if errors.Is(e.Err, context.Canceled) {
		return UserMessage{Message: e.Message(), Action: "Please try again", Code: "REQ003"}
	}
	return UserMessage{Message: e.Message(), Action: "Check that the diagnosis service is running", Code: "REQ002"}
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error for logging with the message for display.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
