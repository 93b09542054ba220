package web

// errors.go turns failures into responses.
//
// Every error is:
//   - Logged with full technical details and the request ID (server-side)
//   - Mapped via core.MapError to a message, an action and a support code
//   - Rendered as JSON for /api routes and JSON clients, HTML otherwise

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/JonMunkholm/cytodx/internal/logging"
	"github.com/JonMunkholm/cytodx/internal/web/templates"
)

var (
	errRateLimited   = errors.New("rate limit exceeded")
	errNoFile        = errors.New("no file provided")
	errAuditDisabled = errors.New("audit log is not configured")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
		return
	}
	respondErrorHTML(w, r, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondErrorHTML renders the error alert fragment.
func respondErrorHTML(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// statusFor picks the HTTP status for a failed submission.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}

	switch core.MapError(err).Code {
	case "PARSE001", "SCHEMA001", "DATA001", "FORM001", "EMPTY001":
		return http.StatusUnprocessableEntity
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "FILE002":
		return http.StatusBadRequest
	case "BUSY001":
		return http.StatusServiceUnavailable
	case "BUSY002", "BUSY003":
		return http.StatusConflict
	case "RATE001":
		return http.StatusTooManyRequests
	case "REQ001", "REQ002", "SHAPE001":
		return http.StatusBadGateway
	case "REQ003":
		return http.StatusRequestTimeout
	case "REQ004":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
