// Package diagnosis is the HTTP client for the remote cytology classifier.
//
// The client enforces the response contract at the boundary: any success
// body that does not decode into the expected shape is returned as a
// *core.ResponseShapeError, and any non-2xx or transport failure as a
// *core.RequestError.
package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/cytodx/internal/core"
)

const (
	DefaultBaseURL    = "http://127.0.0.1:8000"
	DefaultSinglePath = "/diagnose"
	DefaultBatchPath  = "/api/batch-diagnose"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// Client calls the diagnosis service.
type Client struct {
	baseURL    string
	singlePath string
	batchPath  string
	http       *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithPaths overrides the single and batch endpoint paths.
func WithPaths(single, batch string) Option {
	return func(cl *Client) {
		if single != "" {
			cl.singlePath = single
		}
		if batch != "" {
			cl.batchPath = batch
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New returns a client for the service at baseURL.
//
// The default transport bounds connection setup but leaves the overall
// deadline to the caller's context, which the orchestrator always sets.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   8,
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		singlePath: DefaultSinglePath,
		batchPath:  DefaultBatchPath,
		http:       &http.Client{Transport: tr},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Diagnose classifies one record.
func (c *Client) Diagnose(ctx context.Context, req core.SingleRequest) (core.DiagnosisResult, error) {
	body, err := c.post(ctx, c.singlePath, req)
	if err != nil {
		return core.DiagnosisResult{}, err
	}
	var w wireResult
	if err := decodeStrict(body, &w); err != nil {
		return core.DiagnosisResult{}, err
	}
	res, err := w.result()
	if err != nil {
		return core.DiagnosisResult{}, err
	}
	if err := res.Validate(); err != nil {
		return core.DiagnosisResult{}, err
	}
	return res, nil
}

// DiagnoseBatch classifies every record of req. The result must contain one
// entry per patient, in submission order.
func (c *Client) DiagnoseBatch(ctx context.Context, req core.BatchRequest) (core.BatchResult, error) {
	body, err := c.post(ctx, c.batchPath, req)
	if err != nil {
		return core.BatchResult{}, err
	}
	var w wireBatch
	if err := decodeStrict(body, &w); err != nil {
		return core.BatchResult{}, err
	}
	res, err := w.result()
	if err != nil {
		return core.BatchResult{}, err
	}
	if err := res.Validate(req.Len()); err != nil {
		return core.BatchResult{}, err
	}
	res.Raw = json.RawMessage(body)
	return res, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &core.RequestError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if id := core.CorrelationIDFromContext(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &core.RequestError{Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	c.logger.Debug("diagnosis service responded",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"correlation_id", core.CorrelationIDFromContext(ctx),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.RequestError{Status: resp.StatusCode, Detail: errorDetail(body)}
	}
	if readErr != nil {
		return nil, &core.RequestError{Err: fmt.Errorf("read response: %w", readErr)}
	}
	return body, nil
}

// errorDetail extracts a string "detail" field from an error body. Bodies
// that are not JSON, or whose detail is not a string, yield "".
func errorDetail(body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil || len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// decodeStrict decodes a success body, mapping any failure to a shape error.
func decodeStrict(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return &core.ResponseShapeError{Reason: "empty body"}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &core.ResponseShapeError{Reason: err.Error()}
	}
	return nil
}
