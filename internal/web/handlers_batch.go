package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/JonMunkholm/cytodx/internal/logging"
	"github.com/JonMunkholm/cytodx/internal/web/templates"
)

// multipartOverhead is headroom for boundaries and part headers on top of
// the file size limit.
const multipartOverhead = 64 << 10

func (s *Server) handleBatchPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, templates.BatchPage(templates.BatchData{
		MaxUploadBytes: s.service.MaxUploadBytes(),
	}))
}

// handleBatch validates and submits an uploaded file, then renders the
// per-patient results or the validation errors.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	data := templates.BatchData{MaxUploadBytes: s.service.MaxUploadBytes()}

	file, header, err := s.readUpload(w, r)
	if err != nil {
		data.Error = core.MapError(err)
		render(w, r, statusFor(err), templates.BatchPage(data))
		return
	}
	defer file.Close()
	data.Filename = header.Filename

	ctx := WithRequestMetadata(r.Context(), r)
	out, err := s.service.SubmitBatch(ctx, sessionID(ctx), file, header.Filename)
	data.Report = out.Report
	if err == nil && out.State.Phase == core.PhaseSucceeded {
		data.Patients = out.Patients
		data.RawJSON = indentJSON(out.State.Result.Raw)
		logging.WithFields(ctx, "file", header.Filename, "patients", len(out.Patients)).Info("batch diagnosed")
		render(w, r, http.StatusOK, templates.BatchPage(data))
		return
	}
	if err == nil {
		err = out.State.Err
	}

	data.Error = core.MapError(err)
	logging.WithFields(ctx, "file", header.Filename, "code", data.Error.Code).Info("batch not completed")
	render(w, r, statusFor(err), templates.BatchPage(data))
}

// validateResponse is the JSON body of /api/validate.
type validateResponse struct {
	Filename string `json:"filename"`
	OK       bool   `json:"ok"`
	*core.ValidationReport
}

// handleValidate reports every row of an upload without calling the
// diagnosis service.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	report, err := s.service.ValidateUpload(ctx, file, header.Filename)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Filename:         header.Filename,
		OK:               report.Err() == nil,
		ValidationReport: report,
	})
}

// readUpload extracts the "file" part of a multipart upload, capped at the
// configured size.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	maxSize := s.service.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, core.ErrFileTooLarge
		}
		return nil, nil, fmt.Errorf("invalid upload form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errNoFile
	}
	if header.Size > maxSize {
		file.Close()
		return nil, nil, core.ErrFileTooLarge
	}
	return file, header, nil
}

func indentJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
