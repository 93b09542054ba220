package web

import (
	"net/http"
	"net/url"

	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/JonMunkholm/cytodx/internal/logging"
	"github.com/JonMunkholm/cytodx/internal/web/templates"
	"github.com/a-h/templ"
)

// handleForm renders the single-record form at its defaults.
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, templates.FormPage(templates.DefaultFormData()))
}

// handleDiagnose submits the form. Success redirects to the results view
// with a one-shot token; failure re-renders the form with the error.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	form, formErr := core.FormFromValues(func(name string) (string, bool) {
		vs, ok := r.PostForm[name]
		if !ok || len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	})

	ctx := WithRequestMetadata(r.Context(), r)
	out, err := s.service.SubmitSingle(ctx, sessionID(ctx), form, formErr)
	if err == nil && out.State.Phase == core.PhaseSucceeded {
		http.Redirect(w, r, "/results?token="+url.QueryEscape(out.Token), http.StatusSeeOther)
		return
	}
	if err == nil {
		err = out.State.Err
	}

	logging.FromContext(ctx).Info("diagnosis not completed",
		"correlation_id", out.State.CorrelationID,
		"code", core.MapError(err).Code,
	)
	render(w, r, statusFor(err), templates.FormPage(templates.FormDataFrom(form, core.MapError(err))))
}

// handleResults shows a handed-off result exactly once.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	interp := s.service.TakeResult(r.URL.Query().Get("token"))
	render(w, r, http.StatusOK, templates.ResultsPage(interp))
}

// render writes an HTML component with the given status.
func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render failed", "path", r.URL.Path, "error", err)
	}
}
