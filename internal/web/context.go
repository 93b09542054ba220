package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/JonMunkholm/cytodx/internal/web/middleware"
	"github.com/google/uuid"
)

// SessionCookie names the cookie that keys per-browser state.
const SessionCookie = "cytodx_session"

type ctxKey struct{}

// WithRequestMetadata adds client IP and User-Agent to ctx for the audit trail.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClient(ctx, middleware.ClientIP(r), r.UserAgent())
}

// sessionMiddleware issues a session cookie on first visit and stores the
// id in the request context.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(s.cfg.Session.TTL.Seconds()),
				HttpOnly: true,
				Secure:   s.cfg.Session.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// sessionID returns the id set by sessionMiddleware.
func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
