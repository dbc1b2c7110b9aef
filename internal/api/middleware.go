package api

import (
	"net"
	"net/http"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/auth"
	"aicaas.com/chatbot-backend/internal/ratelimit"
)

// SessionAuthMiddleware resolves the bearer credential into a user identity.
// Every failure gets the same response.
func (h *APIHandler) SessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := h.authn.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		ctx := auth.WithIdentity(r.Context(), session.UserID, session.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware limits requests per client IP.
func (h *APIHandler) RateLimitMiddleware(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r.Context(), clientIP(r)) {
				h.log.Warnw("rate limited", "path", r.URL.Path, "ip", clientIP(r))
				writeError(w, r, h.log, apperr.RateLimited())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientMeta(r *http.Request) string {
	return r.UserAgent() + " " + clientIP(r)
}
