package api

import (
	"context"
	"net/http"
	"time"

	"github.com/pyhostd/pyhostd/internal/auth"
	"github.com/pyhostd/pyhostd/internal/protocol"
)

type contextKey int

const identityContextKey contextKey = iota

// securityHeaders applies the fixed header set to every response (spec §6.3).
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self'; script-src 'none'; object-src 'none'")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=(), payment=()")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware allows cross-origin API consumption the way GonzoDMX's
// MiddlewareChain does, generalised into a chi-compatible handler.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Admin-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLog emits one structured log line per request.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// authenticate resolves the caller's identity, refusing unauthenticated
// access at the route layer (spec §6.4).
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.verifier.Resolve(r)
		if err != nil {
			writeErrorKind(w, protocol.KindUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit consults the configured Limiter before dispatching, auditing
// rejected requests even though they never reach the Pool (spec §4.5).
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromContext(r.Context())
		allowed, err := s.limiter.Allow(r.Context(), identity.UserID)
		if err != nil {
			s.logger.Error("rate limiter error", "error", err)
		}
		if !allowed {
			s.auditLog.Begin(identity.UserID, "rate_limited:"+r.URL.Path, "", clientIP(r))
			writeErrorKind(w, protocol.KindRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFromContext(ctx context.Context) auth.Identity {
	if v, ok := ctx.Value(identityContextKey).(auth.Identity); ok {
		return v
	}
	return auth.Identity{}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, StandardResponse{Success: true, Data: map[string]string{"status": "healthy"}})
}
