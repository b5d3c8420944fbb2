package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iho/saccogov/internal/adapter/http/dto"
	"github.com/iho/saccogov/internal/domain"
	"github.com/iho/saccogov/internal/infrastructure/auth"
	"github.com/iho/saccogov/internal/infrastructure/metrics"
)

const (
	// MemberIDHeader and RoleHeader carry the principal when token auth is
	// disabled and an upstream gateway has already authenticated the caller.
	MemberIDHeader = "X-Member-ID"
	RoleHeader     = "X-Role"
)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// AuthMiddleware resolves the principal from a bearer token and rejects
// requests without a valid one.
func AuthMiddleware(verifier TokenVerifier, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				authFailed(w, m, "missing", "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				authFailed(w, m, "malformed", "invalid authorization header format")
				return
			}

			claims, err := verifier.Verify(parts[1])
			if err != nil {
				reason := "invalid"
				if errors.Is(err, domain.ErrExpiredToken) {
					reason = "expired"
				}
				authFailed(w, m, reason, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, withPrincipal(r, claims.Principal()))
		})
	}
}

// HeaderAuth trusts the X-Member-ID and X-Role headers.
func HeaderAuth(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := domain.Principal{
				MemberID: r.Header.Get(MemberIDHeader),
				Role:     domain.Role(r.Header.Get(RoleHeader)),
			}
			if p.Role == "" {
				p.Role = domain.RoleMember
			}
			if p.MemberID == "" {
				authFailed(w, m, "missing", "missing "+MemberIDHeader+" header")
				return
			}
			if !p.Role.IsValid() {
				authFailed(w, m, "invalid_role", "unknown role")
				return
			}

			next.ServeHTTP(w, withPrincipal(r, p))
		})
	}
}

// withPrincipal stores p on the request and tags the request logger with it,
// so the access log line names the actor.
func withPrincipal(r *http.Request, p domain.Principal) *http.Request {
	tagRequestLogger(r.Context(), func(c zerolog.Context) zerolog.Context {
		return c.Str("member_id", p.MemberID).Str("role", string(p.Role))
	})
	return r.WithContext(domain.WithPrincipal(r.Context(), p))
}

// RequireRole only lets principals holding one of roles through.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := domain.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			if !allowed[p.Role] {
				writeError(w, http.StatusForbidden, "insufficient permissions", "forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func authFailed(w http.ResponseWriter, m *metrics.Metrics, reason, message string) {
	if m != nil {
		m.AuthFailures.WithLabelValues(reason).Inc()
	}
	writeError(w, http.StatusUnauthorized, message, "unauthorized")
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{Error: message, Code: code})
}
