package handler

import (
	"net/http"

	"github.com/iho/saccogov/internal/domain"
)

// AuthHandler exposes the resolved principal.
type AuthHandler struct{}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// PrincipalInfo represents the authenticated member.
type PrincipalInfo struct {
	MemberID string      `json:"member_id"`
	Role     domain.Role `json:"role"`
	Officer  bool        `json:"officer"`
}

// Me returns the member and office the request was authenticated as.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := domain.PrincipalFromContext(r.Context())
	if !ok {
		writeDomainError(w, r, "unauthorized", domain.ErrUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, PrincipalInfo{
		MemberID: p.MemberID,
		Role:     p.Role,
		Officer:  p.Role.IsOfficer(),
	})
}
