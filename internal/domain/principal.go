package domain

import (
	"context"
	"errors"
)

// Role represents a member's office within the SACCO.
type Role string

const (
	// RoleMember is an ordinary member with no office.
	RoleMember Role = "member"

	// RoleLoanOfficer reviews submitted applications.
	RoleLoanOfficer Role = "loan_officer"

	// RoleSecretary tables applications and records final decisions.
	RoleSecretary Role = "secretary"

	// RoleChairperson runs committee meetings and voting.
	RoleChairperson Role = "chairperson"

	// RoleTreasurer disburses approved loans.
	RoleTreasurer Role = "treasurer"

	// RoleAdmin manages configuration. It holds no workflow authority.
	RoleAdmin Role = "admin"
)

// RoleBorrower is relational: whoever owns the loan, regardless of office.
// It is never assigned to a principal.
const RoleBorrower Role = "borrower"

var validRoles = map[Role]bool{
	RoleMember:      true,
	RoleLoanOfficer: true,
	RoleSecretary:   true,
	RoleChairperson: true,
	RoleTreasurer:   true,
	RoleAdmin:       true,
}

// IsValid checks if the role can be assigned to a principal.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsOfficer reports whether the role carries committee authority.
func (r Role) IsOfficer() bool {
	switch r {
	case RoleLoanOfficer, RoleSecretary, RoleChairperson, RoleTreasurer:
		return true
	}
	return false
}

// Principal is the authenticated actor behind a request.
type Principal struct {
	MemberID string
	Role     Role
}

// Authentication errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrInvalidRole  = errors.New("invalid role")
)

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached to ctx.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.MemberID != ""
}
