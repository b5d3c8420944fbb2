package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/saccogov/internal/domain"
)

// Issuer is stamped on every token and required on verification, so tokens
// minted for other services sharing the secret are refused.
const Issuer = "saccogov"

// clockSkew tolerates small clock differences between the CLI and the server.
const clockSkew = 30 * time.Second

// Claims carries the principal. Role is the committee office the member acts in.
type Claims struct {
	MemberID string      `json:"member_id"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal returns the actor the token speaks for.
func (c *Claims) Principal() domain.Principal {
	return domain.Principal{MemberID: c.MemberID, Role: c.Role}
}

// JWTManager issues and verifies HS256 tokens.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	parser        *jwt.Parser
}

// NewJWTManager creates a JWTManager. tokenDuration sets the lifetime of issued tokens.
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// Generate issues a token for a member acting in role. Borrower is relational
// and never issued.
func (m *JWTManager) Generate(p domain.Principal) (string, error) {
	if p.MemberID == "" {
		return "", domain.ErrUnauthorized
	}
	if !p.Role.IsValid() {
		return "", domain.ErrInvalidRole
	}

	now := time.Now()
	claims := Claims{
		MemberID: p.MemberID,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   p.MemberID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// Verify parses tokenString and returns its claims.
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrExpiredToken
		}
		return nil, domain.ErrInvalidToken
	}

	if !token.Valid || claims.MemberID == "" {
		return nil, domain.ErrInvalidToken
	}
	if !claims.Role.IsValid() {
		return nil, domain.ErrInvalidRole
	}

	return claims, nil
}
