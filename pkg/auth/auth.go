// Package auth authenticates API callers with HS256 bearer tokens and
// carries the caller's identity through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles understood by the API. RolePublic may only read.
const (
	RoleAdmin      = "admin"
	RoleContractor = "contractor"
	RolePublic     = "public"
)

const issuer = "buildchain"

var (
	ErrNoPrincipal = errors.New("auth: no principal in context")
	ErrNoSecret    = errors.New("auth: signing secret is not configured")
)

// Claims are the JWT claims issued to BuildChain users.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// Principal is an authenticated caller.
type Principal struct {
	Subject string
	Roles   []string
}

// HasRole reports whether p holds role. Admins hold every role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role) || slices.Contains(p.Roles, RoleAdmin)
}

type contextKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// GetPrincipal returns the caller attached by the middleware.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	if !ok {
		return Principal{}, ErrNoPrincipal
	}
	return p, nil
}

// Validator checks HS256 tokens against a shared secret.
type Validator struct {
	secret []byte
	now    func() time.Time
}

// NewValidator returns nil when secret is empty; the middleware then
// rejects every protected request.
func NewValidator(secret string) *Validator {
	if secret == "" {
		return nil
	}
	return &Validator{secret: []byte(secret), now: time.Now}
}

// Validate parses tokenStr and returns its claims.
func (v *Validator) Validate(tokenStr string) (*Claims, error) {
	if v == nil {
		return nil, ErrNoSecret
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("auth: token subject is required")
	}
	return claims, nil
}

// IssueToken signs a token for subject with the given roles.
func IssueToken(secret, subject string, roles []string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if subject == "" {
		return "", errors.New("auth: subject is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
