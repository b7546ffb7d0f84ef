package auth

import (
	"net/http"
	"strings"

	"github.com/programmer4yugal/buildchain/pkg/api"
)

var publicPaths = map[string]bool{
	"/health": true,
}

// Anonymous is the principal attached to unauthenticated public reads.
var Anonymous = Principal{Subject: "anonymous", Roles: []string{RolePublic}}

// NewMiddleware authenticates bearer tokens. Requests to public paths pass
// through. A nil validator fails closed.
func NewMiddleware(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			if header == "" {
				api.WriteUnauthorized(w, r, "Missing Authorization header")
				return
			}
			authenticate(w, r, v, header, next)
		})
	}
}

// NewOptionalMiddleware is NewMiddleware for read-only public routes: a
// request without credentials proceeds as Anonymous. Credentials that are
// present must still be valid.
func NewOptionalMiddleware(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), Anonymous)))
				return
			}
			authenticate(w, r, v, header, next)
		})
	}
}

func authenticate(w http.ResponseWriter, r *http.Request, v *Validator, header string, next http.Handler) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		api.WriteUnauthorized(w, r, "Expected 'Bearer <token>'")
		return
	}
	if v == nil {
		api.WriteUnauthorized(w, r, "Authentication not configured")
		return
	}

	claims, err := v.Validate(token)
	if err != nil {
		api.WriteUnauthorized(w, r, "Invalid or expired token")
		return
	}

	ctx := WithPrincipal(r.Context(), Principal{Subject: claims.Subject, Roles: claims.Roles})
	next.ServeHTTP(w, r.WithContext(ctx))
}

// RequireRole allows the request when the caller holds any of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := GetPrincipal(r.Context())
			if err != nil {
				api.WriteUnauthorized(w, r, "")
				return
			}
			for _, role := range roles {
				if p.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			api.WriteForbidden(w, r, "Requires role: "+strings.Join(roles, " or "))
		})
	}
}
