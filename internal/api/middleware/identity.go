package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Akash0391/todo-project/internal/api/shared"
)

// AnonymousIdentity is the identity assigned to callers that present no
// token.
const AnonymousIdentity = "anonymous"

// IdentityMiddleware resolves the caller's identity from the Authorization
// header (or a token query parameter for websocket clients, which cannot set
// headers from browsers) and stores it in the request context. Requests are
// never rejected here: identity scopes event rooms, it does not gate access.
func IdentityMiddleware(fallback string) func(http.Handler) http.Handler {
	if fallback == "" {
		fallback = AnonymousIdentity
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			identity := ResolveIdentity(token, fallback)
			ctx := shared.SetIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResolveIdentity maps a raw token to an identity. A JWT-shaped token yields
// its subject claim via an unverified parse; this layer deliberately performs
// no signature verification, it only needs a stable identity to scope rooms.
// A non-JWT token is used verbatim; an empty token falls back.
func ResolveIdentity(token, fallback string) string {
	if token == "" {
		return fallback
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			return sub
		}
	}

	return token
}

// bearerToken extracts the raw token from the Authorization header, falling
// back to the token query parameter.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
