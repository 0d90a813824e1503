package api

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/sealed-log/pkg/sealedlog"
)

type contextKey string

const identityKey contextKey = "identity"

// NewTokenAuth returns an HS256 verifier for caller tokens.
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// IssueToken signs a token whose subject is identity. Used by tests and the
// development server to hand out caller credentials.
func IssueToken(tokenAuth *jwtauth.JWTAuth, identity sealedlog.Identity) (string, error) {
	_, token, err := tokenAuth.Encode(map[string]interface{}{"sub": string(identity)})
	return token, err
}

// RequireIdentity rejects requests without a verified token and stores the
// token subject as the caller identity. It must run after jwtauth.Verifier.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			writeStatus(w, r, http.StatusUnauthorized, CodeUnauthenticated, "missing or invalid token")
			return
		}

		sub, _ := claims["sub"].(string)
		if sub == "" {
			writeStatus(w, r, http.StatusUnauthorized, CodeUnauthenticated, "token has no subject")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, sealedlog.Identity(sub))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the caller identity set by RequireIdentity.
func IdentityFromContext(ctx context.Context) sealedlog.Identity {
	id, _ := ctx.Value(identityKey).(sealedlog.Identity)
	return id
}
