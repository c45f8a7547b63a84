package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aretw0/tally/pkg/domain"
)

// DefaultIdentityHeader carries the caller's user ID in development mode.
const DefaultIdentityHeader = "X-User-ID"

type identityKey struct{}

// IdentityFrom returns the caller identity attached by the Authenticator.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

// WithIdentity attaches an identity to ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// Authenticator resolves the caller of a request.
// A bearer token listed in tokens wins; otherwise, when header is set, its
// value is trusted as the user ID. Requests with neither are rejected with 401.
type Authenticator struct {
	tokens map[string]domain.Identity
	header string
}

// NewAuthenticator creates an Authenticator. An empty header disables development mode.
func NewAuthenticator(tokens map[string]domain.Identity, header string) *Authenticator {
	cp := make(map[string]domain.Identity, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &Authenticator{tokens: cp, header: header}
}

// Identify resolves the identity of r.
func (a *Authenticator) Identify(r *http.Request) (domain.Identity, bool) {
	if token, ok := bearer(r); ok {
		for candidate, id := range a.tokens {
			if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
				return id, id.Validate() == nil
			}
		}
		return domain.Identity{}, false
	}
	if a.header != "" {
		if user := strings.TrimSpace(r.Header.Get(a.header)); user != "" {
			return domain.Identity{UserID: user}, true
		}
	}
	return domain.Identity{}, false
}

// Middleware rejects unidentified requests and attaches the identity to the context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := a.Identify(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tally"`)
			writeError(w, http.StatusUnauthorized, domain.ErrMissingIdentity.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
