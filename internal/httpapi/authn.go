package httpapi

import (
	"errors"
	"net/http"

	"keygate.io/internal/auth"
)

const apiKeyHeader = "X-API-Key"

var infraPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/",
}

// withAPIKey resolves the api-key header into a Principal before any handler
// runs. Under the public auth namespace an absent or unresolvable key passes
// through as an unauthenticated principal; everywhere else it is a hard 401.
func (a *API) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isInfraPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := a.resolver.Resolve(r.Context(), r.Header.Get(apiKeyHeader), r.URL.Path)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				writeError(w, r, http.StatusUnauthorized, "invalid or missing api key")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isInfraPath(path string) bool {
	for _, p := range infraPaths {
		if path == p {
			return true
		}
	}
	return false
}

// requireOrgOwner returns the principal when it is a resolved org-owner key,
// writing the error response otherwise.
func requireOrgOwner(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal.Kind != auth.PrincipalOrgOwner {
		writeError(w, r, http.StatusForbidden, "organization owner api key required")
		return auth.Principal{}, false
	}
	return principal, true
}
