package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/hlog"

	"taskboard/internal/identity"
)

// Principal is the verified caller of a task request.
type Principal struct {
	UID   string
	Email string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func ownerFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.Email != "" {
		return p.Email, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "Unauthorized", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware enforces bearer tokens under basePath. Health, the
// OpenAPI document and everything outside basePath pass through.
func newAuthMiddleware(basePath string, v identity.Verifier) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	specPath := path.Join(basePath, "openapi.json")
	prefix := strings.TrimSuffix(basePath, "/") + "/"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := req.URL.Path
			if p != basePath && !strings.HasPrefix(p, prefix) {
				next.ServeHTTP(w, req)
				return
			}
			if p == healthPath || p == specPath || strings.HasPrefix(p, "/auth/") {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "Unauthorized", nil))
				return
			}
			id, err := v.Verify(req.Context(), token)
			if err != nil {
				hlog.FromRequest(req).Debug().Err(err).Msg("token verification failed")
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_token", "Invalid token", nil))
				return
			}
			ctx := withPrincipal(req.Context(), Principal{UID: id.UID, Email: id.Email})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
