package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nekazari/intelligence/internal/api/response"
	"github.com/nekazari/intelligence/internal/store"
	"github.com/nekazari/intelligence/pkg/models"
)

const keyPrefixLen = 8

// TenantHeader lets a caller scope a request to a different Fiware service
// than the one its API key belongs to.
const TenantHeader = "X-Tenant-ID"

// Auth provides authentication and scope-checking middleware.
type Auth struct {
	store store.Store
}

// NewAuth creates a new Auth middleware.
func NewAuth(s store.Store) *Auth {
	return &Auth{store: s}
}

// Authenticate validates the Bearer token, looks up the API key, resolves
// the tenant's Fiware service, and sets tenant_id, tenant_service,
// key_prefix, and scopes in the request context. An X-Tenant-ID header
// overrides the resolved service name.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if len(rawKey) < keyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		prefix := rawKey[:keyPrefixLen]

		keys, err := a.store.GetAPIKeyByPrefix(r.Context(), prefix)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		// Find matching key by bcrypt comparison
		var matched bool
		for _, key := range keys {
			if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) == nil {
				service, err := a.resolveService(r, key.TenantID)
				if err != nil {
					response.Error(w, http.StatusInternalServerError,
						"INTERNAL_ERROR", "Failed to resolve tenant", nil)
					return
				}

				ctx := r.Context()
				if lt, ok := logTenantFrom(ctx); ok {
					lt.set(service)
				}
				ctx = SetTenantID(ctx, key.TenantID)
				ctx = SetTenantService(ctx, service)
				ctx = setKeyPrefix(ctx, prefix)
				ctx = setScopes(ctx, key.Scopes)
				r = r.WithContext(ctx)
				matched = true

				// Update last_used_at async
				go a.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)
				break
			}
		}

		if !matched {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// resolveService picks the Fiware service for the request: the header wins,
// then the key's tenant record, then the seeded default tenant.
func (a *Auth) resolveService(r *http.Request, tenantID uuid.UUID) (string, error) {
	if header := strings.TrimSpace(r.Header.Get(TenantHeader)); header != "" {
		return header, nil
	}

	tenant, err := a.store.GetTenant(r.Context(), tenantID)
	if err == nil {
		return tenant.FiwareService, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	def, err := a.store.GetDefaultTenant(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		return models.DefaultTenant, nil
	}
	if err != nil {
		return "", err
	}
	return def.FiwareService, nil
}

// RequireScope returns middleware that checks whether the authenticated
// API key has the specified scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes := getScopes(r)
			for _, s := range scopes {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
