package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

type contextKey string

const (
	tenantIDKey      contextKey = "tenant_id"
	tenantServiceKey contextKey = "tenant_service"
	keyPrefixKey     contextKey = "key_prefix"
	apiKeyScopesKey  contextKey = "api_key_scopes"
	logTenantKey     contextKey = "log_tenant"
)

// logTenant carries the resolved service name back out to the request
// logger, which runs before Authenticate and never sees the derived context.
type logTenant struct {
	mu      sync.Mutex
	service string
}

func (l *logTenant) set(service string) {
	l.mu.Lock()
	l.service = service
	l.mu.Unlock()
}

func (l *logTenant) get() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.service
}

func withLogTenant(ctx context.Context, l *logTenant) context.Context {
	return context.WithValue(ctx, logTenantKey, l)
}

func logTenantFrom(ctx context.Context) (*logTenant, bool) {
	l, ok := ctx.Value(logTenantKey).(*logTenant)
	return l, ok
}

func SetTenantID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

func GetTenantID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(tenantIDKey).(uuid.UUID)
	return id, ok
}

// SetTenantService records the Fiware service name jobs run under.
func SetTenantService(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, tenantServiceKey, service)
}

func GetTenantService(r *http.Request) (string, bool) {
	service, ok := r.Context().Value(tenantServiceKey).(string)
	return service, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
