package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/nekazari/intelligence/internal/api/middleware"
	"github.com/nekazari/intelligence/internal/store"
	"github.com/nekazari/intelligence/pkg/models"
)

// --- mock key store ---

type mockKeyStore struct {
	created *models.APIKey
	keys    []*models.APIKey
	revoked []uuid.UUID
	err     error
}

func (m *mockKeyStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	if m.err != nil {
		return m.err
	}
	m.created = key
	return nil
}

func (m *mockKeyStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return m.keys, m.err
}

func (m *mockKeyStore) RevokeAPIKey(_ context.Context, id uuid.UUID, _ uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.revoked = append(m.revoked, id)
	return nil
}

func adminReq(t *testing.T, method, path string, body any, tenantID uuid.UUID) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	return r.WithContext(mw.SetTenantID(r.Context(), tenantID))
}

func TestCreateKey_ReturnsRawKeyOnce(t *testing.T) {
	ms := &mockKeyStore{}
	h := NewCreateKeyHandler(ms)

	rec := httptest.NewRecorder()
	h(rec, adminReq(t, http.MethodPost, "/api/intelligence/admin/keys",
		map[string]any{"name": "harvest-bot", "scopes": []string{"jobs"}}, uuid.New()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)

	rawKey, _ := data["key"].(string)
	if !strings.HasPrefix(rawKey, "nk_") {
		t.Fatalf("expected nk_ prefix, got %q", rawKey)
	}

	// Stored record holds only the hash, and it matches the raw key.
	if ms.created == nil {
		t.Fatal("key never stored")
	}
	if ms.created.KeyHash == rawKey {
		t.Error("raw key stored instead of hash")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(ms.created.KeyHash), []byte(rawKey)); err != nil {
		t.Errorf("hash does not match raw key: %v", err)
	}
	if ms.created.KeyPrefix != rawKey[:8] {
		t.Errorf("prefix mismatch: %q vs %q", ms.created.KeyPrefix, rawKey[:8])
	}

	info, _ := data["key_info"].(map[string]any)
	if info["name"] != "harvest-bot" {
		t.Errorf("expected name in key_info, got %v", info["name"])
	}
	if _, hasHash := info["key_hash"]; hasHash {
		t.Error("key_info must not expose the hash")
	}
}

func TestCreateKey_MissingName(t *testing.T) {
	h := NewCreateKeyHandler(&mockKeyStore{})

	rec := httptest.NewRecorder()
	h(rec, adminReq(t, http.MethodPost, "/api/intelligence/admin/keys",
		map[string]any{}, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListKeys(t *testing.T) {
	ms := &mockKeyStore{keys: []*models.APIKey{
		{ID: uuid.New(), Name: "one", KeyPrefix: "nk_aaaa11", Scopes: []string{"jobs"}},
		{ID: uuid.New(), Name: "two", KeyPrefix: "nk_bbbb22", Scopes: []string{"jobs", "admin"}},
	}}
	h := NewListKeysHandler(ms)

	rec := httptest.NewRecorder()
	h(rec, adminReq(t, http.MethodGet, "/api/intelligence/admin/keys", nil, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeData(t, rec)
	keys, _ := data["keys"].([]any)
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

func TestRevokeKey(t *testing.T) {
	ms := &mockKeyStore{}
	h := NewRevokeKeyHandler(ms)

	keyID := uuid.New()
	r := adminReq(t, http.MethodDelete, "/api/intelligence/admin/keys/"+keyID.String(), nil, uuid.New())
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("keyID", keyID.String())
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ms.revoked) != 1 || ms.revoked[0] != keyID {
		t.Errorf("expected revoke call for %s", keyID)
	}
}

func TestRevokeKey_NotFound(t *testing.T) {
	ms := &mockKeyStore{err: store.ErrNotFound}
	h := NewRevokeKeyHandler(ms)

	keyID := uuid.New()
	r := adminReq(t, http.MethodDelete, "/api/intelligence/admin/keys/"+keyID.String(), nil, uuid.New())
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("keyID", keyID.String())
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h(rec, r)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
