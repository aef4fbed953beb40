package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"ollama_gateway/internal/auth"
	"ollama_gateway/internal/models"
)

func newTestCredential() *models.Credential {
	return &models.Credential{
		ID:                uuid.New(),
		Label:             "test",
		RateLimitPerMin:   20,
		MonthlyTokenLimit: 1000,
		MonthResetAt:      time.Now().AddDate(0, 1, 0),
		IsActive:          true,
		CreatedAt:         time.Now(),
	}
}

func decodeErrorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body.Error.Type
}

func TestAPIKeyMiddleware_Success(t *testing.T) {
	store := auth.NewMemoryStore()
	cred := newTestCredential()
	store.Add("llm_testkey", cred)

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := GetCredential(r.Context())
		if !ok {
			t.Error("Credential not found in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if got.ID != cred.ID {
			t.Errorf("Unexpected credential ID: %s", got.ID)
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := APIKeyMiddleware(store)(nextHandler)

	t.Run("with X-API-Key header", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
		req.Header.Set("X-API-Key", "llm_testkey")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("with Bearer token", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
		req.Header.Set("Authorization", "Bearer llm_testkey")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})
}

func TestAPIKeyMiddleware_MissingKey(t *testing.T) {
	store := auth.NewMemoryStore()
	handler := APIKeyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Next handler should not be called without an API key")
	}))

	req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if kind := decodeErrorType(t, w); kind != "unauthenticated" {
		t.Errorf("Expected error type unauthenticated, got %s", kind)
	}
}

func TestAPIKeyMiddleware_UnknownKey(t *testing.T) {
	store := auth.NewMemoryStore()
	handler := APIKeyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Next handler should not be called for an unknown key")
	}))

	req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	req.Header.Set("X-API-Key", "llm_wrongkey")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

type brokenStore struct{}

func (brokenStore) Lookup(ctx context.Context, plaintextKey string) (*models.Credential, error) {
	return nil, errors.New("connection refused")
}

func TestAPIKeyMiddleware_StoreUnavailableFailsClosed(t *testing.T) {
	handler := APIKeyMiddleware(brokenStore{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Next handler should not be called when the store is down")
	}))

	req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	req.Header.Set("X-API-Key", "llm_testkey")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if kind := decodeErrorType(t, w); kind != "store_unavailable" {
		t.Errorf("Expected error type store_unavailable, got %s", kind)
	}
}
