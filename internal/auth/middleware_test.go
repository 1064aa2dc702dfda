package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bastionhq/bastion/internal/models"
)

func newTestTokenManager() *TokenManager {
	return NewTokenManager("test-secret-32-characters-long!", time.Hour)
}

func TestAdminMiddleware_MissingHeader(t *testing.T) {
	middleware := AdminMiddleware(newTestTokenManager())

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached without authorization")
	}))

	req := httptest.NewRequest("GET", "/v1/admin/locks", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", recorder.Code)
	}
}

func TestAdminMiddleware_MalformedHeader(t *testing.T) {
	middleware := AdminMiddleware(newTestTokenManager())

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached with a malformed header")
	}))

	req := httptest.NewRequest("GET", "/v1/admin/locks", nil)
	req.Header.Set("Authorization", "Basic abc123")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", recorder.Code)
	}
}

func TestAdminMiddleware_InvalidToken(t *testing.T) {
	middleware := AdminMiddleware(newTestTokenManager())

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached with an invalid token")
	}))

	req := httptest.NewRequest("GET", "/v1/admin/locks", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", recorder.Code)
	}
}

func TestAdminMiddleware_ValidTokenInjectsClaims(t *testing.T) {
	tm := newTestTokenManager()
	middleware := AdminMiddleware(tm)

	token, err := tm.GenerateAdminToken("secops@example.com")
	if err != nil {
		t.Fatalf("GenerateAdminToken() = %v", err)
	}

	reached := false
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		claims := GetAdminFromContext(r)
		if claims == nil {
			t.Fatal("admin claims missing from context")
		}
		if claims.Subject != "secops@example.com" {
			t.Errorf("Subject = %q, want secops@example.com", claims.Subject)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/admin/locks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if !reached {
		t.Error("handler was not reached with a valid token")
	}
	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", recorder.Code)
	}
}

func TestAdminMiddleware_RejectsChallengeToken(t *testing.T) {
	tm := newTestTokenManager()
	middleware := AdminMiddleware(tm)

	token, _, err := tm.GenerateChallengeToken("user@example.com", models.IdentifierEmail, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("GenerateChallengeToken() = %v", err)
	}

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("challenge tokens must not grant admin access")
	}))

	req := httptest.NewRequest("GET", "/v1/admin/locks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", recorder.Code)
	}
}
