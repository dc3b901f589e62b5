package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMiddlewarePassesThroughWhenDisabled(t *testing.T) {
	service := NewService("", time.Hour)
	called := false
	handler := Middleware(service, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected the wrapped handler to run when auth is disabled")
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	service := NewService("secret", time.Hour)
	handler := Middleware(service, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}

func TestMiddlewareAcceptsValidTokenAndSetsSubject(t *testing.T) {
	service := NewService("secret", time.Hour)
	token, err := service.Generate("tenant-1", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var gotSub Subject
	handler := Middleware(service, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub, _ = SubjectFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if gotSub.TenantID != "tenant-1" {
		t.Fatalf("got TenantID %q, want tenant-1", gotSub.TenantID)
	}
}

func TestMiddlewareRejectsInvalidToken(t *testing.T) {
	service := NewService("secret", time.Hour)
	handler := Middleware(service, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with a bad token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}

func TestRequireServiceRejectsNonServiceSubject(t *testing.T) {
	handler := RequireService("worker")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for a tenant subject")
	}))

	req := httptest.NewRequest(http.MethodPost, "/callback", nil)
	req = req.WithContext(WithSubject(req.Context(), Subject{TenantID: "tenant-1"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403", rec.Code)
	}
}

func TestRequireServiceAcceptsMatchingService(t *testing.T) {
	called := false
	handler := RequireService("worker")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/callback", nil)
	req = req.WithContext(WithSubject(req.Context(), Subject{Service: "worker"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected the handler to run for a matching service subject")
	}
}
