package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRouter(t *testing.T) {
	h, _, _, _, _ := newTestHandlers()

	router := NewRouter(h)
	if router == nil {
		t.Fatal("NewRouter() returned nil")
	}
	if router.mux == nil {
		t.Error("NewRouter() mux is nil")
	}
}

func TestRouter_Handler_CORS(t *testing.T) {
	h, _, _, _, _ := newTestHandlers()
	router := NewRouter(h)
	handler := router.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/events", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("CORS OPTIONS request status = %v, want %v", w.Code, http.StatusOK)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header Access-Control-Allow-Origin not set")
	}
}

func TestRouter_HealthCheck(t *testing.T) {
	h, _, _, _, _ := newTestHandlers()
	router := NewRouter(h)
	handler := router.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health check status = %v, want %v", w.Code, http.StatusOK)
	}
	if w.Body.String() != "OK" {
		t.Errorf("health check body = %q, want %q", w.Body.String(), "OK")
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	h, _, _, _, _ := newTestHandlers()
	router := NewRouter(h)
	handler := router.Handler()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/events", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %v, want %v", w.Code, http.StatusMethodNotAllowed)
	}
}
