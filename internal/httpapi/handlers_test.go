package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSDeniedWithoutConfiguredOrigins(t *testing.T) {
	api := New(Options{Version: "test"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("no origins configured but Access-Control-Allow-Origin = %q", got)
	}

	// Preflight gets no allowance either.
	pre := httptest.NewRequest(http.MethodOptions, "/v1/auth/login", nil)
	pre.Header.Set("Origin", "https://anywhere.example")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, pre)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("preflight allowed without configuration: %q", got)
	}
}

func TestCORSAllowsOnlyConfiguredOrigins(t *testing.T) {
	api := New(Options{
		Version:     "test",
		CORSOrigins: []string{"https://app.example"},
	})

	pre := httptest.NewRequest(http.MethodOptions, "/v1/auth/login", nil)
	pre.Header.Set("Origin", "https://app.example")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, pre)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("configured origin not allowed, got %q", got)
	}

	other := httptest.NewRequest(http.MethodOptions, "/v1/auth/login", nil)
	other.Header.Set("Origin", "https://evil.example")
	other.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, other)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unconfigured origin allowed: %q", got)
	}
}
