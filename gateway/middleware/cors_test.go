package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsRequest(t *testing.T, cfg CORSConfig, method, origin string, preflight bool) *httptest.ResponseRecorder {
	t.Helper()
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/intents", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCORSEchoesAllowedOrigin(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://app.synapse.dev"}}
	rec := corsRequest(t, cfg, http.MethodGet, "https://app.synapse.dev", false)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.synapse.dev" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
	if got := rec.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://app.synapse.dev"}}
	rec := corsRequest(t, cfg, http.MethodGet, "https://evil.example", false)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unknown origin must not receive allow header, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("request itself should still be served, got %d", rec.Code)
	}
}

func TestCORSWildcardByDefault(t *testing.T) {
	rec := corsRequest(t, CORSConfig{}, http.MethodGet, "https://anywhere.example", false)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard allow header, got %q", got)
	}
}

func TestCORSWildcardWithCredentialsEchoesOrigin(t *testing.T) {
	cfg := CORSConfig{AllowCredentials: true}
	rec := corsRequest(t, cfg, http.MethodGet, "https://app.synapse.dev", false)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.synapse.dev" {
		t.Fatalf("credentialed wildcard must echo the origin, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials header, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://app.synapse.dev"}, MaxAgeSeconds: 600}
	rec := corsRequest(t, cfg, http.MethodOptions, "https://app.synapse.dev", true)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Fatalf("unexpected methods header %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Fatalf("unexpected headers header %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("unexpected max-age %q", got)
	}
}
