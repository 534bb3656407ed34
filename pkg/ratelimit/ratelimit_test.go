package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAllowPerKey(t *testing.T) {
	l := NewLimiter(1, 2)

	if !l.Allow("a") || !l.Allow("a") {
		t.Error("Expected burst of 2 to be allowed")
	}
	if l.Allow("a") {
		t.Error("Expected third immediate request to be refused")
	}

	// Keys are independent buckets
	if !l.Allow("b") {
		t.Error("Expected a fresh key to be allowed")
	}
}

func TestMiddleware(t *testing.T) {
	l := NewLimiter(1, 1)
	handler := l.Middleware(IPKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/runs", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := IPKeyFunc(req); got != "10.0.0.1:1234" {
		t.Errorf("Expected RemoteAddr, got %s", got)
	}

	req.Header.Set("X-Forwarded-For", "192.168.1.5")
	if got := IPKeyFunc(req); got != "192.168.1.5" {
		t.Errorf("Expected forwarded address, got %s", got)
	}
}
