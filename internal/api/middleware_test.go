package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func secretProtected(secret string) http.Handler {
	mw := TriggerSecretMiddleware(secret, zap.NewNop())
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestTriggerSecretMiddleware_ValidSecret(t *testing.T) {
	handler := secretProtected("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/v1/cadence/email/run", nil)
	req.Header.Set("X-Trigger-Secret", "s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("valid secret should pass, got %d", rec.Code)
	}
}

func TestTriggerSecretMiddleware_WrongSecret(t *testing.T) {
	handler := secretProtected("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/v1/cadence/email/run", nil)
	req.Header.Set("X-Trigger-Secret", "guess")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret should be rejected, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem+json, got %s", ct)
	}
}

func TestTriggerSecretMiddleware_MissingSecret(t *testing.T) {
	handler := secretProtected("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/v1/cadence/email/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing secret should be rejected, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	mw := RateLimitMiddleware(nil, zap.NewNop(), IPKeyFunc)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/delivery", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("nil limiter should pass through, got %d", rec.Code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	if got := IPKeyFunc(req); got != "ip:10.0.0.1:1234" {
		t.Errorf("expected remote addr key, got %s", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := IPKeyFunc(req); got != "ip:203.0.113.7" {
		t.Errorf("X-Forwarded-For should win, got %s", got)
	}
}
