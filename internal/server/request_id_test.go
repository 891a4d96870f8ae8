package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"clipstream/internal/observability/logging"
)

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = logging.RequestIDFromContext(r.Context())
	})
	handler := requestIDMiddlewareWithGenerator(func() string { return "generated-id" }, next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen != "generated-id" {
		t.Fatalf("context request id = %q", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "generated-id" {
		t.Fatalf("response header = %q", got)
	}
}

func TestRequestIDMiddlewarePreservesIncomingID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := requestIDMiddleware(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "upstream-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "upstream-id" {
		t.Fatalf("response header = %q, want the incoming id", got)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	bucket := newTokenBucket(1000, 2)
	if !bucket.Allow() || !bucket.Allow() {
		t.Fatalf("burst capacity not honoured")
	}
	if bucket.Allow() {
		t.Fatalf("bucket allowed a request past its burst")
	}
}
