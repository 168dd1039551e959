package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID(t *testing.T) {
	echo := func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetRequestID(r.Context())))
	}
	h := RequestID(http.HandlerFunc(echo))

	t.Run("generates an id when none is present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		id := rec.Header().Get(RequestIDHeader)
		if id == "" {
			t.Fatal("expected a generated request id")
		}
		if rec.Body.String() != id {
			t.Errorf("context id = %q, header id = %q", rec.Body.String(), id)
		}
	})

	t.Run("honors an upstream id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "lb-7f3a2b")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "lb-7f3a2b" {
			t.Errorf("request id = %q, want lb-7f3a2b", got)
		}
	})

	t.Run("replaces oversized ids", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("a", maxRequestIDLength+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get(RequestIDHeader)
		if got == "" || len(got) > maxRequestIDLength {
			t.Errorf("oversized inbound id should be replaced, got %q", got)
		}
		if strings.HasPrefix(got, "aaa") {
			t.Errorf("inbound id was kept: %q", got)
		}
	})

	t.Run("replaces ids with unsafe characters", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "bad id\nwith newline")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); strings.Contains(got, "\n") || strings.Contains(got, " ") {
			t.Errorf("unsafe inbound id was kept: %q", got)
		}
	})
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("request id = %q, want empty", got)
	}
}
