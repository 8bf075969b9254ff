package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agrisense/cropagent/internal/model"
)

func TestRecoveryMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := requestIDMiddleware(recoveryMiddleware(testLogger(), inner))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rec.Code)
	}
	var body model.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != model.ErrCodeInternalError {
		t.Errorf("got code %q", body.Error.Code)
	}
	if body.Meta.RequestID == "" {
		t.Error("error envelope should carry the request id")
	}
}

func TestStatusWriterRecordsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	w.WriteHeader(http.StatusTeapot)
	w.WriteHeader(http.StatusInternalServerError)
	if w.statusCode != http.StatusTeapot {
		t.Fatalf("got %d, want 418", w.statusCode)
	}

	// Flush reaches the underlying writer.
	w.Flush()
	if !rec.Flushed {
		t.Fatal("expected the recorder to be flushed")
	}
}

func TestLongRequestIDIsReplaced(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", string(make([]byte, 200)))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(seen) != 36 {
		t.Fatalf("expected a generated uuid, got %q", seen)
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		origins []string
		origin  string
		want    bool
	}{
		{nil, "https://any.example", true},
		{[]string{"*"}, "https://any.example", true},
		{[]string{"https://farm.example"}, "https://farm.example/", true},
		{[]string{"https://farm.example"}, "https://evil.example", false},
	}
	for _, tt := range tests {
		if got := originAllowed(tt.origins, tt.origin); got != tt.want {
			t.Errorf("originAllowed(%v, %q) = %v, want %v", tt.origins, tt.origin, got, tt.want)
		}
	}
}
