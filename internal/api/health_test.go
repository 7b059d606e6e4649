package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func dep(name string, critical bool, err error) Dependency {
	return Dependency{Name: name, Critical: critical, Check: func(context.Context) error { return err }}
}

func TestReadiness(t *testing.T) {
	down := errors.New("down")
	tests := []struct {
		name       string
		deps       []Dependency
		wantStatus string
		wantCode   int
	}{
		{"all up", []Dependency{dep("postgres", true, nil), dep("redis", false, nil)}, "ok", http.StatusOK},
		{"redis down", []Dependency{dep("postgres", true, nil), dep("redis", false, down)}, "degraded", http.StatusOK},
		{"postgres down", []Dependency{dep("postgres", true, down), dep("redis", false, nil)}, "error", http.StatusServiceUnavailable},
		{"both down", []Dependency{dep("redis", false, down), dep("postgres", true, down)}, "error", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("test", "v0", tt.deps...)
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			resp := decode[ReadinessResponse](t, rec)
			if resp.Status != tt.wantStatus {
				t.Fatalf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
			if len(resp.Dependencies) != len(tt.deps) {
				t.Fatalf("dependencies = %v", resp.Dependencies)
			}
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("request id = %q / %q", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc-123" {
		t.Fatalf("expected a generated id, got %q", seen)
	}
}

func TestLoggingWrapperIsHijackable(t *testing.T) {
	var w http.ResponseWriter = &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, ok := w.(http.Hijacker); !ok {
		t.Fatal("wrapper must expose Hijack")
	}
	if _, _, err := w.(http.Hijacker).Hijack(); err == nil {
		t.Fatal("recorder cannot hijack, expected an error")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	base := rl.now()
	rl.get("ip:1")
	rl.now = func() time.Time { return base.Add(5 * time.Minute) }
	rl.get("ip:2")
	if left := rl.Sweep(3 * time.Minute); left != 1 {
		t.Fatalf("remaining = %d", left)
	}
}
