package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func readyz(h *Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	return rec
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New([]Checker{FlagChecker("model", func() bool { return false })})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if body := decode(t, rec); body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestReadyz_AllCheckersPass(t *testing.T) {
	h := New([]Checker{
		FlagChecker("model", func() bool { return true }),
		PingChecker("storage", fakePinger{}),
	})

	rec := readyz(h)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decode(t, rec)
	checks := body["checks"].(map[string]any)
	if checks["model"] != "ok" || checks["storage"] != "ok" {
		t.Errorf("checks = %v", checks)
	}
	if _, ok := body["capture"]; ok {
		t.Error("capture section present without WithCapture")
	}
}

func TestReadyz_CheckerFails(t *testing.T) {
	h := New([]Checker{
		FlagChecker("model", func() bool { return false }),
		PingChecker("storage", fakePinger{err: errors.New("database is locked")}),
		{Name: "capture", Check: func(context.Context) error { return nil }},
	})

	rec := readyz(h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decode(t, rec)
	if body["status"] != "fail" {
		t.Errorf("status = %v, want fail", body["status"])
	}
	checks := body["checks"].(map[string]any)
	if checks["model"] != "fail: unhealthy" {
		t.Errorf("model check = %v", checks["model"])
	}
	if checks["storage"] != "fail: database is locked" {
		t.Errorf("storage check = %v", checks["storage"])
	}
	if checks["capture"] != "ok" {
		t.Errorf("capture check = %v", checks["capture"])
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	rec := readyz(New(nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyz_CaptureSection(t *testing.T) {
	type capture struct {
		Active bool   `json:"active"`
		Device string `json:"device"`
	}
	h := New(
		[]Checker{FlagChecker("model", func() bool { return false })},
		WithCapture(func() any { return capture{Active: true, Device: "browser"} }),
	)

	rec := readyz(h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	section, ok := decode(t, rec)["capture"].(map[string]any)
	if !ok {
		t.Fatal("capture section missing")
	}
	if section["active"] != true || section["device"] != "browser" {
		t.Errorf("capture = %v", section)
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	var running, peak atomic.Int32
	slow := func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		return nil
	}
	h := New([]Checker{{Name: "a", Check: slow}, {Name: "b", Check: slow}, {Name: "c", Check: slow}})

	if rec := readyz(h); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if peak.Load() < 2 {
		t.Errorf("peak concurrent checks = %d, want >= 2", peak.Load())
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	mux := http.NewServeMux()
	New([]Checker{PingChecker("storage", fakePinger{})}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New([]Checker{{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
