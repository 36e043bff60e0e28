package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) report {
	t.Helper()
	var rep report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rep
}

// ─── TestHealthz ─────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New()

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if rep := decodeReport(t, rec); rep.Status != "ok" {
		t.Errorf("body status = %q, want ok", rep.Status)
	}
}

// ─── TestReadyz_AllPass ──────────────────────────────────────────────────────

func TestReadyz_AllPass(t *testing.T) {
	t.Parallel()
	h := New(
		Checker{Name: "transport", Check: func(context.Context) error { return nil }},
		Checker{Name: "synth", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	rep := decodeReport(t, rec)
	if rep.Status != "ok" {
		t.Errorf("body status = %q, want ok", rep.Status)
	}
	if rep.Checks["transport"] != "ok" || rep.Checks["synth"] != "ok" {
		t.Errorf("checks = %v, want both ok", rep.Checks)
	}
}

// ─── TestReadyz_OneFails ─────────────────────────────────────────────────────

func TestReadyz_OneFails(t *testing.T) {
	t.Parallel()
	h := New(
		Checker{Name: "transport", Check: func(context.Context) error {
			return errors.New("connection closed")
		}},
		Checker{Name: "synth", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	rep := decodeReport(t, rec)
	if rep.Status != "fail" {
		t.Errorf("body status = %q, want fail", rep.Status)
	}
	if rep.Checks["transport"] != "fail: connection closed" {
		t.Errorf("transport check = %q", rep.Checks["transport"])
	}
	// The failure must not mask a healthy sibling.
	if rep.Checks["synth"] != "ok" {
		t.Errorf("synth check = %q, want ok", rep.Checks["synth"])
	}
}

// ─── TestReadyz_NoCheckers ───────────────────────────────────────────────────

func TestReadyz_NoCheckers(t *testing.T) {
	t.Parallel()
	h := New()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rep := decodeReport(t, rec); rep.Status != "ok" {
		t.Errorf("body status = %q, want ok", rep.Status)
	}
}

// ─── TestReadyz_RespectsContextCancellation ──────────────────────────────────

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(
		Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

// ─── TestRegister ────────────────────────────────────────────────────────────

func TestRegister(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "transport", Check: func(context.Context) error { return nil }})

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}
