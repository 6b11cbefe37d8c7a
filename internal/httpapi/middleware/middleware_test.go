package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimit_AllowsThenBlocks(t *testing.T) {
	h := RateLimit(60, 2)(okHandler)
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != 200 {
			t.Fatalf("want 200 got %d", rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != 429 {
		t.Fatalf("want 429 got %d", rr.Code)
	}

	time.Sleep(1100 * time.Millisecond)
	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req)
	if rr2.Code != 200 {
		t.Fatalf("want 200 after refill got %d", rr2.Code)
	}
}

func TestRateLimit_PerIP(t *testing.T) {
	h := RateLimit(60, 1)(okHandler)

	first := httptest.NewRequest("GET", "/", nil)
	first.RemoteAddr = "1.2.3.4:1"
	second := httptest.NewRequest("GET", "/", nil)
	second.RemoteAddr = "5.6.7.8:1"

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, first)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, first)
	if rr.Code != 429 {
		t.Fatalf("first IP exhausted its burst, want 429 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, second)
	if rr.Code != 200 {
		t.Fatalf("second IP has its own bucket, want 200 got %d", rr.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}

	req := httptest.NewRequest(http.MethodDelete, "/api/alerts/a-1", nil)
	req.Header.Set("X-API-Key", "adm_key")
	rec := httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin key should pass, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/alerts/a-1", nil)
	req.Header.Set("X-API-Key", "pub_key")
	rec = httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("public key on an admin route should be 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/alerts/a-1", nil)
	rec = httptest.NewRecorder()
	RequireAdmin(keys)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key should be 401, got %d", rec.Code)
	}
}

func TestRequireAny(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}}

	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	req.Header.Set("Authorization", "Bearer pub_key")
	rec := httptest.NewRecorder()
	RequireAny(keys)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer form should pass, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	RequireAny(keys)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad key should be 401, got %d", rec.Code)
	}
}

func TestRequireAny_DisabledWithoutKeys(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	rec := httptest.NewRecorder()
	RequireAny(Keys{})(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("no configured keys means open access, got %d", rec.Code)
	}
}
