package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dokzlo13/sonosd/internal/config"
)

func TestHealthService_Endpoints(t *testing.T) {
	ready := false
	h := NewHealthService(&config.Config{}, func() bool { return ready }).Handler()

	get := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	if code := get("/health"); code != http.StatusOK {
		t.Errorf("/health = %d", code)
	}
	if code := get("/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("/ready before household = %d", code)
	}

	ready = true
	if code := get("/ready"); code != http.StatusOK {
		t.Errorf("/ready after household = %d", code)
	}
}
