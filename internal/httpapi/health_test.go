package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relayforge/broker/internal/registry"
)

func TestHealthz_ReportsCounts(t *testing.T) {
	state := registry.NewState([]int{7857})
	srv := New(":0", nil, state, 5, 10)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.Status != "ok" || resp.RegisteredCount != 0 || resp.ActiveTunnels != 0 {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestWebsocketUpgrade_RejectsNonWebsocketRequests(t *testing.T) {
	state := registry.NewState([]int{7857})
	srv := New(":0", nil, state, 5, 10)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatal("expected a plain HTTP GET to /ws to fail the upgrade")
	}
}
