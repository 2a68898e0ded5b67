// Package e2e exercises the full HTTP surface wired against real
// lifecycle/lock/registry components (with a fake VRAM tracker in place
// of a physical GPU), mirroring spec §8's concrete scenarios end to end.
package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gpumand/internal/httpapi"
	"gpumand/internal/lifecycle"
	"gpumand/internal/lock"
	"gpumand/internal/orchestrator"
	"gpumand/internal/registry"
	"gpumand/internal/tracker"
	"gpumand/pkg/types"
)

type alwaysReady struct{}

func (alwaysReady) Ready() bool { return true }

// newHealthStub starts an httptest server that reports healthy once told to.
func newHealthStub(t *testing.T) (*httptest.Server, *bool) {
	t.Helper()
	healthy := new(bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if *healthy {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	return srv, healthy
}

func TestEndToEndPreparePhaseStartsAndStops(t *testing.T) {
	hiSrv, hiHealthy := newHealthStub(t)
	*hiHealthy = true // a real process takes no time to "warm up" in this double

	loSrv, loHealthy := newHealthStub(t)
	*loHealthy = true

	descs := []types.ServiceDescriptor{
		{
			Name:           "svc-hi",
			Kind:           types.KindNative,
			VRAMMB:         3000,
			Priority:       100,
			HealthURL:      hiSrv.URL,
			HealthTimeoutS: 5,
			Phases:         []int{1},
			StartCmd:       "sleep 5",
			StopCmd:        "true",
		},
		{
			Name:           "svc-lo",
			Kind:           types.KindNative,
			VRAMMB:         2000,
			Priority:       10,
			HealthURL:      loSrv.URL,
			HealthTimeoutS: 5,
			StartCmd:       "sleep 5",
			StopCmd:        "true",
		},
	}

	reg, err := registry.New(descs)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	gpu := tracker.NewFake(6000)
	lifecycleMgr := lifecycle.NewManager(reg)
	lockStore := lock.NewMemoryStore()
	orch := orchestrator.New(gpu, reg, lifecycleMgr, lockStore, 1024, 10*time.Minute, orchestrator.NewMemoryPublisher())

	mux := httpapi.NewMux(orch, alwaysReady{})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	// status before any prepare: the fake tracker reports its full total.
	resp, err := http.Get(srv.URL + "/gpu/status")
	if err != nil {
		t.Fatalf("GET /gpu/status: %v", err)
	}
	var report types.StatusReport
	mustDecode(t, resp, &report)
	if report.VRAM.TotalMB != 6000 {
		t.Fatalf("expected total_mb=6000, got %d", report.VRAM.TotalMB)
	}

	// prepare-phase/1 should bring svc-hi to ready.
	resp, err = http.Post(srv.URL+"/gpu/prepare-phase/1", "application/json", nil)
	if err != nil {
		t.Fatalf("POST prepare-phase: %v", err)
	}
	var prep types.PrepareResponse
	mustDecode(t, resp, &prep)
	if !prep.Success {
		t.Fatalf("expected phase 1 prepare to succeed")
	}

	resp, _ = http.Get(srv.URL + "/gpu/status")
	mustDecode(t, resp, &report)
	if report.Services["svc-hi"].State != string(types.StateReady) {
		t.Fatalf("expected svc-hi ready, got %+v", report.Services["svc-hi"])
	}

	// start svc-lo directly, bypassing preemption.
	resp, err = http.Post(srv.URL+"/gpu/service/svc-lo/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST service start: %v", err)
	}
	var action types.ServiceActionResponse
	mustDecode(t, resp, &action)
	if !action.Success {
		t.Fatalf("expected svc-lo start to succeed")
	}

	// release-all should stop every healthy service.
	resp, err = http.Post(srv.URL+"/gpu/release-all", "application/json", nil)
	if err != nil {
		t.Fatalf("POST release-all: %v", err)
	}
	var releaseAll types.ReleaseAllResponse
	mustDecode(t, resp, &releaseAll)
	if !releaseAll.Success {
		t.Fatalf("expected release-all to succeed")
	}

	// lock-release is idempotent even when nothing is held.
	resp, err = http.Post(srv.URL+"/gpu/lock/release", "application/json", nil)
	if err != nil {
		t.Fatalf("POST lock release: %v", err)
	}
	var lockResp types.LockReleaseResponse
	mustDecode(t, resp, &lockResp)
	if lockResp.Released {
		t.Fatalf("expected no lock to release")
	}
}

func TestEndToEndHealthzAndReadyz(t *testing.T) {
	reg, err := registry.New(nil)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	gpu := tracker.NewFake(1000)
	lifecycleMgr := lifecycle.NewManager(reg)
	lockStore := lock.NewMemoryStore()
	orch := orchestrator.New(gpu, reg, lifecycleMgr, lockStore, 256, time.Minute, orchestrator.NewMemoryPublisher())

	mux := httpapi.NewMux(orch, alwaysReady{})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func mustDecode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
