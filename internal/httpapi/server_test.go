package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gpumand/pkg/types"
)

type fakeService struct {
	statusReport  types.StatusReport
	statusErr     error
	prepareErr    error
	prepareOK     bool
	startErr      error
	startOK       bool
	stopErr       error
	stopOK        bool
	stoppedForce  bool
	releaseAllErr error
	forceRelOK    bool
	forceRelErr   error
	ready         bool
}

func (f *fakeService) Status(ctx context.Context) (types.StatusReport, error) {
	return f.statusReport, f.statusErr
}

func (f *fakeService) PrepareForPhase(ctx context.Context, phase int) (bool, error) {
	return f.prepareOK, f.prepareErr
}

func (f *fakeService) StartService(ctx context.Context, name string) (bool, error) {
	return f.startOK, f.startErr
}

func (f *fakeService) StopService(ctx context.Context, name string, force bool) (bool, error) {
	f.stoppedForce = force
	return f.stopOK, f.stopErr
}

func (f *fakeService) ReleaseAll(ctx context.Context) error {
	return f.releaseAllErr
}

func (f *fakeService) ForceReleaseLock(ctx context.Context) (bool, error) {
	return f.forceRelOK, f.forceRelErr
}

func (f *fakeService) Ready() bool { return f.ready }

func TestHandleStatusOK(t *testing.T) {
	svc := &fakeService{statusReport: types.StatusReport{
		Services: map[string]types.ServiceStatus{"a": {State: "ready"}},
	}}
	req := httptest.NewRequest(http.MethodGet, "/gpu/status", nil)
	rec := httptest.NewRecorder()
	NewMux(svc, svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got types.StatusReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Services["a"].State != "ready" {
		t.Fatalf("unexpected status payload: %+v", got)
	}
}

func TestHandleStatusError(t *testing.T) {
	svc := &fakeService{statusErr: &fakeHTTPError{status: 503, msg: "gpu unavailable"}}
	req := httptest.NewRequest(http.MethodGet, "/gpu/status", nil)
	rec := httptest.NewRecorder()
	NewMux(svc, svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandlePreparePhaseValidatesRange(t *testing.T) {
	svc := &fakeService{prepareOK: true}
	mux := NewMux(svc, svc)

	for _, n := range []string{"0", "6", "abc"} {
		req := httptest.NewRequest(http.MethodPost, "/gpu/prepare-phase/"+n, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("phase %s: expected 400, got %d", n, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/gpu/prepare-phase/3", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleServiceStopForceFlag(t *testing.T) {
	svc := &fakeService{stopOK: true}
	req := httptest.NewRequest(http.MethodPost, "/gpu/service/model-a/stop?force=true", nil)
	rec := httptest.NewRecorder()
	NewMux(svc, svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !svc.stoppedForce {
		t.Fatalf("expected force=true to reach StopService")
	}
}

func TestHandleLockRelease(t *testing.T) {
	svc := &fakeService{forceRelOK: true}
	req := httptest.NewRequest(http.MethodPost, "/gpu/lock/release", nil)
	rec := httptest.NewRecorder()
	NewMux(svc, svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got types.LockReleaseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Released {
		t.Fatalf("expected released=true")
	}
}

func TestReadyzReflectsReadyer(t *testing.T) {
	svc := &fakeService{ready: false}
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	NewMux(svc, svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when not ready, got %d", rec.Code)
	}
}

func TestHealthzAlwaysOK(t *testing.T) {
	svc := &fakeService{}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	NewMux(svc, svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

type fakeHTTPError struct {
	status int
	msg    string
}

func (e *fakeHTTPError) Error() string   { return e.msg }
func (e *fakeHTTPError) StatusCode() int { return e.status }
