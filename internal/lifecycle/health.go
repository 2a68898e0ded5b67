package lifecycle

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

// healthChecker probes a service's health_url. Abstracted so tests can
// substitute a fake without binding real ports.
type healthChecker interface {
	check(ctx context.Context, url string, timeout time.Duration) bool
	// evict best-effort POSTs to a graceful_evict_url; errors are ignored
	// by the caller (spec §4.3 stop procedure step 1).
	evict(ctx context.Context, url string) error
}

type httpHealthChecker struct {
	client *http.Client
}

func newHTTPHealthChecker() *httpHealthChecker {
	// Timeout is left to the caller's context deadline, as the teacher's
	// own adapters do for all outbound calls.
	return &httpHealthChecker{client: &http.Client{}}
}

func (h *httpHealthChecker) check(ctx context.Context, url string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (h *httpHealthChecker) evict(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(`{"action":"release_vram"}`)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
