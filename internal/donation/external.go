package donation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"minesup/config"
)

// feedResponse is the JSON shape polled from the configured external feed
// (spec.md §4.9 "pool_ehr external feed address"): a single endpoint the
// supervisor consumes for everything it cannot derive locally — whether the
// user currently holds a share in the pool's PPLNS window, the pool's
// estimated hourly hashrate toward the user, and the donor pool's 1h-average
// credited hashrate.
type feedResponse struct {
	ShareInWindow bool    `json:"share_in_window"`
	PoolEHR       float64 `json:"pool_ehr"`
	DonorEHR      float64 `json:"donor_ehr"`
}

// HTTPExternalInputs implements ExternalInputs by polling a single JSON feed.
// The first accessor called after Reset performs the HTTP round-trip; the
// other two reuse its result, so all three values a single Decide call sees
// come from the same feed snapshot.
type HTTPExternalInputs struct {
	url     string
	client  *http.Client
	timeout time.Duration

	mu     sync.Mutex
	cached *feedResponse
	err    error
}

// NewHTTPExternalInputs returns an ExternalInputs backed by cfg.PoolEHRURL.
func NewHTTPExternalInputs(cfg config.DonorConfig) *HTTPExternalInputs {
	timeout := 500 * time.Millisecond
	return &HTTPExternalInputs{
		url:     cfg.PoolEHRURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Reset drops the cached feed response so the next accessor call fetches a
// fresh snapshot. RunEpoch calls this once at the start of every epoch.
func (h *HTTPExternalInputs) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cached = nil
	h.err = nil
}

func (h *HTTPExternalInputs) fetch(ctx context.Context) (feedResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cached != nil || h.err != nil {
		if h.cached != nil {
			return *h.cached, nil
		}
		return feedResponse{}, h.err
	}

	out, err := h.fetchLocked(ctx)
	if err != nil {
		h.err = err
		return feedResponse{}, err
	}
	h.cached = &out
	return out, nil
}

func (h *HTTPExternalInputs) fetchLocked(ctx context.Context) (feedResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, h.url, nil)
	if err != nil {
		return feedResponse{}, fmt.Errorf("build external feed request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return feedResponse{}, fmt.Errorf("external feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return feedResponse{}, fmt.Errorf("external feed returned status %d", resp.StatusCode)
	}

	var out feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return feedResponse{}, fmt.Errorf("decode external feed response: %w", err)
	}
	return out, nil
}

func (h *HTTPExternalInputs) ShareInWindow(ctx context.Context) (bool, error) {
	f, err := h.fetch(ctx)
	return f.ShareInWindow, err
}

func (h *HTTPExternalInputs) PoolEHR(ctx context.Context) (float64, error) {
	f, err := h.fetch(ctx)
	return f.PoolEHR, err
}

func (h *HTTPExternalInputs) DonorEHR(ctx context.Context) (float64, error) {
	f, err := h.fetch(ctx)
	return f.DonorEHR, err
}
