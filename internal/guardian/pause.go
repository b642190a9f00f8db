// Package guardian reads the supervisory pause signal that gates order
// admission. The signal is advisory: it is served by an out-of-process
// dashboard and a read failure must never halt routing on its own.
package guardian

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Pauser reports whether the supervisory kill-switch is active
type Pauser interface {
	Paused(ctx context.Context) bool
}

// StaticPauser is a fixed pause signal for tests and offline runs
type StaticPauser bool

// Paused returns the fixed value
func (s StaticPauser) Paused(context.Context) bool { return bool(s) }

// HTTPPauser reads the guardian pause flag from the dashboard metrics
// endpoint. Transport errors, non-200 responses and malformed bodies all
// read as "not paused": this check fails open, trading availability over
// halting on a monitoring hiccup.
type HTTPPauser struct {
	dashboardURL string
	client       *http.Client
}

// NewHTTPPauser creates a pause reader against the dashboard base URL
func NewHTTPPauser(dashboardURL string, timeout time.Duration) *HTTPPauser {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPPauser{
		dashboardURL: dashboardURL,
		client:       &http.Client{Timeout: timeout},
	}
}

// metaMetrics is the slice of the dashboard payload this reader cares about
type metaMetrics struct {
	Guardian struct {
		IsPaused bool `json:"is_paused"`
	} `json:"guardian"`
}

// Paused reports the guardian pause flag, defaulting to false on any
// read failure.
func (p *HTTPPauser) Paused(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.dashboardURL+"/meta/metrics", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Guardian pause read failed, failing open")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Msg("Guardian pause read non-200, failing open")
		return false
	}

	var meta metaMetrics
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		log.Debug().Err(err).Msg("Guardian pause payload malformed, failing open")
		return false
	}

	return meta.Guardian.IsPaused
}
