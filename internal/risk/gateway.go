// Package risk is the client side of the external risk-validation service.
// It owns the retry/backoff protocol: bounded attempts, a health probe
// before every retry, and a safe reject when the budget runs out. The
// gateway never returns an error; RiskDecision is the only signal the
// router needs.
package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/orderrouter/internal/domain"
	"github.com/sawpanic/orderrouter/internal/net/ratelimit"
)

// Config holds gateway settings. The backoff schedule is fixed, not
// randomized: 1s, then 2s, then 4s, clamped to the last entry when the
// wait count exceeds the schedule length.
type Config struct {
	BaseURL         string        `yaml:"base_url"`
	MaxAttempts     int           `yaml:"max_attempts"`
	ValidateTimeout time.Duration `yaml:"validate_timeout"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	MaxDrawdown     float64       `yaml:"max_drawdown"`
}

// DefaultConfig returns the production gateway settings
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		MaxAttempts:     3,
		ValidateTimeout: 5 * time.Second,
		ProbeTimeout:    2 * time.Second,
		MaxDrawdown:     0.08,
	}
}

// backoffSchedule is indexed by wait count and clamped to its last entry
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// SleepFunc waits for d or returns early with the context's error.
// Injectable so backoff tests run without wall-clock sleeps.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryRecorder receives retry notifications for metrics
type RetryRecorder interface {
	RecordRiskRetry(cause string)
}

// Gateway validates trade requests against the external risk service
type Gateway struct {
	config   Config
	client   *http.Client
	limiter  *ratelimit.Limiter
	sleep    SleepFunc
	recorder RetryRecorder
	host     string
}

// Option configures a Gateway
type Option func(*Gateway)

// WithSleep replaces the backoff sleep function
func WithSleep(sleep SleepFunc) Option {
	return func(g *Gateway) { g.sleep = sleep }
}

// WithLimiter paces outbound calls through the given per-host limiter
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(g *Gateway) { g.limiter = limiter }
}

// WithRecorder wires retry metrics
func WithRecorder(recorder RetryRecorder) Option {
	return func(g *Gateway) { g.recorder = recorder }
}

// NewGateway creates a risk gateway client
func NewGateway(config Config, opts ...Option) *Gateway {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.ValidateTimeout <= 0 {
		config.ValidateTimeout = 5 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 2 * time.Second
	}
	if config.MaxDrawdown <= 0 {
		config.MaxDrawdown = 0.08
	}

	g := &Gateway{
		config: config,
		client: &http.Client{},
		sleep:  defaultSleep,
	}
	if u, err := url.Parse(config.BaseURL); err == nil {
		g.host = u.Host
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// validateRequest is the wire format of the risk service's validate endpoint
type validateRequest struct {
	Symbol           string   `json:"symbol"`
	Side             string   `json:"side"`
	Quantity         float64  `json:"quantity"`
	Price            float64  `json:"price"`
	PortfolioValue   float64  `json:"portfolio_value"`
	CurrentPositions []string `json:"current_positions"`
	MaxDrawdown      float64  `json:"max_drawdown"`
}

type validateResponse struct {
	Approved *bool  `json:"approved"`
	Reason   string `json:"reason"`
}

// Validate runs the retry state machine for one trade request:
//
//	ATTEMPT(n) → [health probe if retrying] → POST validate
//	  → SUCCESS | RETRYABLE_FAILURE → backoff → ATTEMPT(n+1) | TERMINAL
//
// A failed health probe burns a backoff wait but not a validate attempt.
// Exhaustion, malformed responses and cancellation all surface as a
// rejection, never as an error.
func (g *Gateway) Validate(ctx context.Context, req domain.TradeRequest, portfolioValue float64) domain.RiskDecision {
	payload := validateRequest{
		Symbol:           req.Symbol,
		Side:             string(req.Side),
		Quantity:         req.Quantity,
		Price:            req.LimitPrice,
		PortfolioValue:   portfolioValue,
		CurrentPositions: []string{},
		MaxDrawdown:      g.config.MaxDrawdown,
	}

	attempt := 0
	waits := 0
	probeFailures := 0
	lastCause := "risk service unavailable"

	for {
		if ctx.Err() != nil {
			return reject("risk validation cancelled")
		}

		// Probe before every retry: a known-unhealthy service should not
		// consume a validate attempt.
		if attempt > 0 {
			if !g.probe(ctx) {
				probeFailures++
				g.retryNoted("health_probe")
				log.Warn().Str("symbol", req.Symbol).Int("probe_failures", probeFailures).
					Msg("Risk health probe failed, backing off")
				if probeFailures >= g.config.MaxAttempts {
					return reject(fmt.Sprintf("risk validation failed: health probe budget exceeded (%s)", lastCause))
				}
				if !g.backoff(ctx, &waits) {
					return reject("risk validation cancelled")
				}
				continue
			}
		}

		decision, terminal, cause := g.postValidate(ctx, payload)
		if terminal {
			return decision
		}

		attempt++
		lastCause = cause
		g.retryNoted("validate")
		log.Warn().Str("symbol", req.Symbol).Int("attempt", attempt).
			Int("max_attempts", g.config.MaxAttempts).Str("cause", cause).
			Msg("Risk validation attempt failed")

		if !g.backoff(ctx, &waits) {
			return reject("risk validation cancelled")
		}
		if attempt >= g.config.MaxAttempts {
			return reject(fmt.Sprintf("risk validation failed after %d attempts: max retries exceeded (%s)",
				attempt, lastCause))
		}
	}
}

// backoff sleeps the next schedule slot, returning false on cancellation
func (g *Gateway) backoff(ctx context.Context, waits *int) bool {
	idx := *waits
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	*waits++
	return g.sleep(ctx, backoffSchedule[idx]) == nil
}

// probe hits the lightweight health endpoint; any non-2xx or transport
// error reads as unhealthy.
func (g *Gateway) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, g.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, g.config.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// postValidate performs one validate call. terminal=true carries the final
// decision; terminal=false carries a retryable cause.
func (g *Gateway) postValidate(ctx context.Context, payload validateRequest) (decision domain.RiskDecision, terminal bool, cause string) {
	if g.limiter != nil && g.host != "" {
		if err := g.limiter.Wait(ctx, g.host); err != nil {
			return domain.RiskDecision{}, false, "rate limit wait cancelled"
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return reject("risk request encoding failed"), true, ""
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.ValidateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, g.config.BaseURL+"/risk/validate", bytes.NewReader(body))
	if err != nil {
		return reject("risk request construction failed"), true, ""
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// Connection refused and timeouts are retryable under the schedule.
		return domain.RiskDecision{}, false, fmt.Sprintf("risk service unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.RiskDecision{}, false, fmt.Sprintf("risk service HTTP %d", resp.StatusCode)
	}

	var parsed validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Approved == nil {
		return reject("malformed response"), true, ""
	}

	return domain.RiskDecision{Approved: *parsed.Approved, Reason: parsed.Reason}, true, ""
}

func (g *Gateway) retryNoted(cause string) {
	if g.recorder != nil {
		g.recorder.RecordRiskRetry(cause)
	}
}

func reject(reason string) domain.RiskDecision {
	return domain.RiskDecision{Approved: false, Reason: reason}
}
