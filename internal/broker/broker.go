// Package broker is the placement boundary: one child-slice order in,
// either an execution or an error out, never a hang. The real exchange
// adapter lives behind the Adapter interface; this package ships a paper
// implementation for offline runs and an HTTP adapter guarded by a circuit
// breaker.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sawpanic/orderrouter/internal/domain"
	"github.com/sawpanic/orderrouter/internal/net/ratelimit"
)

// Order is one child slice handed to the placement adapter
type Order struct {
	Symbol   string      `json:"symbol"`
	Side     domain.Side `json:"side"`
	Quantity float64     `json:"quantity"`
	Price    float64     `json:"price"` // limit or reference price
	Slice    int         `json:"slice"` // 1-based slice index
}

// Execution is a successful placement result
type Execution struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Adapter places one child order. Implementations must respect ctx and
// return within a bounded time.
type Adapter interface {
	Place(ctx context.Context, order Order) (Execution, error)
}

// Paper fills every order at its own price immediately. The clock is
// injectable for deterministic tests.
type Paper struct {
	Now func() time.Time
}

// NewPaper creates a paper broker on the wall clock
func NewPaper() *Paper {
	return &Paper{Now: time.Now}
}

// Place fills the order at its price
func (p *Paper) Place(_ context.Context, order Order) (Execution, error) {
	return Execution{Price: order.Price, Timestamp: p.Now()}, nil
}

// HTTPConfig holds settings for the HTTP placement adapter
type HTTPConfig struct {
	BaseURL        string        `yaml:"base_url"`
	PlaceTimeout   time.Duration `yaml:"place_timeout"`
	BreakerName    string        `yaml:"breaker_name"`
	TripThreshold  uint32        `yaml:"trip_threshold"`  // consecutive failures to open
	BreakerTimeout time.Duration `yaml:"breaker_timeout"` // open → half-open
}

// DefaultHTTPConfig returns placement adapter settings for a local broker
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:        baseURL,
		PlaceTimeout:   10 * time.Second,
		BreakerName:    "broker",
		TripThreshold:  3,
		BreakerTimeout: 60 * time.Second,
	}
}

// HTTP places child orders against a broker endpoint. Calls run through a
// circuit breaker: a flapping broker trips open instead of burning the
// slicer's pacing budget on doomed requests.
type HTTP struct {
	config  HTTPConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *ratelimit.Limiter
	host    string
}

// NewHTTP creates an HTTP placement adapter. limiter may be nil.
func NewHTTP(config HTTPConfig, limiter *ratelimit.Limiter) *HTTP {
	if config.PlaceTimeout <= 0 {
		config.PlaceTimeout = 10 * time.Second
	}
	if config.TripThreshold == 0 {
		config.TripThreshold = 3
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    config.BreakerName,
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.TripThreshold
		},
	}

	h := &HTTP{
		config:  config,
		client:  &http.Client{Timeout: config.PlaceTimeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: limiter,
	}
	if u, err := url.Parse(config.BaseURL); err == nil {
		h.host = u.Host
	}
	return h
}

// placeResponse is the broker endpoint's fill acknowledgement
type placeResponse struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"ts"`
}

// Place posts one child order through the circuit breaker
func (h *HTTP) Place(ctx context.Context, order Order) (Execution, error) {
	if h.limiter != nil && h.host != "" {
		if err := h.limiter.Wait(ctx, h.host); err != nil {
			return Execution{}, fmt.Errorf("placement rate limit: %w", err)
		}
	}

	result, err := h.breaker.Execute(func() (interface{}, error) {
		return h.place(ctx, order)
	})
	if err != nil {
		return Execution{}, err
	}
	return result.(Execution), nil
}

func (h *HTTP) place(ctx context.Context, order Order) (Execution, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return Execution{}, fmt.Errorf("encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return Execution{}, fmt.Errorf("build placement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Execution{}, fmt.Errorf("place slice %d: %w", order.Slice, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Execution{}, fmt.Errorf("place slice %d: broker HTTP %d", order.Slice, resp.StatusCode)
	}

	var parsed placeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Execution{}, fmt.Errorf("place slice %d: decode fill: %w", order.Slice, err)
	}

	exec := Execution{Price: parsed.Price, Timestamp: time.UnixMilli(parsed.Timestamp)}
	if parsed.Timestamp == 0 {
		exec.Timestamp = time.Now()
	}
	if exec.Price <= 0 {
		exec.Price = order.Price
	}
	return exec, nil
}
