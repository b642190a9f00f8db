package orderbook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// FeedConfig holds websocket depth feed settings
type FeedConfig struct {
	URL          string        `yaml:"url"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

// DefaultFeedConfig returns feed settings suitable for a local depth relay
func DefaultFeedConfig(url string) FeedConfig {
	return FeedConfig{
		URL:          url,
		ReadTimeout:  30 * time.Second,
		ReconnectMin: 1 * time.Second,
		ReconnectMax: 30 * time.Second,
	}
}

// Feed maintains the latest depth snapshot per subscribed symbol from a
// websocket depth stream. The read loop reconnects with capped backoff;
// consumers only ever see the last complete snapshot.
type Feed struct {
	config  FeedConfig
	symbols []string

	mu     sync.RWMutex
	latest map[string]*Snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeed creates a depth feed for the given symbols. Call Start to begin
// streaming.
func NewFeed(config FeedConfig, symbols []string) *Feed {
	return &Feed{
		config:  config,
		symbols: symbols,
		latest:  make(map[string]*Snapshot),
	}
}

// depthMessage is the wire format of one depth update. Levels arrive as
// [price, size] pairs, best-first.
type depthMessage struct {
	Symbol      string       `json:"symbol"`
	Bids        [][2]float64 `json:"bids"`
	Asks        [][2]float64 `json:"asks"`
	TimestampMs int64        `json:"ts"`
}

type subscribeMessage struct {
	Op      string   `json:"op"`
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols"`
}

// Start launches the streaming loop. It returns immediately; snapshots
// become available as updates arrive.
func (f *Feed) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go f.run(ctx)
}

// Stop terminates the streaming loop and waits for it to exit
func (f *Feed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)

	backoff := f.config.ReconnectMin
	for {
		if ctx.Err() != nil {
			return
		}

		err := f.stream(ctx)
		if ctx.Err() != nil {
			return
		}

		log.Warn().Err(err).Str("url", f.config.URL).Dur("backoff", backoff).
			Msg("Depth feed disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > f.config.ReconnectMax {
			backoff = f.config.ReconnectMax
		}
	}
}

// stream dials, subscribes and reads updates until the connection fails or
// the context is cancelled.
func (f *Feed) stream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial depth feed: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on cancellation. The watchdog must not outlive
	// this connection or reconnect cycles would accumulate goroutines.
	streamDone := make(chan struct{})
	defer close(streamDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-streamDone:
		}
	}()

	sub := subscribeMessage{Op: "subscribe", Channel: "depth", Symbols: f.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe depth feed: %w", err)
	}

	log.Info().Str("url", f.config.URL).Strs("symbols", f.symbols).Msg("Depth feed connected")

	for {
		if f.config.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read depth feed: %w", err)
		}

		f.handleMessage(message)
	}
}

func (f *Feed) handleMessage(message []byte) {
	var msg depthMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Msg("Dropping malformed depth message")
		return
	}
	if msg.Symbol == "" || (len(msg.Bids) == 0 && len(msg.Asks) == 0) {
		return
	}

	snap := &Snapshot{
		Symbol:    msg.Symbol,
		Bids:      toLevels(msg.Bids),
		Asks:      toLevels(msg.Asks),
		Timestamp: time.UnixMilli(msg.TimestampMs),
	}
	if msg.TimestampMs == 0 {
		snap.Timestamp = time.Now()
	}

	f.mu.Lock()
	f.latest[msg.Symbol] = snap
	f.mu.Unlock()
}

func toLevels(pairs [][2]float64) []Level {
	levels := make([]Level, 0, len(pairs))
	for _, p := range pairs {
		if p[0] <= 0 || p[1] <= 0 {
			continue
		}
		levels = append(levels, Level{Price: p[0], Size: p[1]})
	}
	return levels
}

// Latest returns the most recent snapshot for symbol, or nil when no update
// has arrived yet. Snapshots are immutable once published here.
func (f *Feed) Latest(_ context.Context, symbol string) (*Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest[symbol], nil
}
