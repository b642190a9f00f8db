package orderbook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDepthServer serves one websocket handler per connection and returns
// the ws:// URL to dial.
func newDepthServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeed_StreamPublishesUpdates(t *testing.T) {
	url := newDepthServer(t, func(conn *websocket.Conn) {
		var sub subscribeMessage
		require.NoError(t, conn.ReadJSON(&sub))
		assert.Equal(t, "subscribe", sub.Op)
		assert.Equal(t, "depth", sub.Channel)
		assert.Equal(t, []string{"BTC-USD"}, sub.Symbols)

		err := conn.WriteMessage(websocket.TextMessage, []byte(`{
			"symbol": "BTC-USD",
			"bids": [[49990, 1.0]],
			"asks": [[50010, 1.0]]
		}`))
		require.NoError(t, err)

		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	})

	feed := NewFeed(DefaultFeedConfig(url), []string{"BTC-USD"})
	feed.Start(context.Background())
	defer feed.Stop()

	require.Eventually(t, func() bool {
		snap, _ := feed.Latest(context.Background(), "BTC-USD")
		return snap != nil
	}, 2*time.Second, 10*time.Millisecond)

	snap, _ := feed.Latest(context.Background(), "BTC-USD")
	assert.Equal(t, 49990.0, snap.BestBid())
	assert.Equal(t, 50010.0, snap.BestAsk())
}

func TestFeed_StreamTeardownReleasesWatchdog(t *testing.T) {
	// The server drops every connection immediately, forcing a full
	// dial-read-fail cycle per stream call.
	url := newDepthServer(t, func(conn *websocket.Conn) {})

	feed := NewFeed(DefaultFeedConfig(url), []string{"BTC-USD"})
	ctx := context.Background()

	baseline := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		err := feed.stream(ctx)
		require.Error(t, err)
	}

	// Each finished stream must take its connection watchdog with it even
	// though ctx was never cancelled.
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline+3
	}, 2*time.Second, 10*time.Millisecond, "reconnect cycles must not accumulate goroutines")
}
