package guardian

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func dashboardStub(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/meta/metrics", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPPauser_ReadsPauseFlag(t *testing.T) {
	srv := dashboardStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"guardian": {"is_paused": true}}`))
	})

	pauser := NewHTTPPauser(srv.URL, time.Second)
	assert.True(t, pauser.Paused(context.Background()))
}

func TestHTTPPauser_NotPaused(t *testing.T) {
	srv := dashboardStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"guardian": {"is_paused": false}, "uptime": 123}`))
	})

	pauser := NewHTTPPauser(srv.URL, time.Second)
	assert.False(t, pauser.Paused(context.Background()))
}

func TestHTTPPauser_FailsOpenOnTransportError(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close() // connection refused from here on

	pauser := NewHTTPPauser(srv.URL, time.Second)
	assert.False(t, pauser.Paused(context.Background()))
}

func TestHTTPPauser_FailsOpenOnTimeout(t *testing.T) {
	srv := dashboardStub(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	pauser := NewHTTPPauser(srv.URL, 20*time.Millisecond)
	assert.False(t, pauser.Paused(context.Background()))
}

func TestHTTPPauser_FailsOpenOnBadPayload(t *testing.T) {
	srv := dashboardStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	pauser := NewHTTPPauser(srv.URL, time.Second)
	assert.False(t, pauser.Paused(context.Background()))
}

func TestHTTPPauser_FailsOpenOnServerError(t *testing.T) {
	srv := dashboardStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	pauser := NewHTTPPauser(srv.URL, time.Second)
	assert.False(t, pauser.Paused(context.Background()))
}

func TestStaticPauser(t *testing.T) {
	assert.True(t, StaticPauser(true).Paused(context.Background()))
	assert.False(t, StaticPauser(false).Paused(context.Background()))
}
