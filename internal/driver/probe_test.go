package driver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func serverPort(t *testing.T, srv *httptest.Server) uint16 {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return uint16(port)
}

func TestHTTPProberWaitsForReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"value":{"ready":false,"message":"starting"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"value":{"ready":true,"message":"ChromeDriver ready for new sessions."}}`))
	}))
	defer srv.Close()

	p := NewHTTPProber()
	p.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	require.NoError(t, p.Ready(ctx, serverPort(t, srv)))
	require.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestHTTPProberGivesUpWhenContextEnds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProber()
	p.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	require.Error(t, p.Ready(ctx, serverPort(t, srv)))
}
