package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	var order []string
	for _, name := range []string{"store", "cache", "http"} {
		name := name
		sm.RegisterCloser(name, CloserFunc(func() error {
			order = append(order, name)
			return nil
		}))
	}

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.Equal(t, []string{"http", "cache", "store"}, order)
	assert.True(t, sm.IsShuttingDown())

	// Second call is a no-op.
	require.NoError(t, sm.Shutdown(context.Background(), "again"))
	assert.Len(t, order, 3)
}

func TestShutdownReportsCloseErrors(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	boom := errors.New("boom")
	sm.RegisterCloser("bad", CloserFunc(func() error { return boom }))

	err := sm.Shutdown(context.Background(), "test")
	assert.ErrorIs(t, err, boom)
}

func TestShutdownWaitsForInFlight(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: time.Second})
	require.True(t, sm.TrackRequest())

	go func() {
		time.Sleep(100 * time.Millisecond)
		sm.UntrackRequest()
	}()

	start := time.Now()
	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int64(0), sm.InFlightCount())
}

func TestShutdownDrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 100 * time.Millisecond})
	require.True(t, sm.TrackRequest())

	err := sm.Shutdown(context.Background(), "test")
	assert.Error(t, err)
}

func TestShutdownMiddleware(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	h := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		assert.Equal(t, int64(1), sm.InFlightCount())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), sm.InFlightCount())

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListenForSignalsContextCancel(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sm.ListenForSignals(ctx))

	select {
	case <-sm.ShutdownCh():
	default:
		t.Fatal("shutdown channel not closed")
	}
}

func TestGracefulHTTPServerStopsOnShutdown(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	gs := NewGracefulHTTPServer(srv, sm, time.Second)

	done := make(chan error, 1)
	go func() { done <- gs.ListenAndServe() }()

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
