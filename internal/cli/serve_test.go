package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiwari-pos/terminal/internal/config"
	"github.com/kiwari-pos/terminal/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		RemoteBaseURL:  "http://127.0.0.1:1/api/",
		RemoteTimeout:  time.Second,
		JWTSecret:      "secret",
		SafetyTimeout:  time.Second,
		AllowedOrigins: []string{"http://localhost:5173"},
	}
}

func TestNewServer_WithoutOptionalBackends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, cleanup, err := newServer(ctx, serveConfig())
	require.NoError(t, err)
	defer cleanup()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/terminal/state", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Without a database the journal routes are not mounted.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/journal", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNewServer_InvalidRemote(t *testing.T) {
	cfg := serveConfig()
	cfg.RemoteBaseURL = "not a url"

	_, _, err := newServer(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrInvalidBaseURL)
}

func TestListenUntilDone_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- listenUntilDone(ctx, srv) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestListenUntilDone_ReportsListenError(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1", Handler: http.NotFoundHandler()}

	err := listenUntilDone(context.Background(), srv)
	require.Error(t, err)
}
