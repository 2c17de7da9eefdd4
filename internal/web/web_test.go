package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powercal/internal/config"
	"powercal/internal/model"
)

func TestHealth(t *testing.T) {
	s := NewServer(&config.Config{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	s := NewServer(&config.Config{}, zerolog.Nop())
	s.SetStatus(Status{
		LastRun: time.Date(2024, time.March, 1, 18, 30, 0, 0, time.UTC),
		Date:    "2024-03-02",
		Result:  &model.SyncResult{Deleted: 2, Inserted: 3},
		OK:      true,
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.OK)
	assert.Equal(t, "2024-03-02", got.Date)
	require.NotNil(t, got.Result)
	assert.Equal(t, 3, got.Result.Inserted)
}

func TestStatusMethodNotAllowed(t *testing.T) {
	s := NewServer(&config.Config{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	s := NewServer(&config.Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", s.Handler())
	}()

	// Let the listener come up, then ask for shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "a context-driven shutdown is a clean exit")
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down after cancel")
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := &config.Config{
		BasicAuth: &config.BasicAuthConfig{Username: "ops", Password: "secret"},
	}
	s := NewServer(cfg, zerolog.Nop())
	h := s.Handler()

	// No credentials: rejected.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong credentials: rejected.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("ops", "wrong")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct credentials: accepted.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("ops", "secret")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// /health stays open.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
