package ops

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pulsehub/pulse/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, ":9090", config.Addr)
	assert.True(t, config.MetricsEnabled)
	assert.Equal(t, "/metrics", config.MetricsEndpoint)
}

func TestEmptyConfigGetsDefaults(t *testing.T) {
	s := NewServer(Config{}, registry.NewRegistry())
	assert.Equal(t, ":9090", s.config.Addr)
	assert.Equal(t, "/metrics", s.config.MetricsEndpoint)
}

func TestDebugRegistryHandler(t *testing.T) {
	reg := registry.NewRegistry()
	s := NewServer(DefaultConfig(), reg)

	w := httptest.NewRecorder()
	s.handleDebugRegistry(w, httptest.NewRequest("GET", "/debug/registry", nil))

	require.Equal(t, 200, w.Code)

	var out map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 0, out["users"])
	assert.Equal(t, 0, out["connections"])
}

func TestStartAndShutdown(t *testing.T) {
	s := NewServer(Config{Addr: ":0"}, registry.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	require.NoError(t, s.Shutdown(context.Background()))
}
