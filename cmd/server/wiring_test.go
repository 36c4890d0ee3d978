package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmregistry/internal/platform/config"
	"wasmregistry/internal/platform/logger"
	"wasmregistry/internal/registry/metrics"
)

func testConfig(backend string) config.Server {
	return config.Server{
		Backend:       backend,
		LedgerGenesis: time.Now().Add(-time.Hour),
		LedgerClose:   time.Second,
	}
}

func TestBuildBackend(t *testing.T) {
	ctx := context.Background()
	log := logger.Discard()

	t.Run("memory", func(t *testing.T) {
		deps, err := buildBackend(ctx, testConfig(config.BackendMemory), log)
		require.NoError(t, err)
		defer deps.close(log)
		assert.NotNil(t, deps.backend)
		assert.NotNil(t, deps.sweep)
		assert.Greater(t, deps.seq.Sequence(), uint32(0))
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig(config.BackendSQLite)
		cfg.SQLite.Path = filepath.Join(t.TempDir(), "registry.db")
		deps, err := buildBackend(ctx, cfg, log)
		require.NoError(t, err)
		defer deps.close(log)
		n, err := deps.sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := buildBackend(ctx, testConfig("etcd"), log)
		assert.Error(t, err)
	})
}

func TestBuildSinksWithoutKafka(t *testing.T) {
	cfg := testConfig(config.BackendMemory)
	sinks, err := buildSinks(context.Background(), cfg, &backendDeps{}, metrics.New(prometheus.NewRegistry()), logger.Discard())
	require.NoError(t, err)
	defer sinks.close()

	assert.Nil(t, sinks.relay)
	assert.Nil(t, sinks.kafka)
	assert.Len(t, sinks.options, 2)
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		health func(context.Context) error
		want   int
	}{
		{"no probe", nil, http.StatusOK},
		{"healthy", func(context.Context) error { return nil }, http.StatusOK},
		{"down", func(context.Context) error { return errors.New("connection refused") }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthz(&backendDeps{health: tt.health})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSweepLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 8)
	sweep := func(context.Context) (int64, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return 1, nil
	}

	done := make(chan error, 1)
	go func() { done <- sweepLoop(ctx, 5*time.Millisecond, sweep, logger.Discard()) }()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("sweep never ran")
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop")
	}
}
