package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"diagnosys-poller/internal/config"
	"diagnosys-poller/internal/diagnosis"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/metrics"
	"diagnosys-poller/internal/report"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/values":
			if r.URL.Query().Get("asset_id") == "X9" {
				http.Error(w, `{"detail":"Asset X9 not found"}`, http.StatusNotFound)
				return
			}
			w.Write([]byte(`{"values":["1","3","0"]}`))
		case diagnosis.EnginePath:
			w.Write([]byte(`{"statusCode":"1","statusDescription":"anomaly detected"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func loadConfig(t *testing.T, settings map[string]interface{}) *config.Config {
	t.Helper()
	v := config.NewViper()
	for k, val := range settings {
		v.Set(k, val)
	}
	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	return cfg
}

func TestApp_SingleShotWritesHistory(t *testing.T) {
	srv := fakeBackend(t)
	cfg := loadConfig(t, map[string]interface{}{
		"base_url":     srv.URL,
		"assets":       []string{"M1", "M2"},
		"history.path": filepath.Join(t.TempDir(), "history.db"),
	})

	var out bytes.Buffer
	a, err := newApp(context.Background(), cfg, zap.NewNop().Sugar(), &out, false)
	require.NoError(t, err)
	defer a.close()

	require.NoError(t, a.run(context.Background()))

	assert.Contains(t, out.String(), "asset=M1 1 - anomaly detected [ANOMALY]")
	assert.Contains(t, out.String(), "asset=M2 1 - anomaly detected [ANOMALY]")
	assert.Equal(t, int64(2), a.metrics.Value(metrics.CycleSuccessTotal))
	assert.Equal(t, int64(2), a.metrics.Value(metrics.AnomaliesTotal))

	stored, err := a.history.Recent(context.Background(), "M2", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, report.OutcomeSuccess, stored[0].Outcome)
}

func TestApp_SingleShotFailureIsReturned(t *testing.T) {
	srv := fakeBackend(t)
	cfg := loadConfig(t, map[string]interface{}{
		"base_url": srv.URL,
		"assets":   []string{"M1", "X9"},
	})

	var out bytes.Buffer
	a, err := newApp(context.Background(), cfg, zap.NewNop().Sugar(), &out, false)
	require.NoError(t, err)
	defer a.close()

	err = a.run(context.Background())
	require.Error(t, err)

	var remote *errors.RemoteError
	assert.True(t, errors.As(err, &remote))
	// the healthy asset still completes its cycle
	assert.Contains(t, out.String(), "asset=M1 1 - anomaly detected")
	assert.Contains(t, out.String(), "asset=X9 failed at fetch")
}

func TestApp_BadHistoryPath(t *testing.T) {
	cfg := loadConfig(t, map[string]interface{}{
		"history.path": filepath.Join(t.TempDir(), "missing", "dir", "history.db"),
	})

	_, err := newApp(context.Background(), cfg, zap.NewNop().Sugar(), &bytes.Buffer{}, false)
	require.Error(t, err)
	assert.NotEmpty(t, errors.FlattenHints(err))
}

func TestApp_UnreachableRedisIsSkipped(t *testing.T) {
	cfg := loadConfig(t, map[string]interface{}{
		"redis.addr": "127.0.0.1:1",
	})

	a, err := newApp(context.Background(), cfg, zap.NewNop().Sugar(), &bytes.Buffer{}, false)
	require.NoError(t, err)
	defer a.close()
	assert.Nil(t, a.redis)
}

func TestApp_StatusServerStopsWithPolling(t *testing.T) {
	srv := fakeBackend(t)
	cfg := loadConfig(t, map[string]interface{}{
		"base_url":    srv.URL,
		"status.addr": "127.0.0.1:0",
	})

	a, err := newApp(context.Background(), cfg, zap.NewNop().Sugar(), &bytes.Buffer{}, false)
	require.NoError(t, err)
	defer a.close()
	require.NotNil(t, a.server)

	assert.NoError(t, a.run(context.Background()))
}

func TestRootCmd(t *testing.T) {
	t.Run("Version", func(t *testing.T) {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"version"})

		require.NoError(t, cmd.Execute())
		assert.Equal(t, "diagnosys-poller dev\n", out.String())
	})

	t.Run("CheckPrintsEffectiveConfig", func(t *testing.T) {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"check", "--base-url", "http://generator:8000", "--assets", "M1,M4"})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), `"base_url": "http://generator:8000"`)
		assert.Contains(t, out.String(), `"M4"`)
		assert.Contains(t, out.String(), "configuration OK")
	})

	t.Run("CheckRejectsInvalidConfig", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"check", "--backend", "grpc"})

		err := cmd.Execute()
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
	})

	t.Run("NegativeIntervalRunsOnce", func(t *testing.T) {
		srv := fakeBackend(t)
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"run", "--base-url", srv.URL, "--interval-ms=-1", "--no-color"})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "asset=M1 1 - anomaly detected")
	})

	t.Run("OnceFailsOnUnreachableProvider", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"once", "--base-url", "http://127.0.0.1:1", "--no-color", "--timeout", "500ms"})

		err := cmd.Execute()
		require.Error(t, err)
		var transportErr *errors.TransportError
		assert.True(t, errors.As(err, &transportErr))
	})
}
