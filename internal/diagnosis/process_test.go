package diagnosis

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
)

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "infer.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestProcessDiagnoser_Diagnose(t *testing.T) {
	t.Run("PredictionsIsOK", func(t *testing.T) {
		script := writeScript(t, `cat >/dev/null; echo '{"predictions":[0]}'`)
		d, err := NewProcessDiagnoser(ProcessConfig{Command: script}, nil)
		require.NoError(t, err)

		res, err := d.Diagnose(context.Background(), sampleRequest())

		require.NoError(t, err)
		assert.Equal(t, domain.StatusOK, res.StatusCode)
		assert.Equal(t, `{"predictions":[0]}`, res.StatusDescription)
	})

	t.Run("ReceivesWindowsOnStdin", func(t *testing.T) {
		// Echo stdin back wrapped so the marker is present.
		script := writeScript(t, `printf '{"predictions":'; cat; printf '}'`)
		d, err := NewProcessDiagnoser(ProcessConfig{Command: script}, nil)
		require.NoError(t, err)

		res, err := d.Diagnose(context.Background(), sampleRequest())

		require.NoError(t, err)
		assert.Equal(t, domain.StatusOK, res.StatusCode)
		assert.Equal(t, `{"predictions":{"windows":[[1,3,0]]}}`, res.StatusDescription)
	})

	t.Run("OutputWithoutMarkerIsError", func(t *testing.T) {
		script := writeScript(t, `cat >/dev/null; echo garbage`)
		d, err := NewProcessDiagnoser(ProcessConfig{Command: script}, nil)
		require.NoError(t, err)

		res, err := d.Diagnose(context.Background(), sampleRequest())

		require.NoError(t, err)
		assert.Equal(t, domain.StatusError, res.StatusCode)
		assert.Equal(t, "garbage", res.StatusDescription)
	})

	t.Run("NonZeroExitIsException", func(t *testing.T) {
		script := writeScript(t, `cat >/dev/null; echo '{"predictions":[1]}'; echo 'model missing' >&2; exit 3`)
		d, err := NewProcessDiagnoser(ProcessConfig{Command: script}, nil)
		require.NoError(t, err)

		res, err := d.Diagnose(context.Background(), sampleRequest())

		require.NoError(t, err)
		assert.Equal(t, domain.StatusException, res.StatusCode)
		assert.Contains(t, res.StatusDescription, "model missing")
	})

	t.Run("MissingBinaryIsException", func(t *testing.T) {
		d, err := NewProcessDiagnoser(ProcessConfig{Command: filepath.Join(t.TempDir(), "nope")}, nil)
		require.NoError(t, err)

		res, err := d.Diagnose(context.Background(), sampleRequest())

		require.NoError(t, err)
		assert.Equal(t, domain.StatusException, res.StatusCode)
		assert.NotEmpty(t, res.StatusDescription)
	})

	t.Run("TimeoutIsException", func(t *testing.T) {
		script := writeScript(t, `exec sleep 5`)
		d, err := NewProcessDiagnoser(ProcessConfig{Command: script, Timeout: 100 * time.Millisecond}, nil)
		require.NoError(t, err)

		start := time.Now()
		res, err := d.Diagnose(context.Background(), sampleRequest())

		require.NoError(t, err)
		assert.Equal(t, domain.StatusException, res.StatusCode)
		assert.Less(t, time.Since(start), 3*time.Second)
	})
}

func TestNewProcessDiagnoser(t *testing.T) {
	t.Run("DefaultCommand", func(t *testing.T) {
		d, err := NewProcessDiagnoser(ProcessConfig{}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"python3", "ai/inference_service.py"}, d.Command())
	})

	t.Run("QuotedArguments", func(t *testing.T) {
		d, err := NewProcessDiagnoser(ProcessConfig{Command: `python3 "my dir/infer.py" --model=v2`}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"python3", "my dir/infer.py", "--model=v2"}, d.Command())
	})

	t.Run("UnbalancedQuote", func(t *testing.T) {
		_, err := NewProcessDiagnoser(ProcessConfig{Command: `python3 "oops`}, nil)
		assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
	})
}
