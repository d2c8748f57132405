package diagnosis

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"diagnosys-poller/internal/codec"
	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/logger"
)

// DefaultCommand launches the bundled inference script.
const DefaultCommand = "python3 ai/inference_service.py"

// maxStderrBytes caps how much stderr is kept for the result description.
const maxStderrBytes = 4096

// ProcessConfig configures the local inference process.
type ProcessConfig struct {
	Command string        // shell-style command line, split with shellquote
	Dir     string        // working directory, "" = current
	Env     []string      // extra KEY=VALUE pairs appended to the inherited environment
	Timeout time.Duration // 0 = bounded only by the caller's context
}

// ProcessDiagnoser runs one inference process per diagnosis.
type ProcessDiagnoser struct {
	argv    []string
	dir     string
	env     []string
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewProcessDiagnoser parses cfg.Command and returns the backend.
func NewProcessDiagnoser(cfg ProcessConfig, l *zap.SugaredLogger) (*ProcessDiagnoser, error) {
	command := cfg.Command
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "cannot parse diagnose command %q: %v", command, err)
	}
	if len(argv) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "diagnose command is empty")
	}

	return &ProcessDiagnoser{
		argv:    argv,
		dir:     cfg.Dir,
		env:     cfg.Env,
		timeout: cfg.Timeout,
		logger:  logger.OrNop(l),
	}, nil
}

// Command returns the parsed argv.
func (d *ProcessDiagnoser) Command() []string { return d.argv }

// Diagnose implements Diagnoser. It never returns an error: a process that
// cannot run yields an EXCEPTION result, output without the predictions
// marker yields ERROR.
func (d *ProcessDiagnoser) Diagnose(ctx context.Context, req domain.DiagnosisRequest) (domain.DiagnosisResult, error) {
	out, err := d.run(ctx, req)
	if err != nil {
		d.logger.Warnw("Inference process failed",
			"asset", req.Readings.Asset,
			"command", d.argv[0],
			"error", err)
		return domain.LocalResult(domain.StatusException, err.Error()), nil
	}

	description := strings.TrimSpace(string(out))
	if codec.HasPredictions(out) {
		return domain.DiagnosisResult{StatusCode: domain.StatusOK, StatusDescription: description}, nil
	}
	return domain.LocalResult(domain.StatusError, description), nil
}

// run writes the windows document to stdin, closes it, drains stdout and only
// then waits for exit, so a chatty process cannot block on a full pipe.
func (d *ProcessDiagnoser) run(ctx context.Context, req domain.DiagnosisRequest) ([]byte, error) {
	command := shellquote.Join(d.argv...)

	payload, err := codec.EncodeWindows(req.Readings)
	if err != nil {
		return nil, &errors.ProcessError{Command: command, Err: err}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, d.argv[0], d.argv[1:]...)
	cmd.Dir = d.dir
	cmd.Env = append(os.Environ(), d.env...)
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxStderrBytes}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &errors.ProcessError{Command: command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &errors.ProcessError{Command: command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &errors.ProcessError{Command: command, Err: errors.Wrap(err, "failed to start")}
	}

	writeDone := make(chan error, 1)
	go func() {
		_, werr := stdin.Write(payload)
		if cerr := stdin.Close(); werr == nil {
			werr = cerr
		}
		writeDone <- werr
	}()

	out, readErr := io.ReadAll(stdout)
	waitErr := cmd.Wait()
	writeErr := <-writeDone

	if waitErr != nil {
		err := errors.Wrap(waitErr, "abnormal exit")
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.WithDetail(errors.Wrap(err, msg), msg)
		}
		return out, &errors.ProcessError{Command: command, Err: err}
	}
	if readErr != nil {
		return out, &errors.ProcessError{Command: command, Err: errors.Wrap(readErr, "failed to read output")}
	}
	if writeErr != nil {
		// The process exited cleanly without consuming all of stdin; its output still counts.
		d.logger.Debugw("Inference process did not read its input", "error", writeErr)
	}
	return out, nil
}

// limitedWriter keeps the first max bytes and silently discards the rest.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
