package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"diagnosys-poller/internal/logger"
	"diagnosys-poller/internal/metrics"
)

// DefaultBuffer is the number of reports kept in memory.
const DefaultBuffer = 100

// Options configures a Reporter.
type Options struct {
	Buffer  int       // reports kept in memory, <= 0 means DefaultBuffer
	Out     io.Writer // operator lines, nil means os.Stdout
	Color   bool      // colour the operator line
	Logger  *zap.SugaredLogger
	Metrics *metrics.Registry
	Sinks   []Sink
}

// Reporter is shared by every orchestrator and is safe for concurrent use.
type Reporter struct {
	mu      sync.Mutex
	entries []Report
	maxSize int

	outMu   sync.Mutex
	out     io.Writer
	color   bool
	logger  *zap.SugaredLogger
	metrics *metrics.Registry

	sinkMu sync.RWMutex
	sinks  []Sink
}

// NewReporter creates a reporter.
func NewReporter(opts Options) *Reporter {
	size := opts.Buffer
	if size <= 0 {
		size = DefaultBuffer
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{
		entries: make([]Report, 0, size),
		maxSize: size,
		out:     out,
		color:   opts.Color,
		logger:  logger.OrNop(opts.Logger),
		metrics: opts.Metrics,
		sinks:   append([]Sink(nil), opts.Sinks...),
	}
}

// AddSink registers another sink.
func (r *Reporter) AddSink(s Sink) {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Report records rep, prints its line, logs it and fans it out to the sinks.
func (r *Reporter) Report(ctx context.Context, rep Report) {
	r.remember(rep)
	r.print(rep)
	r.log(rep)

	r.sinkMu.RLock()
	sinks := r.sinks
	r.sinkMu.RUnlock()

	for _, s := range sinks {
		r.inc(metrics.SinkPublishTotal)
		if err := s.Publish(ctx, rep); err != nil {
			r.inc(metrics.SinkFailuresTotal)
			r.logger.Warnw("Sink publish failed",
				"sink", s.Name(),
				"asset", rep.Asset,
				"cycle_id", rep.CycleID,
				"error", err)
		}
	}
}

// remember appends to the ring buffer, dropping the oldest entry when full.
func (r *Reporter) remember(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.maxSize {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, rep)
}

func (r *Reporter) print(rep Report) {
	line := rep.Line()
	if r.color {
		switch {
		case rep.Outcome == OutcomeFailed:
			line = pterm.Red(line)
		case rep.Anomalous():
			line = pterm.LightMagenta(line)
		case rep.Outcome == OutcomeDegraded:
			line = pterm.Yellow(line)
		default:
			line = pterm.Green(line)
		}
	}

	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintln(r.out, line)
}

func (r *Reporter) log(rep Report) {
	fields := []interface{}{
		"asset", rep.Asset,
		"cycle_id", rep.CycleID,
		"outcome", rep.Outcome,
		"latency_ms", rep.Duration.Milliseconds(),
	}
	if rep.Result != nil {
		fields = append(fields,
			"status", rep.Result.StatusCode,
			"description", rep.Result.StatusDescription,
			"anomaly", rep.Anomalous())
	}

	switch rep.Outcome {
	case OutcomeFailed:
		fields = append(fields, "stage", rep.Stage, "kind", rep.ErrorKind, "error", rep.Error)
		if rep.Status != 0 {
			fields = append(fields, "http_status", rep.Status)
		}
		r.logger.Errorw("Cycle failed", fields...)
	case OutcomeDegraded:
		r.logger.Warnw("Cycle completed with degraded result", fields...)
	default:
		r.logger.Infow("Cycle completed", fields...)
	}
}

func (r *Reporter) inc(key metrics.MetricKey) {
	if r.metrics != nil {
		r.metrics.Inc(key)
	}
}

// GetLast returns up to n most recent reports, oldest first.
func (r *Reporter) GetLast(n int) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > len(r.entries) {
		n = len(r.entries)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Report, n)
	copy(out, r.entries[len(r.entries)-n:])
	return out
}

// Latest returns the most recent report for each asset seen so far.
func (r *Reporter) Latest() map[string]Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Report)
	for _, rep := range r.entries {
		out[string(rep.Asset)] = rep
	}
	return out
}
