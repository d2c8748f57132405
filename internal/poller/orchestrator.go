// Package poller drives the fetch → diagnose → report cycle for one asset,
// once or on a fixed interval.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"diagnosys-poller/internal/codec"
	"diagnosys-poller/internal/diagnosis"
	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/logger"
	"diagnosys-poller/internal/metrics"
	"diagnosys-poller/internal/report"
	"diagnosys-poller/internal/source"
)

// State is the position of an orchestrator in its cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateDiagnosing
	StateReporting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateDiagnosing:
		return "diagnosing"
	case StateReporting:
		return "reporting"
	case StateTerminated:
		return "terminated"
	}
	return "idle"
}

// Deps are the shared, thread-safe collaborators of an orchestrator.
// Any of them may be nil.
type Deps struct {
	Reporter *report.Reporter
	Tracker  *EndpointTracker
	Metrics  *metrics.Registry
	Logger   *zap.SugaredLogger
}

// Status is a point-in-time view of an orchestrator.
type Status struct {
	Asset    domain.AssetID `json:"asset"`
	State    string         `json:"state"`
	Cycles   int64          `json:"cycles"`
	Interval string         `json:"interval"`
}

// Orchestrator runs cycles for a single asset. One cycle at a time.
type Orchestrator struct {
	policy    Policy
	source    source.Source
	diagnoser diagnosis.Diagnoser

	reporter *report.Reporter
	tracker  *EndpointTracker
	metrics  *metrics.Registry
	logger   *zap.SugaredLogger

	state  atomic.Int32
	cycles atomic.Int64
}

// New creates an orchestrator for policy.Asset.
func New(policy Policy, src source.Source, diag diagnosis.Diagnoser, deps Deps) *Orchestrator {
	if policy.Asset == "" {
		policy.Asset = domain.DefaultAsset
	}
	l := logger.OrNop(deps.Logger).With("asset", policy.Asset)

	rep := deps.Reporter
	if rep == nil {
		rep = report.NewReporter(report.Options{Logger: l, Metrics: deps.Metrics})
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = NewEndpointTracker(policy.Health, deps.Metrics)
	}

	o := &Orchestrator{
		policy:    policy,
		source:    src,
		diagnoser: diag,
		reporter:  rep,
		tracker:   tracker,
		metrics:   deps.Metrics,
		logger:    l,
	}
	tracker.Track(o.endpoint(codec.StageFetch))
	tracker.Track(o.endpoint(codec.StageDiagnose))
	return o
}

// Asset returns the asset this orchestrator polls.
func (o *Orchestrator) Asset() domain.AssetID { return o.policy.Asset }

// State returns the current state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Status returns a snapshot for the status API.
func (o *Orchestrator) Status() Status {
	interval := "once"
	if o.policy.Continuous() {
		interval = o.policy.Interval.String()
	}
	return Status{
		Asset:    o.policy.Asset,
		State:    o.State().String(),
		Cycles:   o.cycles.Load(),
		Interval: interval,
	}
}

// Run executes one cycle when the interval is <= 0 and returns its error.
// Otherwise it repeats cycles until ctx is cancelled, waiting the interval
// after each one; failed cycles are logged and the loop continues. Only an
// error that is not a transport, remote or parse failure ends the loop early.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.setState(StateTerminated)

	if !o.policy.Continuous() {
		_, err := o.RunCycle(ctx)
		return err
	}

	o.logger.Infow("Starting poll loop", "interval", o.policy.Interval)
	for {
		if ctx.Err() != nil {
			o.logger.Infow("Poll loop stopped")
			return nil
		}

		if _, err := o.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				o.logger.Infow("Poll loop stopped")
				return nil
			}
			if !errors.IsRetryable(err) {
				return errors.Wrapf(err, "asset %s: unrecoverable cycle failure", o.policy.Asset)
			}
		}

		timer := time.NewTimer(o.policy.Interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			o.logger.Infow("Poll loop stopped")
			return nil
		}
	}
}

// RunCycle performs fetch → diagnose → report once. A fetch failure skips
// diagnose. The report is always delivered, and the returned error is the
// failure that ended the cycle, if any.
func (o *Orchestrator) RunCycle(ctx context.Context) (report.Report, error) {
	start := time.Now()
	o.cycles.Add(1)
	o.inc(metrics.CyclesTotal)

	rep := report.Report{
		CycleID:   uuid.NewString(),
		Asset:     o.policy.Asset,
		StartedAt: start,
	}
	log := o.logger.With("cycle_id", rep.CycleID)

	/* ---------- FETCH ---------- */

	o.setState(StateFetching)
	var readings domain.ReadingSet
	err := o.attempt(ctx, codec.StageFetch, metrics.FetchAttemptsTotal, func() error {
		var ferr error
		readings, ferr = o.source.FetchReadings(ctx, o.policy.Asset)
		return ferr
	})
	if err != nil {
		o.inc(metrics.FetchFailuresTotal)
		rep.FromError(codec.StageFetch, err)
		return o.finish(ctx, rep, start), err
	}
	o.tracker.MarkSuccess(o.endpoint(codec.StageFetch))
	rep.Readings = readings.Len()
	log.Debugw("Fetched readings",
		"count", readings.Len(),
		"asset_type", readings.AssetType,
		"features", readings.FeatureNames)

	/* ---------- DIAGNOSE ---------- */

	o.setState(StateDiagnosing)
	req := domain.NewDiagnosisRequest(readings)
	var result domain.DiagnosisResult
	err = o.attempt(ctx, codec.StageDiagnose, metrics.DiagnoseAttemptsTotal, func() error {
		var derr error
		result, derr = o.diagnoser.Diagnose(ctx, req)
		return derr
	})
	if err != nil {
		o.inc(metrics.DiagnoseFailuresTotal)
		rep.FromError(codec.StageDiagnose, err)
		return o.finish(ctx, rep, start), err
	}

	rep.Result = &result
	rep.Outcome = report.OutcomeSuccess
	if result.Synthesized() {
		// Degraded results are still successes for the loop.
		rep.Outcome = report.OutcomeDegraded
		o.tracker.MarkFailure(o.endpoint(codec.StageDiagnose))
		o.inc(metrics.DiagnoseDegradedTotal)
		if result.StatusCode == domain.StatusException {
			o.inc(metrics.ProcessExceptionsTotal)
		}
	} else {
		o.tracker.MarkSuccess(o.endpoint(codec.StageDiagnose))
	}
	if rep.Anomalous() {
		o.inc(metrics.AnomaliesTotal)
	}

	return o.finish(ctx, rep, start), nil
}

// attempt runs fn under the retry policy. A final failure counts against
// the stage's endpoint; success is recorded by the caller.
func (o *Orchestrator) attempt(ctx context.Context, stage string, counter metrics.MetricKey, fn func() error) error {
	attempts, err := Retry(ctx, o.policy.Retry, func() error {
		o.inc(counter)
		return fn()
	})
	if attempts > 1 {
		o.add(metrics.RetriesTotal, int64(attempts-1))
	}

	if err != nil {
		name := o.endpoint(stage)
		o.tracker.MarkFailure(name)
		if !o.tracker.IsHealthy(name) {
			o.logger.Debugw("Endpoint unhealthy", "endpoint", name)
		}
	}
	return err
}

func (o *Orchestrator) finish(ctx context.Context, rep report.Report, start time.Time) report.Report {
	rep.Duration = time.Since(start)
	if o.metrics != nil {
		o.metrics.ObserveCycle(rep.Duration)
	}

	switch rep.Outcome {
	case report.OutcomeFailed:
		o.inc(metrics.CycleFailureTotal)
	case report.OutcomeDegraded:
		o.inc(metrics.CycleDegradedTotal)
	default:
		o.inc(metrics.CycleSuccessTotal)
	}

	o.setState(StateReporting)
	// Deliver the report even when the cycle was cut short by cancellation.
	o.reporter.Report(context.WithoutCancel(ctx), rep)
	o.setState(StateIdle)
	return rep
}

func (o *Orchestrator) endpoint(stage string) string {
	return string(o.policy.Asset) + "/" + stage
}

func (o *Orchestrator) setState(s State) { o.state.Store(int32(s)) }

func (o *Orchestrator) inc(key metrics.MetricKey) { o.add(key, 1) }

func (o *Orchestrator) add(key metrics.MetricKey, delta int64) {
	if o.metrics != nil {
		o.metrics.Add(key, delta)
	}
}
