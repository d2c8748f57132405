package main

import (
	"context"
	"io"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"diagnosys-poller/internal/api"
	"diagnosys-poller/internal/config"
	"diagnosys-poller/internal/diagnosis"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/history"
	"diagnosys-poller/internal/metrics"
	"diagnosys-poller/internal/poller"
	"diagnosys-poller/internal/report"
	"diagnosys-poller/internal/sink"
	"diagnosys-poller/internal/source"
	"diagnosys-poller/internal/transport"
)

// app owns everything one invocation of the poller needs.
type app struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	metrics  *metrics.Registry
	reporter *report.Reporter
	tracker  *poller.EndpointTracker

	orchestrators []*poller.Orchestrator

	history *history.Store
	pruner  *history.Pruner
	redis   *sink.RedisSink
	webhook *sink.WebhookSink
	server  *api.Server
}

func newApp(ctx context.Context, cfg *config.Config, l *zap.SugaredLogger, out io.Writer, color bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  l,
		metrics: metrics.NewRegistry(),
	}

	a.reporter = report.NewReporter(report.Options{
		Buffer:  cfg.Report.Buffer,
		Out:     out,
		Color:   color,
		Logger:  l,
		Metrics: a.metrics,
	})
	a.tracker = poller.NewEndpointTracker(cfg.Orchestrator("").Health, a.metrics)

	if err := a.openSinks(ctx); err != nil {
		a.close()
		return nil, err
	}

	client := transport.NewClient(cfg.TransportOptions())
	src := source.NewHTTPSource(cfg.SourceURL(), client)
	diag, err := diagnosis.New(cfg.Diagnosis(), client, l)
	if err != nil {
		a.close()
		return nil, err
	}

	for _, asset := range cfg.AssetIDs() {
		a.orchestrators = append(a.orchestrators, poller.New(cfg.Orchestrator(asset), src, diag, poller.Deps{
			Reporter: a.reporter,
			Tracker:  a.tracker,
			Metrics:  a.metrics,
			Logger:   l,
		}))
	}

	if cfg.Status.Addr != "" {
		providers := make([]api.StatusProvider, 0, len(a.orchestrators))
		for _, o := range a.orchestrators {
			providers = append(providers, o)
		}
		deps := api.Deps{
			Metrics:       a.metrics,
			Reporter:      a.reporter,
			Tracker:       a.tracker,
			Orchestrators: providers,
			Logger:        l,
		}
		if a.history != nil {
			deps.History = a.history
		}
		handler := api.RegisterRoutes(mux.NewRouter(), api.NewHandler(deps))
		a.server = api.NewServer(cfg.Status.Addr, handler, l)
	}

	l.Infow("Poller configured",
		"assets", cfg.Assets,
		"interval", cfg.Interval(),
		"backend", cfg.Diagnose.Backend,
		"policy", cfg.Diagnose.Policy,
	)
	return a, nil
}

// openSinks attaches the optional report sinks. A history database that
// cannot be opened is fatal; an unreachable redis only disables that sink.
func (a *app) openSinks(ctx context.Context) error {
	cfg := a.cfg

	if cfg.History.Path != "" {
		store, err := history.Open(ctx, cfg.History.Path, a.logger)
		if err != nil {
			return errors.WithHint(
				errors.Wrap(err, "failed to open report history"),
				"check history.path or leave it empty to disable history",
			)
		}
		a.history = store
		a.pruner = history.NewPruner(store, cfg.History.Retention, cfg.History.PruneInterval, a.metrics, a.logger)
		a.reporter.AddSink(store)
	}

	if cfg.Redis.Addr != "" {
		rs, err := sink.NewRedisSink(ctx, sink.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, a.logger)
		if err != nil {
			a.logger.Warnw("Redis sink disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			a.redis = rs
			a.reporter.AddSink(rs)
		}
	}

	if len(cfg.Webhook.URLs) > 0 {
		a.webhook = sink.NewWebhookSink(cfg.Webhook.URLs, cfg.Webhook.Timeout, a.metrics, a.logger)
		a.reporter.AddSink(a.webhook)
	}
	return nil
}

// run drives every orchestrator until they finish. In single-shot mode each
// asset runs its cycle to completion and the first failure is returned. In
// continuous mode an unrecoverable failure on one asset stops all of them.
// The status API and history pruner live as long as the orchestrators.
func (a *app) run(ctx context.Context) error {
	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	var bg errgroup.Group
	if a.server != nil {
		bg.Go(func() error {
			if err := a.server.Serve(bgCtx); err != nil {
				stopPolling()
				return errors.Wrap(err, "status API failed")
			}
			return nil
		})
	}
	if a.pruner != nil {
		bg.Go(func() error {
			a.pruner.Start(bgCtx)
			return nil
		})
	}

	g, gctx := errgroup.WithContext(pollCtx)
	runCtx := pollCtx
	if a.cfg.Interval() > 0 {
		runCtx = gctx
	}
	for _, o := range a.orchestrators {
		o := o
		g.Go(func() error { return o.Run(runCtx) })
	}

	err := g.Wait()
	stopBackground()
	if bgErr := bg.Wait(); err == nil {
		err = bgErr
	}
	return err
}

func (a *app) close() {
	if a.webhook != nil {
		a.webhook.Wait()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warnw("Failed to close redis sink", "error", err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warnw("Failed to close report history", "error", err)
		}
	}
}
