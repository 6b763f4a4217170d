package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vk/gridcrawl/internal/ctxlog"
	"github.com/vk/gridcrawl/internal/fetch"
	"github.com/vk/gridcrawl/internal/inmemorystore"
	"github.com/vk/gridcrawl/internal/metrics"
	"github.com/vk/gridcrawl/internal/plan"
	"github.com/vk/gridcrawl/internal/progress"
	"github.com/vk/gridcrawl/internal/scheduler"
	"github.com/vk/gridcrawl/internal/task"
	"go.opentelemetry.io/otel/trace"
)

// userAgent is sent by the HTTP fetcher.
const userAgent = "gridcrawl/1.0"

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config

	plan      *plan.Plan
	scheduler *scheduler.Scheduler
	store     *inmemorystore.Store
	registry  *prometheus.Registry
	closers   []io.Closer

	httpServer *http.Server
}

// Option customises NewApp. Options exist mainly for tests.
type Option func(*options)

type options struct {
	executor  task.Executor
	tracer    trace.Tracer
	observers []scheduler.Observer
}

// WithExecutor replaces the fetcher selected by Config.Fetcher.
func WithExecutor(e task.Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

// WithTracer sets the tracer used for run and task spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithObserver adds scheduler observers next to the built-in ones.
func WithObserver(obs ...scheduler.Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs...)
	}
}

// NewApp is the constructor for the main application. It loads the plan,
// builds the fetcher and registers every page with a fresh scheduler. The
// report is written to outW and logs to logW.
func NewApp(ctx context.Context, outW, logW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	p, err := plan.Load(ctx, cfg.PlanPath, cfg.Vars)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	logger.Debug("Plan loaded.", "pages", len(p.Pages))

	a := &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		plan:     p,
		store:    inmemorystore.New(),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector())

	work := o.executor
	if work == nil {
		work, err = a.newFetcher()
		if err != nil {
			return nil, errors.Join(err, a.Close())
		}
	}

	observers := []scheduler.Observer{metrics.NewRecorder(a.registry)}
	if cfg.EventsURL != "" {
		pub, err := progress.Dial(ctx, cfg.EventsURL, cfg.EventsNamespace, cfg.InsecureSkipVerify)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to connect progress stream: %w", err), a.Close())
		}
		a.closers = append(a.closers, pub)
		observers = append(observers, pub)
	}
	observers = append(observers, o.observers...)

	policy, err := ParseFailurePolicy(cfg.OnFailure)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	schedOpts := []scheduler.Option{
		scheduler.WithFailurePolicy(policy),
		scheduler.WithStore(a.store),
		scheduler.WithObserver(observers...),
	}
	if o.tracer != nil {
		schedOpts = append(schedOpts, scheduler.WithTracer(o.tracer))
	}
	a.scheduler, err = scheduler.New(cfg.Workers, work, schedOpts...)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	if err := p.Apply(a.scheduler); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to register plan: %w", err), a.Close())
	}
	logger.Debug("Plan registered with scheduler.", "tasks", a.scheduler.Len(), "workers", a.scheduler.MaxConcurrent())

	return a, nil
}

// newFetcher builds the task executor named by the configuration.
func (a *App) newFetcher() (task.Executor, error) {
	switch a.config.Fetcher {
	case FetcherHTTP:
		h, err := fetch.NewHTTP(fetch.HTTPOptions{
			Timeout:            a.config.RequestTimeout,
			RateLimit:          a.config.RateLimit,
			Burst:              a.config.Burst,
			UserAgent:          userAgent,
			InsecureSkipVerify: a.config.InsecureSkipVerify,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, h)
		return h, nil
	default:
		return fetch.NewSimulated(fetch.DefaultMinLatency, fetch.DefaultMaxLatency)
	}
}

// Scheduler returns the application's scheduler. This is primarily for testing.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Store returns the live status store. This is primarily for testing.
func (a *App) Store() *inmemorystore.Store {
	return a.store
}

// Close releases the fetcher and the progress stream.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
