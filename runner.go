package pageflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/petrijr/pageflow/internal/engine"
	"github.com/petrijr/pageflow/internal/invoker"
	"github.com/petrijr/pageflow/pkg/definition"
	"github.com/petrijr/pageflow/pkg/sweeper"
)

// Runner bundles an Engine with a background Sweeper to provide a ready to
// use continuation registry for a single process.
//
// Typical usage:
//
//	classes := pageflow.NewClasses()
//	classes.MustRegister("RegistrationAction", func() any { return &Registration{} })
//
//	runner, err := pageflow.NewRunner(pageflow.DefaultConfig(), pageflow.WithClasses(classes))
//	...
//	flow.MustRegister(runner)
//	_ = runner.StartSweeper(ctx)
//	defer runner.Stop()
//
//	ticket, err := runner.Start(ctx, "Registration", nil)
//	snap, err := runner.TriggerEvent(ctx, ticket, "submit")
type Runner struct {
	*Engine

	// Sweeper collects idle continuations of Engine.
	Sweeper *sweeper.Sweeper

	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

type runnerOptions struct {
	classes    *Classes
	loader     Loader
	dispatcher Dispatcher
	tombstones TombstoneStore
	observer   Observer
	clock      Clock
	logger     *slog.Logger
}

// RunnerOption configures NewRunner.
type RunnerOption func(*runnerOptions)

// WithClasses registers the action classes available to flows.
func WithClasses(c *Classes) RunnerOption {
	return func(o *runnerOptions) { o.classes = c }
}

// WithLoader consults l for classes that are not registered, passing it
// Config.ActionDirectory.
func WithLoader(l Loader) RunnerOption {
	return func(o *runnerOptions) { o.loader = l }
}

// WithDispatcher replaces the reflection-based method dispatcher.
func WithDispatcher(d Dispatcher) RunnerOption {
	return func(o *runnerOptions) { o.dispatcher = d }
}

// WithTombstones selects where swept tickets are recorded. Defaults to
// memory.
func WithTombstones(s TombstoneStore) RunnerOption {
	return func(o *runnerOptions) { o.tombstones = s }
}

func WithObserver(obs Observer) RunnerOption {
	return func(o *runnerOptions) { o.observer = obs }
}

func WithClock(c Clock) RunnerOption {
	return func(o *runnerOptions) { o.clock = c }
}

// WithLogger overrides the logger built from Config.Log.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(o *runnerOptions) { o.logger = l }
}

// NewRunner builds a Runner from cfg and registers every flow file listed
// in cfg.Flows.
func NewRunner(cfg Config, opts ...RunnerOption) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o runnerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = NewLogger(cfg.Log, nil)
	}

	invOpts := []invoker.Option{invoker.WithActionDirectory(cfg.ActionDirectory)}
	if o.loader != nil {
		invOpts = append(invOpts, invoker.WithLoader(o.loader, cfg.ActionDirectory))
	}
	if o.dispatcher != nil {
		invOpts = append(invOpts, invoker.WithDispatcher(o.dispatcher))
	}

	eng := engine.NewEngineWithConfig(engine.Config{
		Expiration: cfg.Expiration,
		Invoker:    invoker.New(o.classes, invOpts...),
		Tombstones: o.tombstones,
		Observer:   o.observer,
		Clock:      o.clock,
		Logger:     o.logger,
		MaxDepth:   cfg.MaxCascadeDepth,
	})

	for _, path := range cfg.Flows {
		def, err := definition.Load(path)
		if err != nil {
			return nil, err
		}
		if err := eng.RegisterFlow(def); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		o.logger.Info("flow_registered",
			slog.String("flow", def.Name),
			slog.String("path", path),
		)
	}

	return &Runner{
		Engine: eng,
		Sweeper: sweeper.New(eng, sweeper.Config{
			Interval:  cfg.SweepInterval,
			Retention: cfg.Retention,
			Logger:    o.logger,
		}),
		logger: o.logger,
	}, nil
}

// StartSweeper runs the Sweeper in a background goroutine until Stop is
// called or ctx is cancelled.
//
// If StartSweeper is called more than once without Stop, it returns an
// error.
func (r *Runner) StartSweeper(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("pageflow: sweeper already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Sweeper.Run(ctx)
	}()

	r.logger.DebugContext(ctx, "sweeper_started")
	return nil
}

// Stop cancels the sweeper started by StartSweeper and waits for it to
// exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.logger.Debug("sweeper_stopped")
}
