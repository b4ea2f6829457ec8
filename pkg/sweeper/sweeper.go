package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Target is the part of a continuation registry the sweeper drives.
type Target interface {
	Collect(ctx context.Context) (int, error)
	Purge(ctx context.Context, retention time.Duration) (int, error)
}

// Config controls a Sweeper.
type Config struct {
	// Interval between two passes. Defaults to one minute.
	Interval time.Duration
	// Retention after which swept tickets are forgotten. Zero disables
	// purging.
	Retention time.Duration
	Logger    *slog.Logger
}

// Result summarizes one pass.
type Result struct {
	Swept  int
	Purged int
}

// Sweeper collects idle continuations of a Target.
type Sweeper struct {
	target Target
	cfg    Config
}

// New creates a Sweeper for target.
func New(target Target, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sweeper{
		target: target,
		cfg:    cfg,
	}
}

// RunOnce performs a single collect and purge pass.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	swept, err := s.target.Collect(ctx)
	res.Swept = swept
	if err != nil {
		err = fmt.Errorf("collect: %w", err)
	}

	if s.cfg.Retention > 0 {
		purged, perr := s.target.Purge(ctx, s.cfg.Retention)
		res.Purged = purged
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("purge: %w", perr))
		}
	}
	return res, err
}

// Run calls RunOnce every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		res, err := s.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.cfg.Logger.ErrorContext(ctx, "sweep_failed", slog.Any("error", err))
			continue
		}
		if res.Swept > 0 || res.Purged > 0 {
			s.cfg.Logger.InfoContext(ctx, "sweep_done",
				slog.Int("swept", res.Swept),
				slog.Int("purged", res.Purged),
			)
		}
	}
}
