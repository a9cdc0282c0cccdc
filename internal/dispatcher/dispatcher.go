// Package dispatcher runs the polling loop: fetch the newest posts, hand
// them to the worker with bounded concurrency, and refresh headers on a
// fixed cycle interval.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/snapshill/internal/metrics"
	"github.com/JakeFAU/snapshill/internal/snapshot"
	"github.com/JakeFAU/snapshill/internal/telemetry"
	"github.com/JakeFAU/snapshill/internal/worker"
)

// Source yields the newest feed items.
type Source interface {
	FetchNew(ctx context.Context, limit int) ([]snapshot.FeedItem, error)
}

// Processor handles one feed item.
type Processor interface {
	Process(ctx context.Context, item snapshot.FeedItem) (worker.Result, error)
}

// Refresher reloads header state.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config controls the polling loop.
type Config struct {
	Limit           int
	Wait            time.Duration
	RefreshCycles   int
	PostConcurrency int
}

// Dispatcher owns the polling loop.
type Dispatcher struct {
	source  Source
	proc    Processor
	headers Refresher
	cfg     Config
	logger  *zap.Logger

	ready  atomic.Bool
	cycles atomic.Int64
}

// New creates a Dispatcher.
func New(source Source, proc Processor, headers Refresher, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 25
	}
	if cfg.PostConcurrency <= 0 {
		cfg.PostConcurrency = 1
	}
	return &Dispatcher{
		source:  source,
		proc:    proc,
		headers: headers,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start loads headers for the first time. Run calls it when needed; the
// loop never processes posts before it succeeds.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.headers.Refresh(ctx); err != nil {
		return fmt.Errorf("initial header refresh: %w", err)
	}
	d.ready.Store(true)
	return nil
}

// Ready reports whether headers were loaded.
func (d *Dispatcher) Ready() bool {
	return d.ready.Load()
}

// Cycles reports how many cycles completed.
func (d *Dispatcher) Cycles() int64 {
	return d.cycles.Load()
}

// Run polls until ctx is done. It returns an error only when the initial
// header load fails; a canceled context ends the loop cleanly.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.Ready() {
		if err := d.Start(ctx); err != nil {
			return err
		}
	}
	sinceRefresh := 0
	for {
		if err := d.RunCycle(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("cycle failed", zap.Error(err))
		}
		sinceRefresh++
		if d.cfg.RefreshCycles > 0 && sinceRefresh >= d.cfg.RefreshCycles {
			sinceRefresh = 0
			if err := d.headers.Refresh(ctx); err != nil && ctx.Err() == nil {
				d.logger.Warn("header refresh failed, keeping previous headers", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping", zap.Int64("cycles", d.Cycles()))
			return nil
		case <-time.After(d.cfg.Wait):
		}
	}
}

// RunCycle fetches one window of posts and processes them. Posts are started
// in feed order; one failing or panicking post does not stop its siblings.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	if !d.Ready() {
		return errors.New("dispatcher not started")
	}
	cycleID := newCycleID()
	logger := d.logger.With(zap.String("cycle_id", cycleID))
	ctx, span := telemetry.Tracer().Start(ctx, "cycle",
		trace.WithAttributes(attribute.String("cycle.id", cycleID)))
	defer span.End()

	items, err := d.source.FetchNew(ctx, d.cfg.Limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return fmt.Errorf("fetch new posts: %w", err)
	}
	span.SetAttributes(attribute.Int("cycle.posts", len(items)))
	logger.Debug("fetched posts", zap.Int("count", len(items)))

	var g errgroup.Group
	g.SetLimit(d.cfg.PostConcurrency)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d.process(ctx, logger, item)
			return nil
		})
	}
	_ = g.Wait()

	d.cycles.Add(1)
	metrics.ObserveCycle()
	return nil
}

func (d *Dispatcher) process(ctx context.Context, logger *zap.Logger, item snapshot.FeedItem) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("post processing panicked",
				zap.String("post_id", item.ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	res, err := d.proc.Process(ctx, item)
	if err != nil {
		logger.Warn("post not handled", zap.String("post_id", item.ID), zap.Error(err))
		return
	}
	if res != worker.ResultSkipped {
		logger.Info("post handled", zap.String("post_id", item.ID), zap.String("result", string(res)))
	}
}

func newCycleID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
