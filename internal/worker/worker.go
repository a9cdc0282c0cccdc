// Package worker implements the per-post pipeline: archive every link,
// render the reply, post it, and record the post as handled.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/snapshill/internal/metrics"
	"github.com/JakeFAU/snapshill/internal/snapshot"
	"github.com/JakeFAU/snapshill/internal/telemetry"
)

// Result describes how a post was handled.
type Result string

// Post results.
const (
	ResultSkipped  Result = "skipped"
	ResultReplied  Result = "replied"
	ResultOverflow Result = "overflow"
	ResultDryRun   Result = "dry_run"
	ResultFailed   Result = "failed"
)

// Backends picks the ordered archivers for a link.
type Backends interface {
	For(link snapshot.Link) []snapshot.Archiver
}

// Throttle spaces out calls against one host.
type Throttle interface {
	Wait(ctx context.Context, url string) error
}

// Config controls Worker behavior.
type Config struct {
	OverflowSubreddit string
	MaxCommentLength  int
	MaxOverflowLength int
	WarnAfter         time.Duration
	DryRun            bool
}

// Deps are the collaborators a Worker needs. Throttle is optional.
type Deps struct {
	Feed     snapshot.Feed
	Store    snapshot.Store
	Builder  *snapshot.Builder
	Renderer *snapshot.Renderer
	Backends Backends
	Headers  snapshot.HeaderSource
	Throttle Throttle
}

// Worker handles one feed item at a time. It is safe for concurrent use.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	// unrecorded maps post ids that were answered but not yet stored to
	// their reply ids. Such posts are never replied to again.
	mu         sync.Mutex
	unrecorded map[string]string
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxCommentLength <= 0 {
		cfg.MaxCommentLength = snapshot.DefaultMaxCommentLength
	}
	if cfg.MaxOverflowLength <= 0 {
		cfg.MaxOverflowLength = snapshot.DefaultMaxOverflowLength
	}
	if cfg.OverflowSubreddit == "" {
		cfg.OverflowSubreddit = "SnapshillBotEx"
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger, unrecorded: make(map[string]string)}
}

// Process archives and replies to item unless it was already handled. A
// post is recorded only after its reply was posted; any error before that
// leaves it eligible for the next cycle. A post whose reply was sent but not
// recorded only has its record retried.
func (w *Worker) Process(ctx context.Context, item snapshot.FeedItem) (res Result, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "post.process",
		trace.WithAttributes(attribute.String("post.id", item.ID)))
	defer func() {
		span.SetAttributes(attribute.String("post.result", string(res)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "post not handled")
		}
		span.End()
	}()
	logger := w.logger.With(zap.String("post_id", item.ID))

	seen, err := w.deps.Store.Contains(ctx, item.ID)
	if err != nil {
		return w.finish(ResultFailed), fmt.Errorf("check store: %w", err)
	}
	if seen {
		logger.Debug("post already handled")
		w.forget(item.ID)
		return w.finish(ResultSkipped), nil
	}
	if replyID, ok := w.pending(item.ID); ok {
		if err := w.record(ctx, logger, item.ID, replyID); err != nil {
			return w.finish(ResultFailed), err
		}
		return w.finish(ResultSkipped), nil
	}

	metrics.IncActivePosts()
	defer metrics.DecActivePosts()
	if w.cfg.WarnAfter > 0 {
		timer := time.AfterFunc(w.cfg.WarnAfter, func() {
			logger.Warn("post is taking a long time", zap.Duration("elapsed", w.cfg.WarnAfter))
		})
		defer timer.Stop()
	}

	post, err := w.deps.Builder.Build(item)
	if err != nil {
		return w.finish(ResultFailed), fmt.Errorf("build post: %w", err)
	}
	if len(post.Links) == 0 {
		logger.Debug("post has no links")
		return w.finish(ResultSkipped), nil
	}
	logger.Debug("post built", zap.Int("links", len(post.Links)))

	if err := w.archive(ctx, &post); err != nil {
		return w.finish(ResultFailed), err
	}

	header, err := w.deps.Headers.Get(post.Subreddit)
	if err != nil {
		return w.finish(ResultFailed), fmt.Errorf("header: %w", err)
	}
	text := w.deps.Renderer.Render(header, post)

	if w.cfg.DryRun {
		logger.Info("dry run, reply not sent", zap.String("comment", text))
		return w.finish(ResultDryRun), nil
	}

	result := ResultReplied
	var replyID string
	if len(text) > w.cfg.MaxCommentLength {
		result = ResultOverflow
		replyID, err = w.replyOverflow(ctx, logger, post, text)
	} else {
		replyID, err = w.deps.Feed.Reply(ctx, post.ID, text)
	}
	if err != nil {
		return w.finish(ResultFailed), fmt.Errorf("reply: %w", err)
	}
	logger.Info("replied", zap.String("reply_id", replyID), zap.String("result", string(result)))

	w.mu.Lock()
	w.unrecorded[post.ID] = replyID
	w.mu.Unlock()
	if err := w.record(ctx, logger, post.ID, replyID); err != nil {
		return w.finish(ResultFailed), err
	}
	return w.finish(result), nil
}

// record inserts the idempotency row and clears the pending entry once the
// store holds it.
func (w *Worker) record(ctx context.Context, logger *zap.Logger, postID, replyID string) error {
	err := w.deps.Store.Insert(ctx, postID, replyID)
	switch {
	case err == nil:
	case errors.Is(err, snapshot.ErrAlreadyRecorded):
		logger.Debug("post recorded concurrently", zap.String("reply_id", replyID))
	default:
		logger.Error("reply sent but not recorded", zap.String("reply_id", replyID), zap.Error(err))
		return fmt.Errorf("record reply: %w", err)
	}
	w.forget(postID)
	return nil
}

func (w *Worker) pending(postID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.unrecorded[postID]
	return id, ok
}

func (w *Worker) forget(postID string) {
	w.mu.Lock()
	delete(w.unrecorded, postID)
	w.mu.Unlock()
}

func (w *Worker) finish(r Result) Result {
	metrics.ObservePost(string(r))
	return r
}

// archive fills every link's outcomes. Links run in parallel and so do the
// backends of one link; outcomes land in registration order.
func (w *Worker) archive(ctx context.Context, post *snapshot.Post) error {
	var g errgroup.Group
	for i := range post.Links {
		link := &post.Links[i]
		backends := w.deps.Backends.For(*link)
		link.Outcomes = make([]snapshot.Outcome, len(backends))
		g.Go(func() error {
			if link.RedditLike && w.deps.Throttle != nil {
				if err := w.deps.Throttle.Wait(ctx, link.URL); err != nil {
					return fmt.Errorf("throttle %s: %w", link.URL, err)
				}
			}
			var inner errgroup.Group
			for j, backend := range backends {
				inner.Go(func() error {
					link.Outcomes[j] = backend.Submit(ctx, link.URL)
					w.logger.Debug("backend finished",
						zap.String("post_id", post.ID),
						zap.String("backend", backend.Name()),
						zap.String("url", link.URL),
						zap.String("outcome", link.Outcomes[j].Kind.String()))
					return nil
				})
			}
			return inner.Wait()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("archive links: %w", err)
	}
	return nil
}

// replyOverflow moves the listing to a separate submission and leaves a
// pointer on the original post. The pointer's id is returned.
func (w *Worker) replyOverflow(ctx context.Context, logger *zap.Logger, post snapshot.Post, text string) (string, error) {
	body := snapshot.TruncateBytes(text, w.cfg.MaxOverflowLength)
	sub, err := w.deps.Feed.Submit(ctx, w.cfg.OverflowSubreddit, snapshot.OverflowTitle(post.Permalink), body)
	if err != nil {
		return "", fmt.Errorf("submit overflow: %w", err)
	}
	logger.Info("overflow submission created",
		zap.String("submission_id", sub.ID),
		zap.Int("bytes", len(text)),
		zap.Bool("truncated", len(body) < len(text)))

	if _, err := w.deps.Feed.Reply(ctx, sub.ID, snapshot.OverflowBackReply(post.Permalink)); err != nil {
		logger.Warn("overflow back-reply failed", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	return w.deps.Feed.Reply(ctx, post.ID, w.deps.Renderer.OverflowPointer(sub.URL))
}
