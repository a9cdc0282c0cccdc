package snapshot

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by WikiReader when the requested page does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRecorded is returned by Store.Insert when the post id is already present.
var ErrAlreadyRecorded = errors.New("post already recorded")

// Feed is the upstream aggregator API: a source of posts and a sink for replies.
type Feed interface {
	FetchNew(ctx context.Context, limit int) ([]FeedItem, error)
	Subreddits(ctx context.Context) ([]Subreddit, error)
	Unsubscribe(ctx context.Context, name string) error
	Reply(ctx context.Context, parentID string, text string) (string, error)
	Submit(ctx context.Context, destination string, title string, text string) (Submission, error)
}

// WikiReader loads raw wiki text for a page in a settings scope.
type WikiReader interface {
	WikiPage(ctx context.Context, scope string, page string) (string, error)
}

// Store records which posts already received a reply.
type Store interface {
	Contains(ctx context.Context, postID string) (bool, error)
	Insert(ctx context.Context, postID string, replyID string) error
}

// Archiver submits a URL to one archive service. Submit never returns an
// error: failures are folded into the Outcome.
type Archiver interface {
	Name() string
	Submit(ctx context.Context, url string) Outcome
}

// HeaderSource returns the header text to show for a scope.
type HeaderSource interface {
	Get(scope string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
