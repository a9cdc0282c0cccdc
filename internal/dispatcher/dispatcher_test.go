package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/snapshill/internal/snapshot"
	"github.com/JakeFAU/snapshill/internal/worker"
)

type fakeSource struct {
	mu     sync.Mutex
	items  []snapshot.FeedItem
	err    error
	calls  int
	limits []int
}

func (f *fakeSource) FetchNew(_ context.Context, limit int) ([]snapshot.FeedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	return f.items, f.err
}

type fakeProcessor struct {
	mu       sync.Mutex
	started  []string
	panicOn  string
	failOn   string
	inflight int
	maxSeen  int
	delay    time.Duration
}

func (f *fakeProcessor) Process(_ context.Context, item snapshot.FeedItem) (worker.Result, error) {
	f.mu.Lock()
	f.started = append(f.started, item.ID)
	f.inflight++
	if f.inflight > f.maxSeen {
		f.maxSeen = f.inflight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	switch item.ID {
	case f.panicOn:
		panic("boom")
	case f.failOn:
		return worker.ResultFailed, errors.New("reply failed")
	}
	return worker.ResultReplied, nil
}

func (f *fakeProcessor) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func items(ids ...string) []snapshot.FeedItem {
	out := make([]snapshot.FeedItem, len(ids))
	for i, id := range ids {
		out[i] = snapshot.FeedItem{ID: id}
	}
	return out
}

func TestRunCycleRequiresStart(t *testing.T) {
	t.Parallel()
	d := New(&fakeSource{}, &fakeProcessor{}, &fakeRefresher{}, Config{}, nil)
	require.Error(t, d.RunCycle(context.Background()))
}

func TestRunCycleProcessesInFeedOrder(t *testing.T) {
	t.Parallel()
	src := &fakeSource{items: items("a", "b", "c")}
	proc := &fakeProcessor{}
	d := New(src, proc, &fakeRefresher{}, Config{Limit: 3, PostConcurrency: 1}, nil)
	require.NoError(t, d.Start(context.Background()))

	require.NoError(t, d.RunCycle(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, proc.ids())
	assert.Equal(t, []int{3}, src.limits)
	assert.Equal(t, int64(1), d.Cycles())
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	t.Parallel()
	src := &fakeSource{items: items("a", "panics", "fails", "d")}
	proc := &fakeProcessor{panicOn: "panics", failOn: "fails"}
	d := New(src, proc, &fakeRefresher{}, Config{PostConcurrency: 2}, nil)
	require.NoError(t, d.Start(context.Background()))

	require.NoError(t, d.RunCycle(context.Background()))
	assert.ElementsMatch(t, []string{"a", "panics", "fails", "d"}, proc.ids())
}

func TestRunCycleBoundsConcurrency(t *testing.T) {
	t.Parallel()
	src := &fakeSource{items: items("1", "2", "3", "4", "5", "6", "7", "8")}
	proc := &fakeProcessor{delay: 20 * time.Millisecond}
	d := New(src, proc, &fakeRefresher{}, Config{PostConcurrency: 3}, nil)
	require.NoError(t, d.Start(context.Background()))

	require.NoError(t, d.RunCycle(context.Background()))
	assert.LessOrEqual(t, proc.maxSeen, 3)
	assert.Len(t, proc.ids(), 8)
}

func TestRunCycleFetchError(t *testing.T) {
	t.Parallel()
	src := &fakeSource{err: errors.New("503")}
	d := New(src, &fakeProcessor{}, &fakeRefresher{}, Config{}, nil)
	require.NoError(t, d.Start(context.Background()))

	require.Error(t, d.RunCycle(context.Background()))
	assert.Zero(t, d.Cycles())
}

func TestRunFailsWhenHeadersNeverLoad(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	d := New(src, &fakeProcessor{}, &fakeRefresher{err: errors.New("wiki down")}, Config{}, nil)

	require.Error(t, d.Run(context.Background()))
	assert.False(t, d.Ready())
	assert.Zero(t, src.calls)
}

func TestRunRefreshesHeadersEveryNCycles(t *testing.T) {
	t.Parallel()
	src := &fakeSource{items: items("a")}
	headers := &fakeRefresher{}
	d := New(src, &fakeProcessor{}, headers, Config{Wait: time.Millisecond, RefreshCycles: 2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Cycles() >= 6 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// One initial load plus one per two cycles.
	cycles := int(d.Cycles())
	assert.GreaterOrEqual(t, headers.count(), 1+cycles/2-1)
	assert.LessOrEqual(t, headers.count(), 1+cycles/2+1)
	assert.True(t, d.Ready())
}
