package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/snapshill/internal/clock/system"
	"github.com/JakeFAU/snapshill/internal/snapshot"
)

func newTestClient() *Client {
	return NewClient(ClientConfig{UserAgent: "snapshill-test", Timeout: 5 * time.Second})
}

func TestWaybackArchived(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := system.Fixed(time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("x", 3600)))
	w := NewWayback(WaybackConfig{
		SaveEndpoint: srv.URL + "/save/",
		ArchiveRoot:  "https://web.archive.org/",
	}, newTestClient(), clock, nil)

	out := w.Submit(context.Background(), "https://example.com/a")
	require.Equal(t, snapshot.OutcomeArchived, out.Kind)
	assert.Equal(t, "archive.org", out.Backend)
	assert.Equal(t, "https://web.archive.org/20240309130507/https://example.com/a", out.URL)
	assert.Equal(t, srv.URL+"/save/https://example.com/a", out.ErrorLink)
	assert.Contains(t, gotPath, "/save/")
}

func TestWaybackForbiddenIsNotApplicable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	w := NewWayback(WaybackConfig{SaveEndpoint: srv.URL + "/save/"}, newTestClient(), system.New(), nil)
	out := w.Submit(context.Background(), "https://example.com/a")
	assert.Equal(t, snapshot.OutcomeNotApplicable, out.Kind)
}

func TestWaybackServerErrorIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWayback(WaybackConfig{SaveEndpoint: srv.URL + "/save/"}, newTestClient(), system.New(), nil)
	out := w.Submit(context.Background(), "https://example.com/a")
	assert.Equal(t, snapshot.OutcomeFailed, out.Kind)
	assert.Equal(t, srv.URL+"/save/https://example.com/a", out.ErrorLink)
}

func TestArchiveTodayFindsLink(t *testing.T) {
	var form string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = r.PostForm.Get("url")
		_, _ = w.Write([]byte(`<html><a href="https://archive.ph/AbC12">snapshot</a></html>`))
	}))
	defer srv.Close()

	a := NewArchiveToday(ArchiveTodayConfig{SubmitEndpoint: srv.URL + "/submit/"}, newTestClient(), nil)
	out := a.Submit(context.Background(), "https://example.com/a b")
	require.Equal(t, snapshot.OutcomeArchived, out.Kind)
	assert.Equal(t, "https://archive.ph/AbC12", out.URL)
	assert.Equal(t, "https://example.com/a b", form)
	assert.Equal(t, "https://archive.today/?url=https%3A%2F%2Fexample.com%2Fa+b&run=1", out.ErrorLink)
}

func TestArchiveTodayAcceptsUntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<a href="https://archive.today/Zx9">snapshot</a>`))
	}))
	defer srv.Close()

	insecure := NewClient(ClientConfig{UserAgent: "snapshill-test", Timeout: 5 * time.Second, InsecureSkipVerify: true})
	out := NewArchiveToday(ArchiveTodayConfig{SubmitEndpoint: srv.URL + "/submit/"}, insecure, nil).
		Submit(context.Background(), "https://example.com/")
	require.Equal(t, snapshot.OutcomeArchived, out.Kind)
	assert.Equal(t, "https://archive.today/Zx9", out.URL)

	out = NewArchiveToday(ArchiveTodayConfig{SubmitEndpoint: srv.URL + "/submit/"}, newTestClient(), nil).
		Submit(context.Background(), "https://example.com/")
	assert.Equal(t, snapshot.OutcomeFailed, out.Kind)
}

func TestArchiveTodayNoLinkIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>try again later</html>`))
	}))
	defer srv.Close()

	a := NewArchiveToday(ArchiveTodayConfig{SubmitEndpoint: srv.URL}, newTestClient(), nil)
	out := a.Submit(context.Background(), "https://example.com/")
	assert.Equal(t, snapshot.OutcomeFailed, out.Kind)
}

func TestMegalodonDisabled(t *testing.T) {
	m := NewMegalodon(MegalodonConfig{}, nil, nil, nil)
	out := m.Submit(context.Background(), "https://example.com/")
	assert.Equal(t, snapshot.OutcomeNotApplicable, out.Kind)
	assert.Equal(t, "http://megalodon.jp/pc/get_simple/decide?url=https://example.com/", out.ErrorLink)
}

type countingThrottle struct{ calls int }

func (c *countingThrottle) Wait(context.Context, string) error {
	c.calls++
	return nil
}

func TestMegalodonRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/decide", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/snap/20240101", http.StatusFound)
	})
	mux.HandleFunc("/snap/20240101", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	throttle := &countingThrottle{}
	m := NewMegalodon(MegalodonConfig{Enabled: true, DecideEndpoint: srv.URL + "/decide"}, newTestClient(), throttle, nil)
	out := m.Submit(context.Background(), "https://example.com/")
	require.Equal(t, snapshot.OutcomeArchived, out.Kind)
	assert.Equal(t, srv.URL+"/snap/20240101", out.URL)
	assert.Equal(t, 1, throttle.calls)
}

func TestMegalodonNoRedirectIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMegalodon(MegalodonConfig{Enabled: true, DecideEndpoint: srv.URL + "/decide"}, newTestClient(), nil, nil)
	out := m.Submit(context.Background(), "https://example.com/")
	assert.Equal(t, snapshot.OutcomeFailed, out.Kind)
}

func TestMirrors(t *testing.T) {
	removeddit, err := NewMirror(MirrorRemoveddit)
	require.NoError(t, err)
	snew, err := NewMirror("SNEW")
	require.NoError(t, err)

	out := removeddit.Submit(context.Background(), "https://old.reddit.com/r/x/comments/abc/title/?a=1")
	assert.Equal(t, snapshot.OutcomeArchived, out.Kind)
	assert.Equal(t, "https://www.removeddit.com/r/x/comments/abc/title/?a=1", out.URL)
	assert.Equal(t, "https://www.removeddit.com/", out.ErrorLink)

	out = snew.Submit(context.Background(), "https://old.reddit.com/r/x/")
	assert.Equal(t, "snew.github.io", out.Backend)
	assert.Equal(t, "https://snew.github.io/r/x/", out.URL)

	_, err = NewMirror("ceddit")
	require.Error(t, err)
	_, err = NewCustomMirror("x", "not-a-url")
	require.Error(t, err)
}

type stubArchiver struct{ name string }

func (s stubArchiver) Name() string { return s.name }
func (s stubArchiver) Submit(context.Context, string) snapshot.Outcome {
	return snapshot.Archived(s.name, "https://snap/"+s.name, "")
}

func TestRegistryOrder(t *testing.T) {
	reg := NewRegistry(
		[]snapshot.Archiver{stubArchiver{"b1"}, stubArchiver{"b2"}},
		[]snapshot.Archiver{stubArchiver{"m1"}},
	)

	names := func(as []snapshot.Archiver) []string {
		out := make([]string, len(as))
		for i, a := range as {
			out[i] = a.Name()
		}
		return out
	}

	assert.Equal(t, []string{"b1", "b2"}, names(reg.For(snapshot.Link{URL: "https://example.com"})))
	assert.Equal(t, []string{"b1", "b2", "m1"}, names(reg.For(snapshot.Link{URL: "https://old.reddit.com/r/x", RedditLike: true})))
	assert.Equal(t, []string{"b1", "b2", "m1"}, reg.Names())

	out := reg.For(snapshot.Link{})[1].Submit(context.Background(), "u")
	assert.Equal(t, "b2", out.Backend)
}

func TestRegistryTracesSubmissions(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	reg := NewRegistry([]snapshot.Archiver{stubArchiver{"b1"}}, nil)
	reg.For(snapshot.Link{})[0].Submit(context.Background(), "https://example.com")

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "archive.submit", spans[0].Name())
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "b1", attrs["archive.backend"])
	assert.Equal(t, "archived", attrs["archive.outcome"])
}

func TestClientCanceledContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient().Get(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
