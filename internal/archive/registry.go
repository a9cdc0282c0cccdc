package archive

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/snapshill/internal/metrics"
	"github.com/JakeFAU/snapshill/internal/snapshot"
	"github.com/JakeFAU/snapshill/internal/telemetry"
)

// Registry holds the backends in render order. General backends apply to
// every link; mirrors are appended for links on the feed site.
type Registry struct {
	general []snapshot.Archiver
	mirrors []snapshot.Archiver
}

// NewRegistry builds a Registry. Order is preserved.
func NewRegistry(general []snapshot.Archiver, mirrors []snapshot.Archiver) *Registry {
	return &Registry{
		general: wrap(general),
		mirrors: wrap(mirrors),
	}
}

// For returns the backends that apply to link, in render order.
func (r *Registry) For(link snapshot.Link) []snapshot.Archiver {
	out := make([]snapshot.Archiver, 0, len(r.general)+len(r.mirrors))
	out = append(out, r.general...)
	if link.RedditLike {
		out = append(out, r.mirrors...)
	}
	return out
}

// Names lists every registered backend, general first.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.general)+len(r.mirrors))
	for _, a := range r.general {
		names = append(names, a.Name())
	}
	for _, a := range r.mirrors {
		names = append(names, a.Name())
	}
	return names
}

func wrap(in []snapshot.Archiver) []snapshot.Archiver {
	out := make([]snapshot.Archiver, len(in))
	for i, a := range in {
		out[i] = observed{a}
	}
	return out
}

type observed struct {
	snapshot.Archiver
}

func (o observed) Submit(ctx context.Context, url string) snapshot.Outcome {
	ctx, span := telemetry.Tracer().Start(ctx, "archive.submit",
		trace.WithAttributes(attribute.String("archive.backend", o.Name())))
	defer span.End()

	out := o.Archiver.Submit(ctx, url)
	span.SetAttributes(attribute.String("archive.outcome", out.Kind.String()))
	metrics.ObserveArchive(out.Backend, out.Kind.String())
	return out
}
