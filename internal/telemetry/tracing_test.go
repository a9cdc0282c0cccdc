package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitTracerProviderLogsSpans(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := context.Background()

	tp, err := InitTracerProvider(ctx, "snapshill-test", zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	_, span := Tracer().Start(ctx, "post.process")
	span.SetAttributes(attribute.String("post.id", "t3_abc"))
	span.End()

	entries := logs.FilterMessage("span finished").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "post.process", fields["span"])
	assert.Equal(t, "t3_abc", fields["post.id"])
	assert.Equal(t, "Unset", fields["status"])
}

func TestInitTracerProviderWithoutLogger(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, "snapshill-test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	_, span := Tracer().Start(ctx, "cycle")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}
