package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "stratforge"

// StartUpgradeSpan starts a span for a full upgrade run.
func StartUpgradeSpan(ctx context.Context, runID, strategyID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "upgrade",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("strategy.id", strategyID),
		),
	)
}

// StartStageSpan starts a span for one pillar stage within a run.
func StartStageSpan(ctx context.Context, runID, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stage",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("stage", stage),
		),
	)
}

// StartScoreSpan starts a span for a score recalculation.
func StartScoreSpan(ctx context.Context, strategyID, trigger string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "scores",
		trace.WithAttributes(
			attribute.String("strategy.id", strategyID),
			attribute.String("trigger", trigger),
		),
	)
}
