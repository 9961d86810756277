// Package otel provides span helpers shared by the catalog client and the sync manager.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys attached to sync and catalog spans.
const (
	AttrPassID        = attribute.Key("sync.pass_id")
	AttrStage         = attribute.Key("sync.stage")
	AttrDryRun        = attribute.Key("sync.dry_run")
	AttrBlueprint     = attribute.Key("catalog.blueprint")
	AttrEntityID      = attribute.Key("catalog.entity_id")
	AttrResultCount   = attribute.Key("result.count")
	AttrEOLCount      = attribute.Key("eol.count")
	AttrUpdatedCount  = attribute.Key("sync.updated_count")
	AttrFailedCount   = attribute.Key("sync.failed_count")
	AttrFailurePolicy = attribute.Key("sync.failure_policy")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns the
// span already in ctx (a no-op span when there is none).
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span failed.
// The status description stays generic so catalog credentials or response
// bodies never end up in the status; the event keeps the full error.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	RecordError(span, err)
	span.End()
}
