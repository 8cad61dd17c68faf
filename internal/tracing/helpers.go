// Package tracing provides OpenTelemetry distributed tracing setup and utilities.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StoreOperation represents the type of document store operation being traced.
type StoreOperation string

const (
	// StoreOperationQuery represents a read (find, get, full collection read).
	StoreOperationQuery StoreOperation = "query"
	// StoreOperationInsert represents appending a new document.
	StoreOperationInsert StoreOperation = "insert"
	// StoreOperationUpdate represents merging fields into an existing document.
	StoreOperationUpdate StoreOperation = "update"
	// StoreOperationWatch represents opening a change subscription.
	StoreOperationWatch StoreOperation = "watch"
)

// StoreSystem is the value reported in the db.system attribute.
const StoreSystem = "mongodb"

// StartStoreSpan creates a new client span for a document store operation.
// Returns the new context and a function to end the span.
//
//	ctx, endSpan := tracing.StartStoreSpan(ctx, "broadcasts", tracing.StoreOperationQuery)
//	defer func() { endSpan(err) }()
func StartStoreSpan(ctx context.Context, collection string, operation StoreOperation) (context.Context, func(error)) {
	tracer := otel.Tracer("melora/docstore")

	spanName := string(operation)
	if collection != "" {
		spanName = spanName + " " + collection
	}

	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", StoreSystem),
			attribute.String("db.operation", string(operation)),
		),
	)

	if collection != "" {
		span.SetAttributes(attribute.String("db.mongodb.collection", collection))
	}

	return ctx, endFunc(span)
}

// StartSpan creates a new span for a general operation.
// Returns the new context and a function to end the span.
//
//	ctx, endSpan := tracing.StartSpan(ctx, "interaction.send_like")
//	defer func() { endSpan(err) }()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	tracer := otel.Tracer("melora")

	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	return ctx, endFunc(span)
}

func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
