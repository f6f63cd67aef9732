package eventbus

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each envelope into a span, adapted from the teacher's
// graph/emit.OTelEmitter (event-per-span) generalized to the envelope/
// payload shape.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter constructs an OTelEmitter from an OpenTelemetry tracer
// (e.g. otel.Tracer("visor-sub002")).
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(env Envelope) {
	_, span := o.tracer.Start(context.Background(), string(env.Kind))
	defer span.End()

	span.SetAttributes(
		attribute.String("run_id", env.RunID),
		attribute.String("workflow_id", env.WorkflowID),
		attribute.Int("wave", env.Wave),
	)
	if errored, ok := env.Payload.(CheckErrored); ok {
		span.SetStatus(codes.Error, errored.Error)
		span.SetAttributes(attribute.String("check_id", errored.CheckID))
	}
	span.SetAttributes(attribute.String("payload", fmt.Sprintf("%+v", env.Payload)))
}

func (o *OTelEmitter) EmitBatch(envs []Envelope) {
	for _, e := range envs {
		o.Emit(e)
	}
}

func (o *OTelEmitter) Flush() error { return nil }
