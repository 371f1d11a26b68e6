package speech

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/quoteplay/speech"

type instruments struct {
	tracer        trace.Tracer
	invocations   metric.Int64Counter
	modelAttempts metric.Int64Counter
	polls         metric.Int64Counter
	playback      metric.Int64Counter
}

// newInstruments binds to the global providers, which are no-ops unless
// telemetry was set up.
func newInstruments() (*instruments, error) {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}
	var err error
	if in.invocations, err = meter.Int64Counter("quoteplay.invocations",
		metric.WithDescription("Quote invocations by outcome")); err != nil {
		return nil, err
	}
	if in.modelAttempts, err = meter.Int64Counter("quoteplay.model_attempts",
		metric.WithDescription("Voice model attempts by model and result")); err != nil {
		return nil, err
	}
	if in.polls, err = meter.Int64Counter("quoteplay.polls",
		metric.WithDescription("Job status polls by reported status")); err != nil {
		return nil, err
	}
	if in.playback, err = meter.Int64Counter("quoteplay.playback",
		metric.WithDescription("Playback results by backend")); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *instruments) invocation(ctx context.Context, mode, outcome string) {
	in.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome)))
}

func (in *instruments) modelAttempt(ctx context.Context, model, result string) {
	in.modelAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("result", result)))
}

func (in *instruments) poll(ctx context.Context, status string) {
	in.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (in *instruments) played(ctx context.Context, backend string, ok bool) {
	if backend == "" {
		backend = "none"
	}
	in.playback.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.Bool("ok", ok)))
}
