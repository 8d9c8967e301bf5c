package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go.aimuz.me/saathi/internal/types"
)

const tracerName = "go.aimuz.me/saathi/llm"

// tracedCompleter records one span per completion.
type tracedCompleter struct {
	next    Completer
	purpose string
	tracer  trace.Tracer
}

// Traced wraps c so every call is recorded as an "llm.complete" span tagged
// with purpose (chat, translate, detect, analyze). The global tracer provider
// is used, so this is a no-op until telemetry is configured.
func Traced(c Completer, purpose string) Completer {
	return &tracedCompleter{next: c, purpose: purpose, tracer: otel.Tracer(tracerName)}
}

func (t *tracedCompleter) Complete(ctx context.Context, messages []Message) (string, types.Usage, error) {
	ctx, span := t.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.purpose", t.purpose),
		attribute.Int("llm.messages", len(messages)),
	))
	defer span.End()

	text, usage, err := t.next.Complete(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return text, usage, err
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", usage.PromptTokens),
		attribute.Int("llm.completion_tokens", usage.CompletionTokens),
	)
	return text, usage, nil
}
