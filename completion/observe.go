package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"mealchat"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Bounded applies a per-call timeout to next. A call cut off by the timeout is
// reported as ErrServiceUnavailable.
func Bounded(next Service, timeout time.Duration) Service {
	if timeout <= 0 {
		return next
	}
	return ServiceFunc(func(ctx context.Context, req Request) (Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := next.Complete(callCtx, req)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrServiceUnavailable) {
			err = fmt.Errorf("%w: no answer within %s: %v", ErrServiceUnavailable, timeout, err)
		}
		return resp, err
	})
}

// Kind classifies err for logs, metrics and HTTP mapping.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "other"
	}
}

// Observed wraps a Service with a span, metrics and a turn log entry per call.
type Observed struct {
	next     Service
	logger   mealchat.TurnLogger
	tracer   trace.Tracer
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	turn     atomic.Int64
}

func NewObserved(next Service, logger mealchat.TurnLogger, tracer trace.Tracer, meter metric.Meter) *Observed {
	calls, _ := meter.Int64Counter("completion_calls_total",
		metric.WithDescription("Total number of completion calls"))
	failures, _ := meter.Int64Counter("completion_failures_total",
		metric.WithDescription("Total number of completion calls that failed"))
	latency, _ := meter.Float64Histogram("completion_latency_seconds",
		metric.WithDescription("Time taken by a completion call in seconds"))

	if logger == nil {
		logger = mealchat.NewNoOpTurnLogger()
	}

	return &Observed{
		next:     next,
		logger:   logger,
		tracer:   tracer,
		calls:    calls,
		failures: failures,
		latency:  latency,
	}
}

func (o *Observed) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, span := o.tracer.Start(ctx, "completion."+req.Name, trace.WithAttributes(
		attribute.String("completion.name", req.Name),
		attribute.Int("completion.messages", len(req.Messages)),
	))
	defer span.End()

	start := time.Now()
	resp, err := o.next.Complete(ctx, req)
	elapsed := time.Since(start)

	op := metric.WithAttributes(attribute.String("operation", req.Name))
	o.calls.Add(ctx, 1, op)
	o.latency.Record(ctx, elapsed.Seconds(), op)

	entry := mealchat.TurnLog{
		Turn:      o.turn.Add(1),
		Timestamp: start,
		Operation: req.Name,
		Input:     lastUserContent(req.Messages),
		LatencyMS: elapsed.Milliseconds(),
	}

	if err != nil {
		kind := Kind(err)
		o.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", req.Name),
			attribute.String("kind", kind),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.Error = err.Error()
		slog.Warn("COMPLETION: Call failed", "operation", req.Name, "kind", kind, "error", err, "latency_ms", entry.LatencyMS)
	} else {
		span.AddEvent("completion.response", trace.WithAttributes(
			attribute.Int("content_length", len(resp.Content)),
			attribute.Int("input_tokens", resp.InputTokens),
			attribute.Int("output_tokens", resp.OutputTokens),
		))
		entry.Output = resp.Content
		slog.Info("COMPLETION: Call succeeded", "operation", req.Name, "content_len", len(resp.Content), "latency_ms", entry.LatencyMS)
	}

	if lerr := o.logger.LogTurn(entry); lerr != nil {
		slog.Error("COMPLETION: Failed to log turn", "error", lerr)
	}

	return resp, err
}

func lastUserContent(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
