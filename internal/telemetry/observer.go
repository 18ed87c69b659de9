// Package telemetry records dispatch and session signals into OpenTelemetry.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mwiater/herald-mcp/internal/tools"
	"github.com/mwiater/herald-mcp/internal/transport"
)

// Observer records tool dispatches and session churn.
type Observer struct {
	tracer    trace.Tracer
	transport string

	invocations metric.Int64Counter
	latency     metric.Float64Histogram
	active      metric.Int64UpDownCounter
	lifetime    metric.Float64Histogram
}

// NewObserver creates an observer bound to the provided meter/tracer. A nil
// tracer disables spans.
func NewObserver(meter metric.Meter, tracer trace.Tracer, transportName string) (*Observer, error) {
	invocations, err := meter.Int64Counter(
		"herald.mcp.tool.invocations",
		metric.WithDescription("Number of tool dispatches"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"herald.mcp.tool.latency",
		metric.WithDescription("Tool dispatch latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter(
		"herald.mcp.sessions.active",
		metric.WithDescription("Number of open sessions"),
	)
	if err != nil {
		return nil, err
	}
	lifetime, err := meter.Float64Histogram(
		"herald.mcp.session.lifetime",
		metric.WithDescription("Session lifetime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:      tracer,
		transport:   transportName,
		invocations: invocations,
		latency:     latency,
		active:      active,
		lifetime:    lifetime,
	}, nil
}

// ObserveDispatch records one dispatch outcome.
func (o *Observer) ObserveDispatch(ctx context.Context, obs tools.DispatchObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", obs.Tool),
		attribute.String("outcome", obs.Outcome),
		attribute.String("transport", o.transport),
	}
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, obs.Duration.Seconds(), options)

	if o.tracer == nil {
		return
	}
	end := time.Now()
	spanAttrs := append(attrs, attribute.String("session_id", obs.SessionID))
	_, span := o.tracer.Start(ctx, "tool.dispatch",
		trace.WithTimestamp(end.Add(-obs.Duration)),
		trace.WithAttributes(spanAttrs...),
	)
	if obs.Outcome != tools.OutcomeOK {
		span.SetStatus(codes.Error, obs.Outcome)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

// SessionOpened counts a newly opened session.
func (o *Observer) SessionOpened(ctx context.Context, _ string) {
	if o == nil {
		return
	}
	o.active.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", o.transport)))
}

// SessionClosed counts a closed session and records how long it lived.
func (o *Observer) SessionClosed(ctx context.Context, _ string, lifetime time.Duration) {
	if o == nil {
		return
	}
	options := metric.WithAttributes(attribute.String("transport", o.transport))
	o.active.Add(ctx, -1, options)
	o.lifetime.Record(ctx, lifetime.Seconds(), options)
}

var (
	_ tools.Observer            = (*Observer)(nil)
	_ transport.SessionObserver = (*Observer)(nil)
)
