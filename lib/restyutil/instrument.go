package restyutil

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentOutput receives the full text of every http exchange.
type InstrumentOutput interface {
	Write(id string, contents string)
}

type contextKey int

const (
	messageIdKey contextKey = iota
	spanKey
)

// requestSpan returns the span started by onBeforeRequest, a hook that runs
// before it and fails leaves none.
func requestSpan(ctx context.Context) (trace.Span, bool) {
	span, ok := ctx.Value(spanKey).(trace.Span)
	return span, ok
}

// Instrumentation can be attached to several clients so that forked clients
// keep writing unique message ids into the same output.
type Instrumentation struct {
	tracer    trace.Tracer
	output    InstrumentOutput
	idcounter *atomic.Uint64
}

// NewInstrumentation creates an Instrumentation.
// `tracer` can be nil, it will default to a tracer named "resty".
// `output` can be nil, in which case exchanges are only traced and logged.
func NewInstrumentation(tracer trace.Tracer, output InstrumentOutput) *Instrumentation {
	if tracer == nil {
		tracer = otel.Tracer("resty")
	}
	return &Instrumentation{
		tracer:    tracer,
		output:    output,
		idcounter: &atomic.Uint64{},
	}
}

func (i *Instrumentation) Attach(client *resty.Client) {
	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

// InstrumentClient is shorthand for NewInstrumentation(...).Attach(client).
func InstrumentClient(client *resty.Client, tracer trace.Tracer, output InstrumentOutput) {
	NewInstrumentation(tracer, output).Attach(client)
}

func (i *Instrumentation) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	ctx, span := i.tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method))

	messageId := strconv.FormatUint(i.idcounter.Add(1), 10)
	ctx = context.WithValue(ctx, messageIdKey, messageId)
	ctx = context.WithValue(ctx, spanKey, span)
	slog.DebugContext(
		ctx, "start request",
		"method", req.Method,
		"url", req.URL,
		"message_id", messageId,
	)

	req.SetContext(ctx)
	return nil
}

func (i *Instrumentation) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	if span, ok := requestSpan(ctx); ok {
		defer span.End()

		// request attributes are set here since RawRequest is nil in onBeforeRequest
		if res.Request.RawRequest != nil {
			span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
		}
		if res.RawResponse != nil {
			span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
		}
	}

	messageId, _ := ctx.Value(messageIdKey).(string)
	if i.output != nil {
		i.output.Write(messageId, formatHttpMessage(res))
	}
	slog.DebugContext(
		ctx, "request finished",
		"method", res.Request.Method,
		"url", res.Request.URL,
		"status", res.StatusCode(),
		"duration", res.Time(),
		"message_id", messageId,
	)
	return nil
}

func (i *Instrumentation) onError(req *resty.Request, err error) {
	ctx := req.Context()
	if span, ok := requestSpan(ctx); ok {
		defer span.End()

		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		if req.RawRequest != nil {
			span.SetAttributes(httpconv.ClientRequest(req.RawRequest)...)
		}
	}

	messageId, _ := ctx.Value(messageIdKey).(string)
	slog.WarnContext(
		ctx, "request failed",
		"method", req.Method,
		"url", req.URL,
		"err", err,
		"message_id", messageId,
	)
}
