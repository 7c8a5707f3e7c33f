package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSampler(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	params := sdktrace.SamplingParameters{ParentContext: context.Background(), TraceID: traceID, Name: "op"}

	for _, tc := range []struct {
		ratio float64
		want  sdktrace.SamplingDecision
	}{
		{ratio: 0, want: sdktrace.Drop},
		{ratio: -1, want: sdktrace.Drop},
		{ratio: 1, want: sdktrace.RecordAndSample},
		{ratio: 2, want: sdktrace.RecordAndSample},
	} {
		assert.Equal(t, tc.want, sampler(tc.ratio).ShouldSample(params).Decision, "ratio %v", tc.ratio)
	}

	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestGetTraceIDFromContext(t *testing.T) {
	assert.Empty(t, GetTraceIDFromContext(context.Background()))

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID,
	}))
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", GetTraceIDFromContext(ctx))
}
