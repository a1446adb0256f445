package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/noah-isme/uat-crowdtest-api/pkg/config"
)

func TestInitNoneIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{Exporter: "none"}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := StartSpan(context.Background(), "noop")
	assert.NotNil(t, ctx)
	End(span, errors.New("boom"))
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), config.TracingConfig{Exporter: "zipkin"}, "test")
	assert.Error(t, err)
}

func TestOTLPOptionsRejectsBadEndpoint(t *testing.T) {
	_, err := otlpOptions("::not a url")
	assert.Error(t, err)

	opts, err := otlpOptions("https://collector.example.com/v1/traces")
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestSamplerBounds(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
	var _ sdktrace.Sampler = sampler(0.5)
}
