package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ceyewan/harvest/xerrors"
)

func TestConfigValidate(t *testing.T) {
	for name, cfg := range map[string]Config{
		"missing service": {},
		"sampler range":   {ServiceName: "x", Sampler: 2},
		"unknown batcher": {ServiceName: "x", Batcher: "eager"},
	} {
		c := cfg
		c.setDefaults()
		err := c.validate()
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput, name)
		assert.Equal(t, xerrors.CodeConfigInvalid, xerrors.GetCode(err), name)
	}

	c := Config{ServiceName: "harvest"}
	c.setDefaults()
	require.NoError(t, c.validate())
	assert.Equal(t, defaultEndpoint, c.Endpoint)
	assert.Equal(t, BatcherBatch, c.Batcher)
	assert.NoError(t, DefaultConfig("harvest").validate())
}

func TestInitDisabledInstallsLocalProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), &Config{ServiceName: "harvest-test", Version: "1.2.3", Environment: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, span := StartSpan(context.Background(), Tracer(nil), SpanRun)
	defer span.End()
	assert.True(t, span.SpanContext().IsValid(), "spans carry trace ids without an exporter")
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	_, err := Init(context.Background(), &Config{Enabled: true, ServiceName: "harvest", Sampler: -1})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestStartSpanAndMarkError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := StartClientSpan(context.Background(), tp.Tracer("test"), SpanFetchAttempt,
		attribute.String(AttrSource, "teams"))
	MarkSpanError(span, errors.New("503"))
	MarkSpanError(span, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, SpanFetchAttempt, ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String(AttrSource, "teams"))
}
