package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mktsummary/internal/config"
)

func newTestProviders(t *testing.T) *OTelProviders {
	t.Helper()
	cfg := OTelConfigFromTelemetry(config.TelemetryConfig{Enabled: true, MetricsEnabled: true})
	providers, err := InitializeOTel(cfg, NewLogger(io.Discard, "error"))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(ctx)
	})
	return providers
}

func TestOTelInitialization(t *testing.T) {
	providers := newTestProviders(t)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)
}

func TestOTelDisabled(t *testing.T) {
	cfg := OTelConfigFromTelemetry(config.TelemetryConfig{Enabled: false})
	providers, err := InitializeOTel(cfg, NewLogger(io.Discard, "error"))
	require.NoError(t, err)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.PrometheusHTTP)
	// no-op instruments still work
	metrics, err := CreatePipelineMetrics(providers.Meter)
	require.NoError(t, err)
	metrics.RecordDate(context.Background(), "success")
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestTraceCorrelation(t *testing.T) {
	providers := newTestProviders(t)

	ctx, span := providers.Tracer.Start(context.Background(), "batch")
	defer span.End()

	traceID := TraceIDFromContext(ctx)
	assert.NotEmpty(t, traceID)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)

	var buf bytes.Buffer
	NewLogger(&buf, "info").InfoContext(ctx, "inside span")
	assert.Contains(t, buf.String(), `"trace_id":"`+traceID+`"`)

	AddSpanEvent(ctx, "date.skipped")
	RecordError(ctx, errors.New("boom"))
}

func TestPipelineMetricsExposed(t *testing.T) {
	providers := newTestProviders(t)
	metrics, err := CreatePipelineMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.BatchStarted(ctx)
	metrics.RecordDate(ctx, "success")
	metrics.RecordDate(ctx, "skipped")
	metrics.RecordFetchBytes(ctx, 2048)
	metrics.RecordStep(ctx, "fetch", 150*time.Millisecond)
	metrics.BatchFinished(ctx)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.Bytes()
	assert.True(t, bytes.Contains(body, []byte("mkt_batches_total")))
	assert.True(t, bytes.Contains(body, []byte("mkt_dates_total")))
	assert.True(t, bytes.Contains(body, []byte(`status="skipped"`)))
	assert.True(t, bytes.Contains(body, []byte("mkt_step_duration_seconds")))
}

func TestNilPipelineMetrics(t *testing.T) {
	var metrics *PipelineMetrics
	assert.NotPanics(t, func() {
		metrics.BatchStarted(context.Background())
		metrics.RecordStep(context.Background(), "write", time.Second)
	})
}
