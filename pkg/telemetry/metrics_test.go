package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/engine/verify"
)

func TestMetrics_ScanSink(t *testing.T) {
	m := NewMetrics()

	m.ObserveScan(150*time.Millisecond, nil)
	m.ObserveScan(time.Second, errors.New("boom"))
	m.SetSPOFs(7, 2)
	m.CountChanges(3, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.spofs))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.highRiskSPOFs))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.changes.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changes.WithLabelValues("resolved")))
}

func TestMetrics_CollectionAndHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveCollection(verify.CollectionResult{
		Recorded: map[string]int{"kubernetes": 4},
		Failed:   map[string]string{"metrics": "timeout"},
	})
	m.ObserveRequest(http.MethodGet, "/api/v1/spofs", http.StatusOK, 5*time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.evidenceRecorded.WithLabelValues("kubernetes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evidenceFailures.WithLabelValues("metrics")))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `faultline_http_requests_total{method="GET",route="/api/v1/spofs",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}

func TestInit_NoEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := Init(context.Background(), config.TelemetryConfig{}, "test")
	require.NoError(t, err)
	_, span := otel.Tracer("faultline/test").Start(context.Background(), "probe")
	span.End()
	require.NoError(t, shutdown(context.Background()))
}

func TestInit_StdoutSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := initWith(context.Background(), config.TelemetryConfig{SampleRatio: 1, Stdout: true}, "test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("faultline/test").Start(context.Background(), "unit-span")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "unit-span")
}

func TestInit_SampleRatioZeroDropsRoots(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := initWith(context.Background(), config.TelemetryConfig{SampleRatio: 0, Stdout: true}, "test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("faultline/test").Start(context.Background(), "dropped")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
	require.NoError(t, shutdown(context.Background()))
	assert.NotContains(t, buf.String(), "dropped")
}
