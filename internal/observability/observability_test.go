package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{
		Level:   DebugLevel,
		Output:  &buf,
		Service: "test-service",
		Version: "1.0.0",
	})

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "test-service")
	assert.Contains(t, output, `"level":"info"`)
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: InfoLevel, Output: &buf})

	logger.WithField("run_id", "abc").InfoWithFields("run finished", map[string]interface{}{
		"records": 123,
		"report":  "feature_usage",
	})

	output := buf.String()
	assert.Contains(t, output, `"run_id":"abc"`)
	assert.Contains(t, output, `"records":123`)
	assert.Contains(t, output, "feature_usage")
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: WarnLevel, Output: &buf, Format: "console"})

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warnf("visible %s", "warning")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible warning")
	assert.Contains(t, buf.String(), "WARN")

	logger.SetLevel(DebugLevel)
	logger.Debug("now shown")
	assert.Contains(t, buf.String(), "now shown")
}

func TestLogLevelFromString(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, LogLevelFromString(in), in)
	}
}

func TestMetricsObserveRun(t *testing.T) {
	m := NewMetrics()
	m.ObserveRun("partner_api_usage", 100, map[string]int{"missing_event_date": 2, "missing_key:org_model.model_name": 3}, 4, 2*time.Second)
	m.ObserveWrite("partner_api_usage", "csv", 40)

	assert.Equal(t, float64(100), testutil.ToFloat64(m.Records.WithLabelValues("partner_api_usage")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Rejections.WithLabelValues("partner_api_usage", "missing_event_date")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.Fallbacks.WithLabelValues("partner_api_usage")))
	assert.Equal(t, float64(40), testutil.ToFloat64(m.RowsWritten.WithLabelValues("partner_api_usage", "csv")))
}

func TestMetricsWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveRun("feature_usage", 7, nil, 0, time.Second)

	path := filepath.Join(t.TempDir(), "flakereport.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `flakereport_records_total{report="feature_usage"} 7`), text)
	assert.Contains(t, text, "flakereport_run_duration_seconds_bucket")
}
