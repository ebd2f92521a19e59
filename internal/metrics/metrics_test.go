package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value reads the current value of a counter or gauge.
func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"HTTPRequestsInFlight", HTTPRequestsInFlight},
		{"DecoderRunsTotal", DecoderRunsTotal},
		{"DecoderRunDuration", DecoderRunDuration},
		{"StrategyRunsTotal", StrategyRunsTotal},
		{"FallbackTotal", FallbackTotal},
		{"PipelineRunsTotal", PipelineRunsTotal},
		{"PipelineDuration", PipelineDuration},
		{"PipelinesInFlight", PipelinesInFlight},
		{"TempFilesRemovedTotal", TempFilesRemovedTotal},
		{"JobsTotal", JobsTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestPipelineObserver(t *testing.T) {
	o := NewPipelineObserver()

	before := value(t, DecoderRunsTotal.WithLabelValues("positional", "timeout"))
	o.DecoderRun("positional", "timeout", 15*time.Second)
	assert.Equal(t, before+1, value(t, DecoderRunsTotal.WithLabelValues("positional", "timeout")))

	before = value(t, StrategyRunsTotal.WithLabelValues("embedded_cover", "exhausted"))
	o.StrategyFinished("embedded_cover", 0)
	assert.Equal(t, before+1, value(t, StrategyRunsTotal.WithLabelValues("embedded_cover", "exhausted")))

	inFlight := value(t, PipelinesInFlight)
	o.PipelineStarted()
	assert.Equal(t, inFlight+1, value(t, PipelinesInFlight))
	o.PipelineFinished("fallback", time.Second)
	assert.Equal(t, inFlight, value(t, PipelinesInFlight))

	before = value(t, FallbackTotal.WithLabelValues("placeholder", "ok"))
	o.FallbackProduced("placeholder", true)
	assert.Equal(t, before+1, value(t, FallbackTotal.WithLabelValues("placeholder", "ok")))

	before = value(t, TempFilesRemovedTotal.WithLabelValues("failed"))
	o.FileRemoved(false)
	assert.Equal(t, before+1, value(t, TempFilesRemovedTotal.WithLabelValues("failed")))

	before = value(t, JobsTotal.WithLabelValues("SELECTED"))
	o.JobFinished("SELECTED")
	assert.Equal(t, before+1, value(t, JobsTotal.WithLabelValues("SELECTED")))
}
