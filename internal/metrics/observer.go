package metrics

import "time"

// PipelineObserver records pipeline events into the Prometheus metrics
// declared in metrics.go. It satisfies the observer interfaces of the
// extraction, fallback and janitor packages.
type PipelineObserver struct{}

// NewPipelineObserver creates a PipelineObserver.
func NewPipelineObserver() *PipelineObserver {
	return &PipelineObserver{}
}

// DecoderRun records one decoder invocation.
func (o *PipelineObserver) DecoderRun(strategy, outcome string, d time.Duration) {
	DecoderRunsTotal.WithLabelValues(strategy, outcome).Inc()
	DecoderRunDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// StrategyFinished records whether a strategy produced any result.
func (o *PipelineObserver) StrategyFinished(strategy string, accepted int) {
	outcome := "exhausted"
	if accepted > 0 {
		outcome = "accepted"
	}
	StrategyRunsTotal.WithLabelValues(strategy, outcome).Inc()
}

// PipelineStarted marks a request as in flight.
func (o *PipelineObserver) PipelineStarted() {
	PipelinesInFlight.Inc()
}

// PipelineFinished records the outcome of one request.
func (o *PipelineObserver) PipelineFinished(outcome string, d time.Duration) {
	PipelinesInFlight.Dec()
	PipelineRunsTotal.WithLabelValues(outcome).Inc()
	PipelineDuration.Observe(d.Seconds())
}

// FallbackProduced records one fallback producer run.
func (o *PipelineObserver) FallbackProduced(producer string, ok bool) {
	FallbackTotal.WithLabelValues(producer, okLabel(ok)).Inc()
}

// FileRemoved records one temp file deletion.
func (o *PipelineObserver) FileRemoved(ok bool) {
	TempFilesRemovedTotal.WithLabelValues(okLabel(ok)).Inc()
}

// JobFinished records a job reaching a terminal status.
func (o *PipelineObserver) JobFinished(status string) {
	JobsTotal.WithLabelValues(status).Inc()
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
