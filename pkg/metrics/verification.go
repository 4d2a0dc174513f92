package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SlipVerificationMetrics records outcomes of the slip verification pipeline.
type SlipVerificationMetrics struct {
	verdicts *prometheus.CounterVec
	failures prometheus.Counter
	duration prometheus.Histogram
}

// NewSlipVerificationMetrics registers the verification metrics on the
// provided registerer.
func NewSlipVerificationMetrics(reg prometheus.Registerer) *SlipVerificationMetrics {
	if reg == nil {
		return &SlipVerificationMetrics{}
	}
	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slip_verification_verdicts",
		Help: "Slip verification verdicts by reason code.",
	}, []string{"reason"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slip_verification_failures",
		Help: "Slip verifications that ended in a hard error instead of a verdict.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "slip_verification_duration_seconds",
		Help:    "End-to-end duration of the slip verification pipeline.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(verdicts, failures, duration)
	return &SlipVerificationMetrics{
		verdicts: verdicts,
		failures: failures,
		duration: duration,
	}
}

// ObserveVerdict counts a completed verification by its reason code.
func (s *SlipVerificationMetrics) ObserveVerdict(reason string) {
	if s == nil || s.verdicts == nil {
		return
	}
	s.verdicts.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncFailure counts a verification that failed before producing a verdict.
func (s *SlipVerificationMetrics) IncFailure() {
	if s == nil || s.failures == nil {
		return
	}
	s.failures.Inc()
}

// ObserveDuration records the pipeline duration.
func (s *SlipVerificationMetrics) ObserveDuration(duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.Observe(duration.Seconds())
}
