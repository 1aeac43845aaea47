package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll outcomes, used both as metric labels and in the poll_runs table.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeTransport = "transport_error"
	OutcomeSink      = "sink_error"
)

type PollMetrics struct {
	polls       *prometheus.CounterVec
	duration    prometheus.Histogram
	rxBytes     prometheus.Gauge
	txBytes     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewPollMetrics registers the poll collectors on reg. A nil reg uses the
// default registerer.
func NewPollMetrics(reg prometheus.Registerer) *PollMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PollMetrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ifstat_polls_total",
			Help: "Router polls by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ifstat_poll_duration_seconds",
			Help:    "Time spent on one fetch and store cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		rxBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ifstat_last_rx_bytes",
			Help: "Receive counter from the last stored sample.",
		}),
		txBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ifstat_last_tx_bytes",
			Help: "Transmit counter from the last stored sample.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ifstat_last_success_timestamp_seconds",
			Help: "Unix time of the last stored sample.",
		}),
	}
	reg.MustRegister(m.polls, m.duration, m.rxBytes, m.txBytes, m.lastSuccess)
	return m
}

func (m *PollMetrics) ObservePoll(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *PollMetrics) ObserveSample(s Sample) {
	if m == nil {
		return
	}
	if s.RxBytes != nil {
		m.rxBytes.Set(float64(*s.RxBytes))
	}
	if s.TxBytes != nil {
		m.txBytes.Set(float64(*s.TxBytes))
	}
	m.lastSuccess.Set(float64(s.Timestamp.Unix()))
}
