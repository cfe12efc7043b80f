// Package metrics defines the Prometheus instrumentation of sampling campaigns.
//
// Collectors are registered on a caller-supplied Registerer so that
// independent harness instances (and tests) never share global state.
// All methods are safe on a nil *Sampling, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace  = "ammeter"
	samplingSubsystem = "sampling"
)

// Failure reasons used as the reason label of CampaignFailuresTotal.
const (
	ReasonExhaustedRetries = "exhausted_retries"
	ReasonProtocol         = "protocol"
	ReasonCancelled        = "cancelled"
	ReasonOther            = "other"
)

// Sampling holds the collectors updated by the sampling engine.
type Sampling struct {
	// SamplesTotal counts readings delivered to the consumer.
	// Labels: device
	SamplesTotal *prometheus.CounterVec

	// RetriesTotal counts failed attempts that were followed by a retry decision.
	// Labels: device
	RetriesTotal *prometheus.CounterVec

	// CampaignFailuresTotal counts aborted campaigns.
	// Labels: device, reason
	CampaignFailuresTotal *prometheus.CounterVec

	// CampaignDurationSeconds measures wall time of completed campaigns.
	// Labels: device
	CampaignDurationSeconds *prometheus.HistogramVec

	// RequestDurationSeconds measures single request/response exchanges.
	// Labels: device
	RequestDurationSeconds *prometheus.HistogramVec
}

// NewSampling creates the sampling collectors and registers them on reg.
func NewSampling(reg prometheus.Registerer) *Sampling {
	factory := promauto.With(reg)

	return &Sampling{
		SamplesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: samplingSubsystem,
			Name:      "samples_total",
			Help:      "Readings collected from ammeters.",
		}, []string{"device"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: samplingSubsystem,
			Name:      "retries_total",
			Help:      "Connection failures that triggered a retry decision.",
		}, []string{"device"}),
		CampaignFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: samplingSubsystem,
			Name:      "campaign_failures_total",
			Help:      "Sampling campaigns aborted before completion.",
		}, []string{"device", "reason"}),
		CampaignDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: samplingSubsystem,
			Name:      "campaign_duration_seconds",
			Help:      "Wall time of completed sampling campaigns.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"device"}),
		RequestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: samplingSubsystem,
			Name:      "request_duration_seconds",
			Help:      "Duration of single ammeter request/response exchanges.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"device"}),
	}
}

func (m *Sampling) ObserveSample(device string) {
	if m == nil {
		return
	}
	m.SamplesTotal.WithLabelValues(device).Inc()
}

func (m *Sampling) ObserveRetry(device string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(device).Inc()
}

func (m *Sampling) ObserveRequest(device string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDurationSeconds.WithLabelValues(device).Observe(d.Seconds())
}

func (m *Sampling) ObserveCampaign(device string, d time.Duration) {
	if m == nil {
		return
	}
	m.CampaignDurationSeconds.WithLabelValues(device).Observe(d.Seconds())
}

func (m *Sampling) ObserveFailure(device, reason string) {
	if m == nil {
		return
	}
	m.CampaignFailuresTotal.WithLabelValues(device, reason).Inc()
}
