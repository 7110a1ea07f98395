// Package metrics tracks per-run counters and gauges with Prometheus collectors.
//
// A run is a short-lived process, so nothing is served over HTTP. When a
// textfile path is configured the registry is written in Prometheus text
// format for the node exporter's textfile collector to pick up.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notice_watch"

// Delivery attempt results.
const (
	AttemptSent      = "sent"
	AttemptAuth      = "auth_failed"
	AttemptTransport = "transport_failed"
)

// Metrics holds the collectors for a single run.
type Metrics struct {
	registry *prometheus.Registry

	PagesFetched     prometheus.Counter
	NoticesParsed    prometheus.Gauge
	NewNotices       prometheus.Gauge
	SeenIDs          prometheus.Gauge
	DeliveryAttempts *prometheus.CounterVec
	RunDuration      prometheus.Gauge
	LastRunSuccess   prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "List pages fetched during the run.",
		}),
		NoticesParsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notices_parsed",
			Help:      "Unique notices extracted across all fetched pages.",
		}),
		NewNotices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "new_notices",
			Help:      "Notices not present in the seen set.",
		}),
		SeenIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seen_ids",
			Help:      "Length of the persisted seen-id list after the run.",
		}),
		DeliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "SMTP delivery attempts, labeled by result.",
		}, []string{"result"}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the run.",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the run finished without a fatal error, 0 otherwise.",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished.",
		}),
	}

	m.registry.MustRegister(
		m.PagesFetched,
		m.NoticesParsed,
		m.NewNotices,
		m.SeenIDs,
		m.DeliveryAttempts,
		m.RunDuration,
		m.LastRunSuccess,
		m.LastRunTimestamp,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAttempt counts one delivery attempt by result.
func (m *Metrics) ObserveAttempt(result string) {
	m.DeliveryAttempts.WithLabelValues(result).Inc()
}

// Finish records the run outcome and duration.
func (m *Metrics) Finish(started, finished time.Time, err error) {
	m.RunDuration.Set(finished.Sub(started).Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
	if err != nil {
		m.LastRunSuccess.Set(0)
	} else {
		m.LastRunSuccess.Set(1)
	}
}

// WriteTextfile writes all metrics to path atomically in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
