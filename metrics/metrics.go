// Package metrics holds the Prometheus collectors shared by vellum components.
//
// Every Record method is safe to call on a nil *Metrics, so components can
// take an optional *Metrics and never check for it.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vellum"

// Mismatch stages for RecordVersionMismatch.
const (
	StageInProcess = "in_process"
	StageMidAir    = "mid_air"
)

// Metrics contains the repository, WAL and index maintenance metrics.
type Metrics struct {
	Transactions      *prometheus.CounterVec
	WALActionFailures *prometheus.CounterVec
	VersionMismatches *prometheus.CounterVec
	DocumentEvents    *prometheus.CounterVec
	IndexOperations   *prometheus.CounterVec
	IndexFailures     *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
	Rebuilds          *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wal",
				Name:      "transactions_total",
				Help:      "Completed transactions by outcome",
			},
			[]string{"outcome"},
		),

		WALActionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wal",
				Name:      "action_failures_total",
				Help:      "Undo or commit actions that failed and need manual reconciliation",
			},
			[]string{"role", "op"},
		),

		VersionMismatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "documents",
				Name:      "version_mismatch_total",
				Help:      "Optimistic concurrency violations by detection stage",
			},
			[]string{"stage"},
		),

		DocumentEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "documents",
				Name:      "events_published_total",
				Help:      "Domain events published at commit",
			},
			[]string{"event"},
		),

		IndexOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "operations_total",
				Help:      "Index maintenance operations processed",
			},
			[]string{"op"},
		),

		IndexFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "failures_total",
				Help:      "Index maintenance operations that failed",
			},
			[]string{"op"},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "queue_depth",
				Help:      "Elements waiting in the index synchronization queue",
			},
		),

		Rebuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "rebuilds_total",
				Help:      "Blue/green index rebuilds by status",
			},
			[]string{"status"},
		),
	}

	if reg == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.Transactions,
		m.WALActionFailures,
		m.VersionMismatches,
		m.DocumentEvents,
		m.IndexOperations,
		m.IndexFailures,
		m.QueueDepth,
		m.Rebuilds,
	}
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return m, errors.Join(errs...)
}

// RecordTransaction counts a committed or rolled back transaction.
func (m *Metrics) RecordTransaction(committed bool) {
	if m == nil {
		return
	}
	outcome := "rolled_back"
	if committed {
		outcome = "committed"
	}
	m.Transactions.WithLabelValues(outcome).Inc()
}

// RecordActionFailure counts a WAL action that failed.
func (m *Metrics) RecordActionFailure(role, op string) {
	if m == nil {
		return
	}
	m.WALActionFailures.WithLabelValues(role, op).Inc()
}

// RecordVersionMismatch counts an optimistic concurrency violation.
func (m *Metrics) RecordVersionMismatch(stage string) {
	if m == nil {
		return
	}
	m.VersionMismatches.WithLabelValues(stage).Inc()
}

// RecordEvent counts a published domain event.
func (m *Metrics) RecordEvent(event string) {
	if m == nil {
		return
	}
	m.DocumentEvents.WithLabelValues(event).Inc()
}

// RecordIndexOperation counts an index operation and, when err is set, its failure.
func (m *Metrics) RecordIndexOperation(op string, err error) {
	if m == nil {
		return
	}
	m.IndexOperations.WithLabelValues(op).Inc()
	if err != nil {
		m.IndexFailures.WithLabelValues(op).Inc()
	}
}

// RecordQueueDepth sets the current queue depth.
func (m *Metrics) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordRebuild counts a finished rebuild.
func (m *Metrics) RecordRebuild(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.Rebuilds.WithLabelValues(status).Inc()
}
