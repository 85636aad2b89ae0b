package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-message-archive/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "message_archive"

// Router record results.
const (
	RecordForwarded     = "forwarded"
	RecordPassedThrough = "passed_through"
	RecordFailed        = "failed"
)

// Archiver event outcomes.
const (
	EventArchived = "archived"
	EventEmpty    = "empty"
	EventSkipped  = "skipped"
	EventFailed   = "failed"
)

// RouterMetrics counts router records by result. A nil *RouterMetrics records nothing.
type RouterMetrics struct {
	records       *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// NewRouterMetrics creates the router metrics and registers them with reg.
func NewRouterMetrics(reg prometheus.Registerer) (*RouterMetrics, error) {
	m := &RouterMetrics{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "router_records_total",
				Help:      "Total number of stream records handled by the router, by result",
			},
			[]string{"result"},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "router_batch_duration_seconds",
				Help:      "Duration of routing one batch of stream records",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	if err := register(reg, m.records, m.batchDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RouterMetrics) Forwarded()     { m.inc(RecordForwarded) }
func (m *RouterMetrics) PassedThrough() { m.inc(RecordPassedThrough) }
func (m *RouterMetrics) Failed()        { m.inc(RecordFailed) }

// ObserveBatch records how long one batch took.
func (m *RouterMetrics) ObserveBatch(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(elapsed.Seconds())
}

func (m *RouterMetrics) inc(result string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(result).Inc()
}

// ArchiverMetrics counts archiver events by outcome. A nil *ArchiverMetrics records nothing.
type ArchiverMetrics struct {
	events             *prometheus.CounterVec
	archivedBytes      prometheus.Counter
	processingDuration prometheus.Histogram
}

// NewArchiverMetrics creates the archiver metrics and registers them with reg.
func NewArchiverMetrics(reg prometheus.Registerer) (*ArchiverMetrics, error) {
	m := &ArchiverMetrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "archiver_events_total",
				Help:      "Total number of queued events handled by the archiver, by outcome",
			},
			[]string{"outcome"},
		),
		archivedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "archiver_archived_bytes_total",
				Help:      "Total size of stored archive envelopes",
			},
		),
		processingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "archiver_processing_duration_seconds",
				Help:      "Duration of handling one queued event",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	if err := register(reg, m.events, m.archivedBytes, m.processingDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// Archived records a stored envelope of the given size.
func (m *ArchiverMetrics) Archived(bytes int) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(EventArchived).Inc()
	m.archivedBytes.Add(float64(bytes))
}

// Empty records an event that resolved to no content.
func (m *ArchiverMetrics) Empty() {
	if m == nil {
		return
	}
	m.events.WithLabelValues(EventEmpty).Inc()
}

// ObserveOutcome is a messagepipeline.OutcomeObserver. Successful outcomes are
// counted by Archived and Empty, so only skips and failures are counted here.
func (m *ArchiverMetrics) ObserveOutcome(outcome messagepipeline.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processingDuration.Observe(elapsed.Seconds())
	switch outcome {
	case messagepipeline.OutcomeSkipped:
		m.events.WithLabelValues(EventSkipped).Inc()
	case messagepipeline.OutcomeTransformFailed, messagepipeline.OutcomeProcessFailed:
		m.events.WithLabelValues(EventFailed).Inc()
	case messagepipeline.OutcomeProcessed:
	}
}

func register(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	if reg == nil {
		return errors.New("prometheus registerer cannot be nil")
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register metric: %w", err)
		}
	}
	return nil
}
