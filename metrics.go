package facevec

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors for a DB.
// A nil *metrics records nothing.
//
// Metrics:
//   - facevec_operations_total{op, result} - operations by outcome ("ok" or "error")
//   - facevec_operation_duration_seconds{op} - operation latency
//   - facevec_index_slots - slots in the published index snapshot
//   - facevec_index_rebuilds_total{result} - index rebuilds by outcome
type metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	indexSlots prometheus.Gauge
	rebuilds   *prometheus.CounterVec
}

// newMetrics registers the DB collectors on reg. Collectors already registered
// by an earlier DB on the same registerer are shared.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &metrics{}
	var err error

	if m.operations, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facevec_operations_total",
			Help: "Total number of facevec operations",
		},
		[]string{"op", "result"},
	)); err != nil {
		return nil, err
	}

	if m.duration, err = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facevec_operation_duration_seconds",
			Help:    "Duration of facevec operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		},
		[]string{"op"},
	)); err != nil {
		return nil, err
	}

	if m.indexSlots, err = register(reg, prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "facevec_index_slots",
			Help: "Number of slots in the published similarity index",
		},
	)); err != nil {
		return nil, err
	}

	if m.rebuilds, err = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facevec_index_rebuilds_total",
			Help: "Total number of similarity index rebuilds",
		},
		[]string{"result"},
	)); err != nil {
		return nil, err
	}

	return m, nil
}

// register adds c to reg, returning the existing collector when an identical one is already registered
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}

	var zero C
	return zero, fmt.Errorf("failed to register metrics: %w", err)
}

// observe records one operation that started at start.
// errp is read when observe runs, so it can be deferred with the address of a named result.
func (m *metrics) observe(op string, start time.Time, errp *error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(*errp)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metrics) recordRebuild(slots int, err error) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		m.indexSlots.Set(float64(slots))
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
