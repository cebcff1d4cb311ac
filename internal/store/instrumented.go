package store

import (
	"context"
	"sync/atomic"
	"time"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/heysubinoy/keygate/pkg/kv"
)

// Metrics holds timing statistics for store operations.
// Uses atomic operations for thread-safe updates without locks.
type Metrics struct {
	GetCount atomic.Uint64
	SetCount atomic.Uint64

	GetErrors atomic.Uint64
	SetErrors atomic.Uint64

	// Cumulative latencies in nanoseconds
	GetLatencyNs atomic.Uint64
	SetLatencyNs atomic.Uint64
}

// InstrumentedStore wraps any kv.Backend implementation with timing metrics.
// When a go-metrics sink is attached the same measurements are emitted there.
type InstrumentedStore struct {
	store   kv.Backend
	metrics *Metrics
	sink    *metrics.Metrics
}

// Compile-time check to ensure InstrumentedStore implements kv.Backend.
var _ kv.Backend = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps a store with instrumentation. sink may be nil.
func NewInstrumentedStore(store kv.Backend, sink *metrics.Metrics) *InstrumentedStore {
	return &InstrumentedStore{
		store:   store,
		metrics: &Metrics{},
		sink:    sink,
	}
}

// Get delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Get(ctx context.Context, key string) (kv.Value, bool, error) {
	start := time.Now()
	value, found, err := s.store.Get(ctx, key)
	s.record("get", start, err, &s.metrics.GetCount, &s.metrics.GetLatencyNs, &s.metrics.GetErrors)
	return value, found, err
}

// Set delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.store.Set(ctx, key, value)
	s.record("set", start, err, &s.metrics.SetCount, &s.metrics.SetLatencyNs, &s.metrics.SetErrors)
	return err
}

func (s *InstrumentedStore) record(op string, start time.Time, err error, count, latency, errs *atomic.Uint64) {
	elapsed := time.Since(start).Nanoseconds()

	count.Add(1)
	latency.Add(uint64(elapsed))
	if err != nil {
		errs.Add(1)
	}

	if s.sink != nil {
		s.sink.MeasureSince([]string{"store", op}, start)
		if err != nil {
			s.sink.IncrCounter([]string{"store", op, "errors"}, 1)
		}
	}
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}

// GetMetrics returns a snapshot of current metrics.
func (s *InstrumentedStore) GetMetrics() MetricsSnapshot {
	getCount := s.metrics.GetCount.Load()
	setCount := s.metrics.SetCount.Load()

	return MetricsSnapshot{
		GetCount:      getCount,
		SetCount:      setCount,
		GetErrors:     s.metrics.GetErrors.Load(),
		SetErrors:     s.metrics.SetErrors.Load(),
		GetAvgLatency: s.avgLatency(s.metrics.GetLatencyNs.Load(), getCount),
		SetAvgLatency: s.avgLatency(s.metrics.SetLatencyNs.Load(), setCount),
	}
}

func (s *InstrumentedStore) avgLatency(totalNs, count uint64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(totalNs / count)
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	GetCount      uint64
	SetCount      uint64
	GetErrors     uint64
	SetErrors     uint64
	GetAvgLatency time.Duration
	SetAvgLatency time.Duration
}
