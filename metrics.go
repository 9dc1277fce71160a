package pagecorpus

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    appendCounter    prometheus.Counter
//	    suggestHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordAppend(duration time.Duration, err error) {
//	    p.appendCounter.Inc()
//	}
type MetricsCollector interface {
	// RecordAppend is called after each append.
	RecordAppend(duration time.Duration, err error)

	// RecordSuggest is called after each suggestion query.
	// k is the number of candidates requested from the similarity index.
	RecordSuggest(k int, duration time.Duration, err error)

	// RecordRebuild is called after each dataset or index rebuild.
	RecordRebuild(duration time.Duration, err error)

	// RecordEmbedding is called after each processed embedding job.
	RecordEmbedding(err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAppend(time.Duration, error)       {}
func (NoopMetricsCollector) RecordSuggest(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRebuild(time.Duration, error)      {}
func (NoopMetricsCollector) RecordEmbedding(error)                   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	AppendCount       atomic.Int64
	AppendErrors      atomic.Int64
	AppendTotalNanos  atomic.Int64
	SuggestCount      atomic.Int64
	SuggestErrors     atomic.Int64
	SuggestTotalNanos atomic.Int64
	RebuildCount      atomic.Int64
	RebuildErrors     atomic.Int64
	EmbeddingCount    atomic.Int64
	EmbeddingErrors   atomic.Int64
}

// RecordAppend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAppend(duration time.Duration, err error) {
	b.AppendCount.Add(1)
	b.AppendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AppendErrors.Add(1)
	}
}

// RecordSuggest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSuggest(_ int, duration time.Duration, err error) {
	b.SuggestCount.Add(1)
	b.SuggestTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SuggestErrors.Add(1)
	}
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(_ time.Duration, err error) {
	b.RebuildCount.Add(1)
	if err != nil {
		b.RebuildErrors.Add(1)
	}
}

// RecordEmbedding implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEmbedding(err error) {
	b.EmbeddingCount.Add(1)
	if err != nil {
		b.EmbeddingErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AppendCount:     b.AppendCount.Load(),
		AppendErrors:    b.AppendErrors.Load(),
		AppendAvgNanos:  avg(b.AppendTotalNanos.Load(), b.AppendCount.Load()),
		SuggestCount:    b.SuggestCount.Load(),
		SuggestErrors:   b.SuggestErrors.Load(),
		SuggestAvgNanos: avg(b.SuggestTotalNanos.Load(), b.SuggestCount.Load()),
		RebuildCount:    b.RebuildCount.Load(),
		RebuildErrors:   b.RebuildErrors.Load(),
		EmbeddingCount:  b.EmbeddingCount.Load(),
		EmbeddingErrors: b.EmbeddingErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AppendCount     int64
	AppendErrors    int64
	AppendAvgNanos  int64
	SuggestCount    int64
	SuggestErrors   int64
	SuggestAvgNanos int64
	RebuildCount    int64
	RebuildErrors   int64
	EmbeddingCount  int64
	EmbeddingErrors int64
}
