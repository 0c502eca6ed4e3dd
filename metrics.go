package xlgrid

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for grid operations.
var (
	tracer = otel.Tracer("xlgrid")
	meter  = otel.Meter("xlgrid")
)

// Metrics for evaluation and the result cache.
var (
	evaluations        metric.Int64Counter
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
	circularReferences metric.Int64Counter
	trustBlocked       metric.Int64Counter
	evaluationLatency  metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		evaluations, err = meter.Int64Counter(
			"xlgrid_evaluations_total",
			metric.WithDescription("Total number of cell expressions executed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheHits, err = meter.Int64Counter(
			"xlgrid_cache_hits_total",
			metric.WithDescription("Total number of reads served from the result cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"xlgrid_cache_misses_total",
			metric.WithDescription("Total number of reads that required evaluation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		circularReferences, err = meter.Int64Counter(
			"xlgrid_circular_references_total",
			metric.WithDescription("Total number of circular references detected"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		trustBlocked, err = meter.Int64Counter(
			"xlgrid_trust_blocked_total",
			metric.WithDescription("Total number of evaluations refused in safe mode"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evaluationLatency, err = meter.Float64Histogram(
			"xlgrid_evaluation_duration_seconds",
			metric.WithDescription("Duration of single cell evaluations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// gridMetrics records through the package instruments when enabled.
type gridMetrics struct {
	enabled bool
}

func (m gridMetrics) ready() bool {
	return m.enabled && initMetrics() == nil
}

func (m gridMetrics) cacheHit() {
	if !m.ready() {
		return
	}
	cacheHits.Add(context.Background(), 1)
}

func (m gridMetrics) cacheMiss() {
	if !m.ready() {
		return
	}
	cacheMisses.Add(context.Background(), 1)
}

func (m gridMetrics) circular() {
	if !m.ready() {
		return
	}
	circularReferences.Add(context.Background(), 1)
}

func (m gridMetrics) blocked() {
	if !m.ready() {
		return
	}
	trustBlocked.Add(context.Background(), 1)
}

// evaluated records one executed expression and its latency.
func (m gridMetrics) evaluated(duration time.Duration, ok bool) {
	if !m.ready() {
		return
	}
	ctx := context.Background()
	evaluations.Add(ctx, 1)
	evaluationLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("ok", ok)),
	)
}

// startSpan creates a span for a bulk document operation.
func startSpan(ctx context.Context, operation string, docID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Grid."+operation,
		trace.WithAttributes(
			attribute.String("grid.operation", operation),
			attribute.String("grid.doc", docID),
		),
	)
}
