package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("factprobe.cache")

var (
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
	cacheFlushes metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"cache_hits_total",
			metric.WithDescription("Total number of response cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"cache_misses_total",
			metric.WithDescription("Total number of response cache misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheFlushes, err = meter.Int64Counter(
			"cache_flushes_total",
			metric.WithDescription("Total number of durable cache flushes, by outcome"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordLookup(name string, hit bool) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("cache", name))
	if hit {
		cacheHits.Add(context.Background(), 1, attrs)
	} else {
		cacheMisses.Add(context.Background(), 1, attrs)
	}
}

func recordFlush(name string, ok bool) {
	if initMetrics() != nil {
		return
	}
	cacheFlushes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("cache", name),
		attribute.Bool("ok", ok),
	))
}
