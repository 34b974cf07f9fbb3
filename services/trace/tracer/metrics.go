// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	otelTracer = otel.Tracer("modtrace.tracer")
	meter      = otel.Meter("modtrace.tracer")
)

var (
	traceLatency   metric.Float64Histogram
	traceTotal     metric.Int64Counter
	classesVisited metric.Int64Histogram
	matchesFound   metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		traceLatency, err = meter.Float64Histogram(
			"trace_duration_seconds",
			metric.WithDescription("Duration of reachability traces"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		traceTotal, err = meter.Int64Counter(
			"trace_total",
			metric.WithDescription("Total number of reachability traces"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		classesVisited, err = meter.Int64Histogram(
			"trace_classes_visited",
			metric.WithDescription("Classes entered per trace, summed over start classes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		matchesFound, err = meter.Int64Histogram(
			"trace_matches",
			metric.WithDescription("Deduplicated matches per trace"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordTraceMetrics(ctx context.Context, duration time.Duration, stats Stats, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	traceLatency.Record(ctx, duration.Seconds(), attrs)
	traceTotal.Add(ctx, 1, attrs)

	if success {
		classesVisited.Record(ctx, int64(stats.ClassesVisited))
		matchesFound.Record(ctx, int64(stats.Matches))
	}
}

func startTraceSpan(ctx context.Context, startCount, patternCount int) (context.Context, trace.Span) {
	return otelTracer.Start(ctx, "Tracer.Trace",
		trace.WithAttributes(
			attribute.Int("trace.start_count", startCount),
			attribute.Int("trace.pattern_count", patternCount),
		),
	)
}

func setTraceSpanResult(span trace.Span, stats Stats) {
	span.SetAttributes(
		attribute.Int("trace.classes_visited", stats.ClassesVisited),
		attribute.Int("trace.candidates", stats.Candidates),
		attribute.Int("trace.matches", stats.Matches),
	)
}
