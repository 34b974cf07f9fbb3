// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trace

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal counts API requests by route and status code
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modtrace_http_requests_total",
		Help: "Total modtrace API requests by route and status code",
	}, []string{"route", "code"})

	// httpRequestDuration tracks API latency
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modtrace_http_request_duration_seconds",
		Help:    "modtrace API request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"route"})

	// analysesTotal counts finished analyses by result
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modtrace_analyses_total",
		Help: "Total project analyses by result",
	}, []string{"result"})

	// analysesCoalesced counts callers that shared another caller's build
	analysesCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modtrace_analyses_coalesced_total",
		Help: "Analyses answered by an in-flight build of the same root",
	})
)

// metricsMiddleware records request count and latency per route.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
