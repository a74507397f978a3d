// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics wires the engine's Prometheus counters/histograms and
// the local-only OpenTelemetry trace provider every mobile API request
// already flows through via otelgin. No remote collector is configured;
// this process never phones home.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the pipeline, coherence pass, and sync
// engine report through, plus the prometheus.Registry they're collected
// on. Each instance owns its own registry rather than the global
// DefaultRegisterer so tests can construct more than one without a
// double-registration panic.
type Registry struct {
	reg *prometheus.Registry

	DocumentsProcessed *prometheus.CounterVec
	PipelineDuration   prometheus.Histogram
	AlertsRaised       *prometheus.CounterVec
	SyncRequests       prometheus.Counter
	SyncLatency        prometheus.Histogram
}

// New builds a Registry and registers every metric against it.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		DocumentsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coheara_pipeline_documents_total",
			Help: "Documents that completed the ingestion pipeline, by final status.",
		}, []string{"status"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coheara_pipeline_duration_seconds",
			Help:    "Wall-clock time for one document to pass through Pipeline.Run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60},
		}),
		AlertsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coheara_coherence_alerts_total",
			Help: "Coherence alerts raised, by category.",
		}, []string{"category"}),
		SyncRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "coheara_sync_requests_total",
			Help: "Delta-sync requests served by POST /api/sync.",
		}),
		SyncLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coheara_sync_latency_seconds",
			Help:    "Time to assemble a delta-sync response.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

// Handler exposes this registry's metrics for local scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
