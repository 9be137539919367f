// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package metrics holds the prometheus collectors shared by the pool and the
// link manager. Every method is safe to call on a nil *Registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rslink"

// Registry holds all collectors.
type Registry struct {
	registry prometheus.Registerer

	PoolCheckoutsTotal   *prometheus.CounterVec
	PoolDialDuration     *prometheus.HistogramVec
	PoolOpenConnections  *prometheus.GaugeVec
	PoolReleasesTotal    *prometheus.CounterVec
	RefreshTotal         *prometheus.CounterVec
	SweepsTotal          *prometheus.CounterVec
	TargetSelectionTotal *prometheus.CounterVec
}

// NewRegistry creates every collector and registers it with reg. A nil reg
// uses a fresh prometheus.Registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Registry{registry: reg}
	r.initPoolMetrics()
	r.initLinkMetrics()
	return r
}

func (r *Registry) initPoolMetrics() {
	r.PoolCheckoutsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_checkouts_total",
			Help:      "Connection checkouts by server and outcome",
		},
		[]string{"address", "status"},
	)

	r.PoolDialDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_dial_duration_seconds",
			Help:      "Time taken to establish a new connection",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"address"},
	)

	r.PoolOpenConnections = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_open_connections",
			Help:      "Connections currently open per server",
		},
		[]string{"address"},
	)

	r.PoolReleasesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_releases_total",
			Help:      "Times a server was disconnected from the pool",
		},
		[]string{"address"},
	)
}

func (r *Registry) initLinkMetrics() {
	r.RefreshTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topology_refresh_total",
			Help:      "Topology refreshes triggered by staleness, by outcome",
		},
		[]string{"set", "status"},
	)

	r.SweepsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_sweeps_total",
			Help:      "Reconnection sweeps over every member, by outcome",
		},
		[]string{"set", "status"},
	)

	r.TargetSelectionTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_selection_total",
			Help:      "Read and write target selections, by outcome",
		},
		[]string{"operation", "status"},
	)
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveCheckout records one checkout attempt.
func (r *Registry) ObserveCheckout(addr string, ok bool) {
	if r == nil {
		return
	}
	r.PoolCheckoutsTotal.WithLabelValues(addr, status(ok)).Inc()
}

// ObserveDial records the duration of a successful dial.
func (r *Registry) ObserveDial(addr string, d time.Duration) {
	if r == nil {
		return
	}
	r.PoolDialDuration.WithLabelValues(addr).Observe(d.Seconds())
}

// SetOpenConnections sets the number of open connections to addr.
func (r *Registry) SetOpenConnections(addr string, n int) {
	if r == nil {
		return
	}
	r.PoolOpenConnections.WithLabelValues(addr).Set(float64(n))
}

// ObserveRelease records a server being disconnected.
func (r *Registry) ObserveRelease(addr string) {
	if r == nil {
		return
	}
	r.PoolReleasesTotal.WithLabelValues(addr).Inc()
}

// ObserveRefresh records a staleness-triggered refresh.
func (r *Registry) ObserveRefresh(set string, ok bool) {
	if r == nil {
		return
	}
	r.RefreshTotal.WithLabelValues(set, status(ok)).Inc()
}

// ObserveSweep records a reconnection sweep.
func (r *Registry) ObserveSweep(set string, ok bool) {
	if r == nil {
		return
	}
	r.SweepsTotal.WithLabelValues(set, status(ok)).Inc()
}

// ObserveSelection records a read or write target selection.
func (r *Registry) ObserveSelection(op string, ok bool) {
	if r == nil {
		return
	}
	r.TargetSelectionTotal.WithLabelValues(op, status(ok)).Inc()
}
