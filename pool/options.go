// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pool

import (
	"time"

	"github.com/ikmak/rslink/event"
	"github.com/ikmak/rslink/internal/logger"
	"github.com/ikmak/rslink/internal/metrics"
)

const (
	defaultMaxConnsPerHost = 100
	defaultMaxIdlePerHost  = 100
)

// Option configures a pool.
type Option func(*config)

type config struct {
	dialer          Dialer
	maxConnsPerHost uint64
	maxIdlePerHost  uint64
	idleTimeout     time.Duration
	logger          *logger.Logger
	monitor         *event.PoolMonitor
	metrics         *metrics.Registry
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		dialer:          DefaultDialer,
		maxConnsPerHost: defaultMaxConnsPerHost,
		maxIdlePerHost:  defaultMaxIdlePerHost,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// WithDialer configures the Dialer used to open new connections.
func WithDialer(dialer Dialer) Option {
	return func(c *config) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithMaxConnsPerHost configures the maximum number of open connections to a
// single server. If max is 0, then there is no upper limit.
func WithMaxConnsPerHost(max uint64) Option {
	return func(c *config) {
		c.maxConnsPerHost = max
	}
}

// WithMaxIdlePerHost configures the maximum number of idle connections kept
// for a single server.
func WithMaxIdlePerHost(size uint64) Option {
	return func(c *config) {
		c.maxIdlePerHost = size
	}
}

// WithIdleTimeout configures how long a connection may sit idle in the pool
// before it is closed instead of reused.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.idleTimeout = timeout
	}
}

// WithLogger configures the pool's logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithPoolMonitor configures the monitor that receives pool events.
func WithPoolMonitor(m *event.PoolMonitor) Option {
	return func(c *config) {
		c.monitor = m
	}
}

// WithMetrics configures the prometheus collectors the pool reports to.
func WithMetrics(r *metrics.Registry) Option {
	return func(c *config) {
		c.metrics = r
	}
}
