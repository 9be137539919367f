// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package link

import (
	"time"

	"github.com/ikmak/rslink/internal/logger"
	"github.com/ikmak/rslink/internal/metrics"
	"github.com/ikmak/rslink/topology"
)

const (
	// DefaultStalenessWindow is the minimum interval between topology
	// refreshes triggered by reads.
	DefaultStalenessWindow = 5 * time.Second

	// DefaultConnectTimeout bounds each connection attempt of a link.
	DefaultConnectTimeout = time.Second
)

// Option configures a Manager.
type Option func(*config)

type config struct {
	autoReconnect bool
	refresher     topology.Refresher
	resolver      topology.PrimaryResolver
	staleness     time.Duration
	clock         func() time.Time
	cache         *topology.Cache
	logger        *logger.Logger
	metrics       *metrics.Registry
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		autoReconnect: true,
		staleness:     DefaultStalenessWindow,
		clock:         time.Now,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.resolver == nil {
		cfg.resolver = topology.RegistryResolver{}
	}
	if cfg.cache == nil {
		cfg.cache = topology.NewCache()
	}
	return cfg
}

// WithAutoReconnect configures whether the write path reconnects a link that
// is not connected to its primary. It is enabled by default.
func WithAutoReconnect(enabled bool) Option {
	return func(c *config) {
		c.autoReconnect = enabled
	}
}

// WithRefresher configures the topology refresher used by stale reads and by
// the write path after a successful reconnection sweep.
func WithRefresher(r topology.Refresher) Option {
	return func(c *config) {
		c.refresher = r
	}
}

// WithResolver configures how the primary is determined. The default reads
// the primary recorded in the registry.
func WithResolver(r topology.PrimaryResolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

// WithStalenessWindow configures how old a server set's topology may get
// before a read refreshes it.
func WithStalenessWindow(d time.Duration) Option {
	return func(c *config) {
		c.staleness = d
	}
}

// WithClock replaces the clock used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}

// WithCache configures the cache that shares server sets between links
// opened with Open.
func WithCache(cache *topology.Cache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

// WithLogger configures the manager's logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics configures the prometheus collectors the manager reports to.
func WithMetrics(r *metrics.Registry) Option {
	return func(c *config) {
		c.metrics = r
	}
}

// LinkOption configures a Link.
type LinkOption func(*Link)

// WithTimeout configures the timeout of each connection attempt made on
// behalf of the link.
func WithTimeout(d time.Duration) LinkOption {
	return func(l *Link) {
		l.timeout = d
	}
}
