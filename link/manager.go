// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package link answers, on behalf of a caller's link, which replica set member
// to read from and which to write to, reconnecting and failing over through a
// shared connection pool.
package link

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ikmak/rslink/address"
	"github.com/ikmak/rslink/internal/logger"
	"github.com/ikmak/rslink/topology"
)

// ConnectionPool is the part of the shared connection pool the manager
// needs. Implementations must be safe for concurrent use.
type ConnectionPool interface {
	Acquire(ctx context.Context, addr address.Address, timeout time.Duration) error
	Release(addr address.Address)
	IsConnected(addr address.Address) bool
}

// drainer is implemented by pools that can wait for checked-out connections
// during a full teardown.
type drainer interface {
	Drain(ctx context.Context, addr address.Address) error
}

const (
	opRead  = "read"
	opWrite = "write"
)

// Manager selects read and write targets for links. A single Manager is
// shared by every link using the same pool and is safe for concurrent use.
type Manager struct {
	pool      ConnectionPool
	cfg       *config
	refreshes singleflight.Group
}

// NewManager creates a manager over pool.
func NewManager(pool ConnectionPool, opts ...Option) *Manager {
	return &Manager{
		pool: pool,
		cfg:  newConfig(opts...),
	}
}

// NewLink creates a link over set. The caller keeps ownership of set.
func (m *Manager) NewLink(set *topology.ServerSet, opts ...LinkOption) *Link {
	return newLink(set, nil, opts...)
}

// Open creates a link over the cached server set for setName and seeds,
// sharing it with every other link opened for the same replica set. Closing
// the link releases its reference. An empty setName opens a standalone link.
func (m *Manager) Open(setName string, seeds []address.Address, opts ...LinkOption) *Link {
	set := m.cfg.cache.Get(setName, seeds)
	return newLink(set, m.cfg.cache.Release, opts...)
}

// GetReadTarget returns a secondary to read from. The link's cached secondary
// is reused while it is connected or can be reconnected; otherwise the first
// secondary in registry order that connects is chosen and cached.
func (m *Manager) GetReadTarget(ctx context.Context, l *Link) (topology.Server, error) {
	if !l.IsReplicaSet() {
		m.cfg.metrics.ObserveSelection(opRead, false)
		return topology.Server{}, ErrNotReplicaSet
	}

	m.refreshIfStale(ctx, l)

	tried, _ := l.Slave()
	if srv, ok := m.cachedSlave(ctx, l); ok {
		m.selected(opRead, l, srv)
		return srv, nil
	}

	for _, srv := range l.set.Secondaries() {
		if srv.Addr == tried {
			continue
		}
		if !m.connect(ctx, l, srv.Addr) {
			continue
		}
		l.setSlave(srv.Addr)
		m.selected(opRead, l, srv)
		return srv, nil
	}

	m.cfg.metrics.ObserveSelection(opRead, false)
	m.cfg.logger.Print(logger.LevelDebug, logger.ComponentServerSelection, "No readable server",
		logger.KeyLinkID, l.ID.String(),
		logger.KeySetName, l.set.SetName(),
	)
	return topology.Server{}, ErrNoReadableServer
}

// refreshIfStale refreshes the topology at most once per staleness window.
// Failures are logged and otherwise ignored: the previous topology is kept.
func (m *Manager) refreshIfStale(ctx context.Context, l *Link) {
	if m.cfg.refresher == nil || !l.set.TryBeginRefresh(m.cfg.clock(), m.cfg.staleness) {
		return
	}
	if err := m.refresh(ctx, l.set); err != nil {
		return
	}

	addr, ok := l.Slave()
	if !ok {
		return
	}
	if srv, found := l.set.Lookup(addr); !found || !srv.IsSecondary() {
		l.clearSlave(addr)
	}
}

func (m *Manager) refresh(ctx context.Context, set *topology.ServerSet) error {
	err := m.cfg.refresher.Refresh(ctx, set)
	m.cfg.metrics.ObserveRefresh(set.SetName(), err == nil)
	if err != nil {
		m.cfg.logger.Error(logger.ComponentTopology, err, "Topology refresh failed, keeping previous topology",
			logger.KeySetID, set.ID.String(),
			logger.KeySetName, set.SetName(),
		)
	}
	return err
}

// rederive refreshes the set after a successful reconnection sweep so a new
// primary is found. Callers sweeping the same set concurrently share one
// refresh, which is not bound to any single caller's cancellation. The
// refresh counts toward the staleness window.
func (m *Manager) rederive(ctx context.Context, l *Link) {
	if m.cfg.refresher == nil {
		return
	}
	set := l.set
	_, _, _ = m.refreshes.Do(set.ID.String(), func() (interface{}, error) {
		set.MarkRefreshed(m.cfg.clock())
		return nil, m.refresh(context.WithoutCancel(ctx), set)
	})
}

func (m *Manager) cachedSlave(ctx context.Context, l *Link) (topology.Server, bool) {
	addr, ok := l.Slave()
	if !ok {
		return topology.Server{}, false
	}
	srv, found := l.set.Lookup(addr)
	if !found {
		l.clearSlave(addr)
		return topology.Server{}, false
	}
	if m.pool.IsConnected(addr) {
		return srv, true
	}
	if !m.connect(ctx, l, addr) {
		l.clearSlave(addr)
		return topology.Server{}, false
	}
	return srv, true
}

// connect reports whether addr is connected or a pooled connection to it
// could be established within the link's timeout.
func (m *Manager) connect(ctx context.Context, l *Link, addr address.Address) bool {
	if m.pool.IsConnected(addr) {
		return true
	}
	err := m.pool.Acquire(ctx, addr, l.timeout)
	if err != nil {
		m.cfg.logger.Print(logger.LevelDebug, logger.ComponentServerSelection, "Connection attempt failed",
			logger.KeyLinkID, l.ID.String(),
			logger.KeyServerHost, addr.Host(),
			logger.KeyServerPort, addr.Port(),
			logger.KeyFailure, err.Error(),
		)
	}
	return err == nil
}

// GetWriteTarget returns the primary. When auto-reconnect is enabled and the
// link is not connected to its primary, the primary is disconnected, every
// member is reconnected with the link's own timeout, and the primary is
// determined again. With auto-reconnect disabled only the registry is asked.
func (m *Manager) GetWriteTarget(ctx context.Context, l *Link) (topology.Server, error) {
	if !m.cfg.autoReconnect || m.isConnected(l) {
		return m.resolvePrimary(ctx, l)
	}

	m.Disconnect(l)

	if err := m.ReconnectAll(ctx, l); err != nil {
		m.cfg.metrics.ObserveSelection(opWrite, false)
		return topology.Server{}, err
	}
	m.rederive(ctx, l)
	return m.resolvePrimary(ctx, l)
}

// isConnected reports whether a standalone link's server, or a replica set
// link's recorded primary, is connected.
func (m *Manager) isConnected(l *Link) bool {
	if !l.IsReplicaSet() {
		members := l.set.Members()
		if len(members) == 1 && m.pool.IsConnected(members[0].Addr) {
			return true
		}
	}
	primary, ok := l.set.Primary()
	return ok && m.pool.IsConnected(primary.Addr)
}

func (m *Manager) resolvePrimary(ctx context.Context, l *Link) (topology.Server, error) {
	srv, ok := m.cfg.resolver.CurrentPrimary(ctx, l.set)
	if !ok {
		m.cfg.metrics.ObserveSelection(opWrite, false)
		return topology.Server{}, ErrNoMaster
	}
	m.selected(opWrite, l, srv)
	return srv, nil
}

// ReconnectAll attempts a pooled connection to every member in registry
// order. It succeeds if at least one member connected; otherwise the error is
// a ConnectionFailedError carrying the first failure.
func (m *Manager) ReconnectAll(ctx context.Context, l *Link) error {
	members := l.set.Members()
	if len(members) == 0 {
		m.cfg.metrics.ObserveSweep(l.set.SetName(), false)
		return ConnectionFailedError{Message: "no members to connect to"}
	}

	var res sweepResult
	for _, srv := range members {
		err := m.pool.Acquire(ctx, srv.Addr, l.timeout)
		res.add(err)
		m.cfg.logger.Print(logger.LevelDebug, logger.ComponentServerSelection, "Reconnect attempt",
			logger.KeyLinkID, l.ID.String(),
			logger.KeyServerHost, srv.Addr.Host(),
			logger.KeyServerPort, srv.Addr.Port(),
			logger.KeyConnected, err == nil,
		)
	}

	err := res.err()
	m.cfg.metrics.ObserveSweep(l.set.SetName(), err == nil)
	if err != nil {
		m.cfg.logger.Error(logger.ComponentServerSelection, err, "Reconnection sweep failed",
			logger.KeyLinkID, l.ID.String(),
			logger.KeySetName, l.set.SetName(),
			logger.KeyMembers, len(members),
		)
	}
	return err
}

// Disconnect releases the link's primary connection and forgets the
// primary. It is a no-op when no primary is recorded or it is not connected.
// Connections to secondaries are left alone; see DisconnectAll.
func (m *Manager) Disconnect(l *Link) {
	primary, ok := l.set.Primary()
	if !ok || !m.pool.IsConnected(primary.Addr) {
		return
	}
	m.pool.Release(primary.Addr)
	l.set.ClearPrimary()
	m.cfg.logger.Print(logger.LevelDebug, logger.ComponentConnection, "Disconnected primary",
		logger.KeyLinkID, l.ID.String(),
		logger.KeyServerHost, primary.Addr.Host(),
		logger.KeyServerPort, primary.Addr.Port(),
	)
}

// DisconnectAll tears down connections to every member of the link's set,
// waiting until ctx is done for checked-out connections when the pool
// supports draining. The recorded primary and cached secondary are
// forgotten.
func (m *Manager) DisconnectAll(ctx context.Context, l *Link) error {
	d, canDrain := m.pool.(drainer)

	var g errgroup.Group
	for _, addr := range l.set.Addresses() {
		addr := addr
		g.Go(func() error {
			if canDrain {
				return d.Drain(ctx, addr)
			}
			m.pool.Release(addr)
			return nil
		})
	}
	err := g.Wait()

	l.set.ClearPrimary()
	l.clearSlave("")
	return err
}

func (m *Manager) selected(op string, l *Link, srv topology.Server) {
	m.cfg.metrics.ObserveSelection(op, true)
	m.cfg.logger.Print(logger.LevelDebug, logger.ComponentServerSelection, "Server selected",
		logger.KeyLinkID, l.ID.String(),
		logger.KeyOperation, op,
		logger.KeyServerHost, srv.Addr.Host(),
		logger.KeyServerPort, srv.Addr.Port(),
	)
}
