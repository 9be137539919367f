// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package pool implements the process-wide connection pool shared by every
// link. Connections are keyed by server address and each server entry is
// guarded by its own lock.
package pool

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ikmak/rslink/address"
	"github.com/ikmak/rslink/event"
	"github.com/ikmak/rslink/internal/logger"
)

// ServerStats is a point-in-time view of one server's pool entry.
type ServerStats struct {
	Address    address.Address `json:"address"`
	Connected  bool            `json:"connected"`
	Open       int             `json:"open"`
	Idle       int             `json:"idle"`
	InUse      int             `json:"inUse"`
	Generation uint64          `json:"generation"`
	AverageRTT time.Duration   `json:"averageRTT"`
	MinRTT     time.Duration   `json:"minRTT"`
	RTT90      time.Duration   `json:"rtt90"`
}

// server is the pool entry for one address.
type server struct {
	sync.Mutex
	addr       address.Address
	idle       []*Connection
	inflight   map[uint64]*Connection
	open       int
	generation uint64
	connected  bool
	sem        *semaphore.Weighted
	rtt        *rttTracker
}

// Pool holds connections to many servers such that they can be checked out
// and reused. It is safe for concurrent use.
type Pool struct {
	cfg      *config
	capacity int64
	nextid   uint64

	mu      sync.Mutex
	closed  bool
	servers map[address.Address]*server
}

// New creates a new pool.
func New(opts ...Option) (*Pool, error) {
	cfg := newConfig(opts...)

	capacity := int64(math.MaxInt64)
	if cfg.maxConnsPerHost > 0 {
		if cfg.maxIdlePerHost > cfg.maxConnsPerHost {
			return nil, ErrSizeLargerThanCapacity
		}
		capacity = int64(cfg.maxConnsPerHost)
	}

	return &Pool{
		cfg:      cfg,
		capacity: capacity,
		servers:  make(map[address.Address]*server),
	}, nil
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// lookup returns the entry for addr, creating it if create is set.
func (p *Pool) lookup(addr address.Address, create bool) (*server, error) {
	addr = addr.Canonicalize()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	s, ok := p.servers[addr]
	if !ok && create {
		s = &server{
			addr:     addr,
			inflight: make(map[uint64]*Connection),
			sem:      semaphore.NewWeighted(p.capacity),
			rtt:      newRTTTracker(),
		}
		p.servers[addr] = s
	}
	return s, nil
}

// Checkout returns a live connection to addr, reusing an idle one when
// possible and dialing otherwise. A positive timeout bounds the whole
// checkout. The connection must be returned with Close.
func (p *Pool) Checkout(ctx context.Context, addr address.Address, timeout time.Duration) (*Connection, error) {
	s, err := p.lookup(addr, true)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c := p.takeIdle(s); c != nil {
		p.publish(event.GetSucceeded, s.addr, c.id, "", nil, 0)
		p.cfg.metrics.ObserveCheckout(string(s.addr), true)
		p.log("Connection checked out", s.addr, logger.KeyDriverConnectionID, c.id)
		return c, nil
	}

	return p.dial(ctx, s)
}

// takeIdle pops the most recently used idle connection that has not expired.
func (p *Pool) takeIdle(s *server) *Connection {
	now := time.Now()
	var stale []*Connection
	defer func() {
		for _, c := range stale {
			_ = p.closeConnection(c, event.ReasonStale)
		}
	}()

	s.Lock()
	defer s.Unlock()

	for n := len(s.idle); n > 0; n = len(s.idle) {
		c := s.idle[n-1]
		s.idle[n-1] = nil
		s.idle = s.idle[:n-1]
		if c.expired(s.generation, now, p.cfg.idleTimeout) {
			stale = append(stale, c)
			continue
		}
		c.lastUsed = now
		s.inflight[c.id] = c
		s.connected = true
		return c
	}
	return nil
}

func (p *Pool) dial(ctx context.Context, s *server) (*Connection, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		p.checkoutFailed(s, err, event.ReasonTimedOut)
		return nil, ConnectionError{Address: s.addr, Wrapped: err, message: "timed out waiting for a connection slot"}
	}

	s.Lock()
	gen := s.generation
	s.Unlock()

	start := time.Now()
	nc, err := p.cfg.dialer.DialContext(ctx, s.addr.Network(), s.addr.String())
	if err != nil {
		s.sem.Release(1)
		s.Lock()
		s.connected = false
		s.Unlock()
		p.checkoutFailed(s, err, event.ReasonConnectionErrored)
		return nil, ConnectionError{Address: s.addr, Wrapped: err}
	}
	rtt := time.Since(start)
	s.rtt.addSample(rtt)
	p.cfg.metrics.ObserveDial(string(s.addr), rtt)

	now := time.Now()
	c := &Connection{
		nc:         nc,
		id:         atomic.AddUint64(&p.nextid, 1),
		generation: gen,
		server:     s,
		pool:       p,
		created:    now,
		lastUsed:   now,
	}

	s.Lock()
	s.open++
	s.Unlock()

	if p.isClosed() {
		_ = p.closeConnection(c, event.ReasonPoolClosed)
		return nil, ErrPoolClosed
	}

	s.Lock()
	s.inflight[c.id] = c
	// A Release during the dial leaves the server disconnected.
	if gen == s.generation {
		s.connected = true
	}
	open := s.open
	s.Unlock()

	p.cfg.metrics.SetOpenConnections(string(s.addr), open)
	p.cfg.metrics.ObserveCheckout(string(s.addr), true)
	p.publish(event.ConnectionCreated, s.addr, c.id, "", nil, rtt)
	p.publish(event.GetSucceeded, s.addr, c.id, "", nil, 0)
	p.log("Connection created", s.addr, logger.KeyDriverConnectionID, c.id, logger.KeyDurationMS, rtt.Milliseconds())
	return c, nil
}

func (p *Pool) checkoutFailed(s *server, err error, reason string) {
	p.cfg.metrics.ObserveCheckout(string(s.addr), false)
	p.publish(event.GetFailed, s.addr, 0, reason, err, 0)
	p.cfg.logger.Print(logger.LevelDebug, logger.ComponentConnection, "Connection checkout failed",
		logger.KeyServerHost, s.addr.Host(),
		logger.KeyServerPort, s.addr.Port(),
		logger.KeyReason, reason,
		logger.KeyFailure, err.Error(),
	)
}

// Acquire makes sure a live pooled connection to addr exists, dialing one if
// needed, and marks the server connected. It is the pool half of a connect
// attempt: on success the connection is left idle in the pool.
func (p *Pool) Acquire(ctx context.Context, addr address.Address, timeout time.Duration) error {
	c, err := p.Checkout(ctx, addr, timeout)
	if err != nil {
		return err
	}
	err = c.Close()
	if err == ErrConnectionClosed {
		// The server was released while we held the connection. The dial
		// itself succeeded, which is all Acquire promises.
		return nil
	}
	return err
}

// IsConnected reports whether the last connection attempt to addr succeeded
// and the server has not been released since.
func (p *Pool) IsConnected(addr address.Address) bool {
	s, err := p.lookup(addr, false)
	if err != nil || s == nil {
		return false
	}
	s.Lock()
	defer s.Unlock()
	return s.connected
}

// Release disconnects a server: idle connections are closed, checked-out
// connections are closed when returned, and the server is marked
// disconnected. Releasing a disconnected server is a no-op.
func (p *Pool) Release(addr address.Address) {
	s, err := p.lookup(addr, false)
	if err != nil || s == nil {
		return
	}
	p.clear(s, event.ReasonReleased)
}

func (p *Pool) clear(s *server, reason string) {
	s.Lock()
	if !s.connected && len(s.idle) == 0 && len(s.inflight) == 0 {
		s.Unlock()
		return
	}
	s.generation++
	s.connected = false
	idle := s.idle
	s.idle = nil
	gen := s.generation
	s.Unlock()

	for _, c := range idle {
		_ = p.closeConnection(c, reason)
	}

	p.cfg.metrics.ObserveRelease(string(s.addr))
	p.publish(event.PoolCleared, s.addr, 0, reason, nil, 0)
	p.log("Connection pool cleared", s.addr, logger.KeyReason, reason, "generation", gen)
}

// Drain releases addr and then waits until every checked-out connection to it
// has been returned, or until ctx is done, at which point the remaining
// connections are closed underneath their owners.
func (p *Pool) Drain(ctx context.Context, addr address.Address) error {
	s, err := p.lookup(addr, false)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}

	p.clear(s, event.ReasonReleased)

	if err := s.sem.Acquire(ctx, p.capacity); err != nil {
		s.Lock()
		toClose := make([]*Connection, 0, len(s.inflight))
		for id, c := range s.inflight {
			toClose = append(toClose, c)
			delete(s.inflight, id)
		}
		s.Unlock()
		for _, c := range toClose {
			_ = p.closeConnection(c, event.ReasonPoolClosed)
		}
		return nil
	}
	s.sem.Release(p.capacity)
	return nil
}

func (p *Pool) checkIn(c *Connection) error {
	s := c.server
	now := time.Now()

	s.Lock()
	if _, ok := s.inflight[c.id]; !ok {
		s.Unlock()
		return ErrConnectionClosed
	}
	delete(s.inflight, c.id)

	reason := ""
	switch {
	case p.isClosed():
		reason = event.ReasonPoolClosed
	case c.expired(s.generation, now, p.cfg.idleTimeout):
		reason = event.ReasonStale
	case uint64(len(s.idle)) >= p.cfg.maxIdlePerHost:
		reason = event.ReasonIdle
	}
	if reason == "" {
		c.lastUsed = now
		s.idle = append(s.idle, c)
	}
	s.Unlock()

	if reason != "" {
		return p.closeConnection(c, reason)
	}
	p.publish(event.ConnectionReturned, s.addr, c.id, "", nil, 0)
	p.log("Connection checked in", s.addr, logger.KeyDriverConnectionID, c.id)
	return nil
}

func (p *Pool) discard(c *Connection) error {
	s := c.server
	s.Lock()
	_, ok := s.inflight[c.id]
	delete(s.inflight, c.id)
	s.Unlock()
	if !ok {
		return ErrConnectionClosed
	}

	err := p.closeConnection(c, event.ReasonConnectionErrored)
	p.clear(s, event.ReasonConnectionErrored)
	return err
}

func (p *Pool) closeConnection(c *Connection, reason string) error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	s := c.server
	s.sem.Release(1)
	s.Lock()
	s.open--
	open := s.open
	s.Unlock()

	p.cfg.metrics.SetOpenConnections(string(s.addr), open)
	p.publish(event.ConnectionClosed, s.addr, c.id, reason, nil, 0)
	p.log("Connection closed", s.addr, logger.KeyDriverConnectionID, c.id, logger.KeyReason, reason)

	if err := c.nc.Close(); err != nil {
		return ConnectionError{Address: s.addr, ConnectionID: c.id, Wrapped: err, message: "failed to close net.Conn"}
	}
	return nil
}

// Stats returns a snapshot of the entry for addr. Unknown addresses report a
// zero, disconnected entry.
func (p *Pool) Stats(addr address.Address) ServerStats {
	addr = addr.Canonicalize()
	stats := ServerStats{Address: addr}

	s, err := p.lookup(addr, false)
	if err != nil || s == nil {
		return stats
	}

	s.Lock()
	stats.Connected = s.connected
	stats.Open = s.open
	stats.Idle = len(s.idle)
	stats.InUse = len(s.inflight)
	stats.Generation = s.generation
	s.Unlock()

	stats.AverageRTT, stats.MinRTT, stats.RTT90 = s.rtt.snapshot()
	return stats
}

// Close closes the pool, making it unusable. Idle connections are closed
// immediately and checked-out connections are closed when returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.closed = true
	servers := make([]*server, 0, len(p.servers))
	for _, s := range p.servers {
		servers = append(servers, s)
	}
	p.mu.Unlock()

	for _, s := range servers {
		s.Lock()
		idle := s.idle
		s.idle = nil
		s.connected = false
		s.Unlock()
		for _, c := range idle {
			_ = p.closeConnection(c, event.ReasonPoolClosed)
		}
		p.publish(event.PoolClosedEvent, s.addr, 0, "", nil, 0)
	}
	return nil
}

func (p *Pool) publish(typ string, addr address.Address, id uint64, reason string, err error, d time.Duration) {
	if p.cfg.monitor == nil {
		return
	}
	p.cfg.monitor.Publish(&event.PoolEvent{
		Type:         typ,
		Address:      addr,
		ConnectionID: id,
		Reason:       reason,
		Error:        err,
		Duration:     d,
	})
}

func (p *Pool) log(msg string, addr address.Address, keysAndValues ...interface{}) {
	if !p.cfg.logger.LevelComponentEnabled(logger.LevelDebug, logger.ComponentConnection) {
		return
	}
	kvs := append([]interface{}{
		logger.KeyServerHost, addr.Host(),
		logger.KeyServerPort, addr.Port(),
	}, keysAndValues...)
	p.cfg.logger.Print(logger.LevelDebug, logger.ComponentConnection, msg, kvs...)
}
