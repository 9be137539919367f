// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pool

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/ikmak/rslink/address"
)

// Connection is a pooled network connection to one server. It is owned
// exclusively by the caller that checked it out until Close returns it.
type Connection struct {
	nc         net.Conn
	id         uint64
	generation uint64
	server     *server
	pool       *Pool
	created    time.Time
	lastUsed   time.Time // guarded by server's lock
	closed     int32
}

// ID returns the pool-unique identifier of the connection.
func (c *Connection) ID() uint64 { return c.id }

// Address returns the server this connection is established to.
func (c *Connection) Address() address.Address { return c.server.addr }

// NetConn returns the underlying network connection for the wire protocol
// layer.
func (c *Connection) NetConn() net.Conn { return c.nc }

// Read reads from the underlying network connection.
func (c *Connection) Read(b []byte) (int, error) { return c.nc.Read(b) }

// Write writes to the underlying network connection.
func (c *Connection) Write(b []byte) (int, error) { return c.nc.Write(b) }

// Close returns the connection to the pool. Expired connections and
// connections beyond the idle limit are closed instead.
func (c *Connection) Close() error {
	return c.pool.checkIn(c)
}

// Discard closes a connection that hit a network error and marks its server
// disconnected, which also expires every other connection to that server.
func (c *Connection) Discard() error {
	return c.pool.discard(c)
}

// Expired reports whether the connection may no longer be reused.
func (c *Connection) Expired() bool {
	c.server.Lock()
	defer c.server.Unlock()
	return c.expired(c.server.generation, time.Now(), c.pool.cfg.idleTimeout)
}

func (c *Connection) expired(generation uint64, now time.Time, idleTimeout time.Duration) bool {
	if atomic.LoadInt32(&c.closed) == 1 {
		return true
	}
	if c.generation < generation {
		return true
	}
	return idleTimeout > 0 && now.Sub(c.lastUsed) > idleTimeout
}
