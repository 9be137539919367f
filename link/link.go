// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package link

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ikmak/rslink/address"
	"github.com/ikmak/rslink/topology"
)

// Link is one logical connection handle held by a caller. It refers to a
// server set it does not own and remembers the secondary chosen for reads.
type Link struct {
	ID uuid.UUID

	set     *topology.ServerSet
	timeout time.Duration
	release func(*topology.ServerSet) bool

	mu    sync.Mutex
	slave address.Address

	closeOnce sync.Once
}

func newLink(set *topology.ServerSet, release func(*topology.ServerSet) bool, opts ...LinkOption) *Link {
	l := &Link{
		ID:      uuid.New(),
		set:     set,
		timeout: DefaultConnectTimeout,
		release: release,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ServerSet returns the server set the link uses.
func (l *Link) ServerSet() *topology.ServerSet { return l.set }

// Timeout returns the per-attempt connect timeout.
func (l *Link) Timeout() time.Duration { return l.timeout }

// IsReplicaSet reports whether replica set semantics apply to the link.
func (l *Link) IsReplicaSet() bool { return l.set.IsReplicaSet() }

// Slave returns the cached read target, if any.
func (l *Link) Slave() (address.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slave, l.slave != ""
}

func (l *Link) setSlave(addr address.Address) {
	l.mu.Lock()
	l.slave = addr
	l.mu.Unlock()
}

// clearSlave forgets the cached read target if it is still addr, or
// unconditionally if addr is empty.
func (l *Link) clearSlave(addr address.Address) {
	l.mu.Lock()
	if addr == "" || l.slave == addr {
		l.slave = ""
	}
	l.mu.Unlock()
}

// Close drops the link's reference on a shared server set. The set itself is
// never torn down by a link; connections stay in the pool.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.clearSlave("")
		if l.release != nil {
			l.release(l.set)
		}
	})
	return nil
}
