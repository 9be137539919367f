// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package topology contains the server registry for a replica set and the
// collaborators that keep its roles current.
package topology

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ikmak/rslink/address"
	"github.com/ikmak/rslink/description"
)

// ErrNotMember is returned when an operation names an address that is not in
// the server set.
var ErrNotMember = errors.New("server is not a member of the set")

var (
	errNewPrimary   = errors.New("was a primary, but a new primary was discovered")
	errWrongSetName = errors.New("reported a different replica set name")
	errDisconnected = errors.New("was a primary, but the link disconnected")
)

const noPrimary = -1

// ServerSetOption configures a server set.
type ServerSetOption func(*serverSetConfig)

type serverSetConfig struct {
	setName     string
	lastRefresh time.Time
}

// WithSetName marks the set as a replica set with the given name. A set
// without a name is a single standalone server and has no replica set
// semantics.
func WithSetName(name string) ServerSetOption {
	return func(cfg *serverSetConfig) {
		cfg.setName = name
	}
}

// WithLastRefresh sets the initial staleness timestamp. By default a new set
// is considered stale so the first read refreshes it.
func WithLastRefresh(t time.Time) ServerSetOption {
	return func(cfg *serverSetConfig) {
		cfg.lastRefresh = t
	}
}

// ServerSet is the ordered registry of a replica set's members together with
// the recorded primary and the time of the last refresh. Failover walks the
// members in registration order. It is safe for concurrent use.
type ServerSet struct {
	ID uuid.UUID

	setName string

	mu          sync.RWMutex
	servers     []Server
	master      int
	lastRefresh time.Time
}

// NewServerSet creates a registry from seed addresses. Seeds are
// canonicalized and duplicates dropped, keeping the first occurrence.
func NewServerSet(seeds []address.Address, opts ...ServerSetOption) *ServerSet {
	cfg := new(serverSetConfig)
	for _, opt := range opts {
		opt(cfg)
	}

	set := &ServerSet{
		ID:          uuid.New(),
		setName:     cfg.setName,
		master:      noPrimary,
		lastRefresh: cfg.lastRefresh,
	}
	for _, addr := range dedupe(seeds) {
		set.servers = append(set.servers, Server{Addr: addr})
	}
	return set
}

func dedupe(addrs []address.Address) []address.Address {
	seen := make(map[address.Address]struct{}, len(addrs))
	out := make([]address.Address, 0, len(addrs))
	for _, a := range addrs {
		a = a.Canonicalize()
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// SetName returns the replica set name, or "" for a standalone set.
func (s *ServerSet) SetName() string { return s.setName }

// IsReplicaSet reports whether replica set semantics apply to this set.
func (s *ServerSet) IsReplicaSet() bool { return s.setName != "" }

// Kind returns the kind of topology the set currently describes.
func (s *ServerSet) Kind() description.TopologyKind {
	if !s.IsReplicaSet() {
		return description.Single
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.master == noPrimary {
		return description.ReplicaSetNoPrimary
	}
	return description.ReplicaSetWithPrimary
}

// Len returns the number of members.
func (s *ServerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.servers)
}

// Members returns a copy of the members in registration order.
func (s *ServerSet) Members() []Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Server, len(s.servers))
	copy(out, s.servers)
	return out
}

// Addresses returns the member addresses in registration order.
func (s *ServerSet) Addresses() []address.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]address.Address, len(s.servers))
	for i, srv := range s.servers {
		out[i] = srv.Addr
	}
	return out
}

// Lookup returns the member with the given address.
func (s *ServerSet) Lookup(addr address.Address) (Server, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.find(addr.Canonicalize()); ok {
		return s.servers[i], true
	}
	return Server{}, false
}

// Primary returns the recorded primary, if any.
func (s *ServerSet) Primary() (Server, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.master == noPrimary {
		return Server{}, false
	}
	return s.servers[s.master], true
}

// Secondaries returns the members last seen as secondaries, in registration
// order.
func (s *ServerSet) Secondaries() []Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Server
	for _, srv := range s.servers {
		if srv.IsSecondary() {
			out = append(out, srv)
		}
	}
	return out
}

// LastRefresh returns the staleness timestamp.
func (s *ServerSet) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// TryBeginRefresh reports whether more than window has passed since the last
// refresh and, if so, stamps now as the new refresh time. Only one of several
// concurrent callers observing the same stale timestamp wins. The timestamp
// never moves backwards.
func (s *ServerSet) TryBeginRefresh(now time.Time, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastRefresh) <= window {
		return false
	}
	s.lastRefresh = now
	return true
}

// MarkRefreshed records a refresh started at now. The timestamp never moves
// backwards.
func (s *ServerSet) MarkRefreshed(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastRefresh) {
		s.lastRefresh = now
	}
	s.mu.Unlock()
}

// SetPrimary records addr as the primary, demoting any previous one.
func (s *ServerSet) SetPrimary(addr address.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.find(addr.Canonicalize())
	if !ok {
		return errors.Wrapf(ErrNotMember, "cannot set primary %s", addr)
	}
	s.demotePrimary(errNewPrimary)
	s.servers[i].Kind = description.RSPrimary
	s.servers[i].LastError = nil
	s.servers[i].LastUpdate = time.Now().UTC()
	s.master = i
	return nil
}

// ClearPrimary forgets the recorded primary. Its role becomes unknown until
// the next refresh.
func (s *ServerSet) ClearPrimary() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demotePrimary(errDisconnected)
}

// Replace rebuilds the membership from addrs. Surviving members keep what is
// known about them; the recorded primary survives only if it is still a
// member.
func (s *ServerSet) Replace(addrs []address.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := make(map[address.Address]Server, len(s.servers))
	for _, srv := range s.servers {
		old[srv.Addr] = srv
	}

	servers := make([]Server, 0, len(addrs))
	for _, addr := range dedupe(addrs) {
		if srv, ok := old[addr]; ok {
			servers = append(servers, srv)
			continue
		}
		servers = append(servers, Server{Addr: addr})
	}
	s.servers = servers
	s.resetPrimary()
}

// Apply updates the set from one member's heartbeat description. Reports from
// addresses that are not members are rejected with ErrNotMember.
func (s *ServerSet) Apply(desc description.Server) error {
	desc.Addr = desc.Addr.Canonicalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.find(desc.Addr); !ok {
		return errors.Wrapf(ErrNotMember, "cannot apply description of %s", desc.Addr)
	}

	if !s.IsReplicaSet() {
		s.replaceServer(desc)
		return nil
	}

	switch desc.Kind {
	case description.Standalone:
		s.removeServer(desc.Addr)
	case description.RSPrimary:
		s.updateFromPrimary(desc)
	case description.RSSecondary, description.RSArbiter, description.RSMember:
		s.updateFromMember(desc)
	default:
		s.replaceServer(desc)
	}
	return nil
}

func (s *ServerSet) updateFromPrimary(desc description.Server) {
	if desc.SetName != s.setName {
		s.markWrongSet(desc)
		return
	}

	if i, ok := s.find(desc.Addr); ok && i != s.master {
		s.demotePrimary(errNewPrimary)
	}
	s.replaceServer(desc)

	if len(desc.Members) == 0 {
		return
	}
	members := dedupe(desc.Members)
	keep := make(map[address.Address]struct{}, len(members))
	for _, m := range members {
		keep[m] = struct{}{}
	}
	for i := len(s.servers) - 1; i >= 0; i-- {
		if _, ok := keep[s.servers[i].Addr]; !ok {
			s.servers = append(s.servers[:i], s.servers[i+1:]...)
		}
	}
	for _, m := range members {
		if _, ok := s.find(m); !ok {
			s.servers = append(s.servers, Server{Addr: m})
		}
	}
	s.resetPrimary()
}

func (s *ServerSet) updateFromMember(desc description.Server) {
	if desc.SetName != s.setName {
		s.markWrongSet(desc)
		return
	}
	if desc.CanonicalAddr != "" && desc.CanonicalAddr.Canonicalize() != desc.Addr {
		s.removeServer(desc.Addr)
		return
	}

	s.replaceServer(desc)

	if s.master != noPrimary {
		return
	}
	for _, m := range dedupe(desc.Members) {
		if _, ok := s.find(m); !ok {
			s.servers = append(s.servers, Server{Addr: m})
		}
	}
}

func (s *ServerSet) markWrongSet(desc description.Server) {
	s.replaceServer(description.Server{
		Addr:           desc.Addr,
		Kind:           description.Unknown,
		SetName:        desc.SetName,
		LastError:      errors.Wrapf(errWrongSetName, "expected %q, got %q", s.setName, desc.SetName),
		LastUpdateTime: desc.LastUpdateTime,
	})
}

// replaceServer overwrites the member at desc.Addr and keeps the master index
// in step with the member's new role.
func (s *ServerSet) replaceServer(desc description.Server) {
	i, ok := s.find(desc.Addr)
	if !ok {
		return
	}
	s.servers[i] = serverFromDescription(desc)
	switch {
	case s.servers[i].IsPrimary():
		s.master = i
	case s.master == i:
		s.master = noPrimary
	}
}

func (s *ServerSet) removeServer(addr address.Address) {
	i, ok := s.find(addr)
	if !ok {
		return
	}
	s.servers = append(s.servers[:i], s.servers[i+1:]...)
	s.resetPrimary()
}

func (s *ServerSet) demotePrimary(reason error) {
	if s.master == noPrimary {
		return
	}
	s.servers[s.master] = Server{
		Addr:       s.servers[s.master].Addr,
		Kind:       description.Unknown,
		LastError:  reason,
		LastUpdate: time.Now().UTC(),
	}
	s.master = noPrimary
}

func (s *ServerSet) resetPrimary() {
	s.master = noPrimary
	for i, srv := range s.servers {
		if srv.IsPrimary() {
			s.master = i
			return
		}
	}
}

func (s *ServerSet) find(addr address.Address) (int, bool) {
	for i, srv := range s.servers {
		if srv.Addr == addr {
			return i, true
		}
	}
	return 0, false
}
