// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package link

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ikmak/rslink/address"
	"github.com/ikmak/rslink/description"
	"github.com/ikmak/rslink/internal/metrics"
	"github.com/ikmak/rslink/topology"
)

// fakePool connects to every address except those listed in errs.
type fakePool struct {
	mu        sync.Mutex
	errs      map[address.Address]error
	connected map[address.Address]bool
	acquires  []address.Address
	timeouts  []time.Duration
	releases  []address.Address
}

func newFakePool() *fakePool {
	return &fakePool{
		errs:      make(map[address.Address]error),
		connected: make(map[address.Address]bool),
	}
}

func (p *fakePool) Acquire(_ context.Context, addr address.Address, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquires = append(p.acquires, addr)
	p.timeouts = append(p.timeouts, timeout)
	if err := p.errs[addr]; err != nil {
		p.connected[addr] = false
		return err
	}
	p.connected[addr] = true
	return nil
}

func (p *fakePool) Release(addr address.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases = append(p.releases, addr)
	p.connected[addr] = false
}

func (p *fakePool) IsConnected(addr address.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected[addr]
}

func (p *fakePool) down(addr address.Address, err error) {
	p.mu.Lock()
	p.errs[addr] = err
	p.mu.Unlock()
}

func (p *fakePool) setConnected(addr address.Address) {
	p.mu.Lock()
	p.connected[addr] = true
	p.mu.Unlock()
}

func (p *fakePool) acquired() []address.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]address.Address(nil), p.acquires...)
}

func (p *fakePool) released() []address.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]address.Address(nil), p.releases...)
}

// drainPool is a fakePool that also supports draining.
type drainPool struct {
	*fakePool
	drained sync.Map
}

func (p *drainPool) Drain(_ context.Context, addr address.Address) error {
	p.drained.Store(addr, true)
	p.Release(addr)
	return nil
}

// drainFunc is a fakePool whose drains are handled by drain.
type drainFunc struct {
	*fakePool
	drain func(ctx context.Context, addr address.Address) error
}

func (p *drainFunc) Drain(ctx context.Context, addr address.Address) error {
	return p.drain(ctx, addr)
}

// gatedPool is a fakePool that holds the first Acquire until a second one
// arrives, and fails attempts whose timeout is shorter than minTimeout.
type gatedPool struct {
	*fakePool
	minTimeout time.Duration

	gate    sync.Mutex
	calls   int
	arrived chan struct{}
}

func (p *gatedPool) Acquire(ctx context.Context, addr address.Address, timeout time.Duration) error {
	p.gate.Lock()
	p.calls++
	n := p.calls
	p.gate.Unlock()

	switch n {
	case 1:
		select {
		case <-p.arrived:
		case <-time.After(time.Second):
		}
	case 2:
		close(p.arrived)
	}

	if timeout < p.minTimeout {
		return errors.New("timed out")
	}
	return p.fakePool.Acquire(ctx, addr, timeout)
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
	apply func(*topology.ServerSet)
}

func (r *fakeRefresher) Refresh(_ context.Context, set *topology.ServerSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.apply != nil {
		r.apply(set)
	}
	return r.err
}

func (r *fakeRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var base = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func rsSet(t *testing.T, addrs ...address.Address) *topology.ServerSet {
	t.Helper()
	return topology.NewServerSet(addrs, topology.WithSetName("rs0"), topology.WithLastRefresh(base))
}

func secondary(t *testing.T, set *topology.ServerSet, addrs ...address.Address) {
	t.Helper()
	for _, addr := range addrs {
		require.NoError(t, set.Apply(description.Server{Addr: addr, Kind: description.RSSecondary, SetName: "rs0"}))
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestManager_GetReadTarget(t *testing.T) {
	ctx := context.Background()

	t.Run("standalone link is not a replica set", func(t *testing.T) {
		pool := newFakePool()
		refresher := &fakeRefresher{}
		m := NewManager(pool, WithRefresher(refresher), WithClock(fixedClock(base.Add(time.Hour))))
		l := m.NewLink(topology.NewServerSet([]address.Address{"a"}))

		_, err := m.GetReadTarget(ctx, l)
		require.Equal(t, ErrNotReplicaSet, err)
		require.Empty(t, pool.acquired())
		require.Zero(t, refresher.count())
	})
	t.Run("staleness window", func(t *testing.T) {
		testCases := []struct {
			elapsed time.Duration
			refresh bool
		}{
			{4999 * time.Millisecond, false},
			{5 * time.Second, false},
			{5001 * time.Millisecond, true},
		}
		for _, tc := range testCases {
			t.Run(tc.elapsed.String(), func(t *testing.T) {
				set := rsSet(t, "a", "b")
				secondary(t, set, "b")
				refresher := &fakeRefresher{}
				m := NewManager(newFakePool(), WithRefresher(refresher), WithClock(fixedClock(base.Add(tc.elapsed))))

				_, err := m.GetReadTarget(ctx, m.NewLink(set))
				require.NoError(t, err)
				if tc.refresh {
					require.Equal(t, 1, refresher.count())
				} else {
					require.Zero(t, refresher.count())
				}
			})
		}
	})
	t.Run("refresh is rate limited", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		secondary(t, set, "b")
		refresher := &fakeRefresher{err: errors.New("heartbeat failed")}
		now := base.Add(10 * time.Second)
		m := NewManager(newFakePool(), WithRefresher(refresher), WithClock(func() time.Time { return now }))
		l := m.NewLink(set)

		for i := 0; i < 3; i++ {
			_, err := m.GetReadTarget(ctx, l)
			require.NoError(t, err, "refresh failures are not surfaced")
		}
		require.Equal(t, 1, refresher.count())
		require.Equal(t, now, set.LastRefresh())

		now = now.Add(6 * time.Second)
		_, err := m.GetReadTarget(ctx, l)
		require.NoError(t, err)
		require.Equal(t, 2, refresher.count())
	})
	t.Run("connected cached slave needs no pool call", func(t *testing.T) {
		set := rsSet(t, "a", "b", "c")
		secondary(t, set, "b", "c")
		pool := newFakePool()
		m := NewManager(pool, WithClock(fixedClock(base)))
		l := m.NewLink(set)

		srv, err := m.GetReadTarget(ctx, l)
		require.NoError(t, err)
		require.Equal(t, address.Address("b:27017"), srv.Addr)
		require.Len(t, pool.acquired(), 1)

		for i := 0; i < 3; i++ {
			srv, err = m.GetReadTarget(ctx, l)
			require.NoError(t, err)
			require.Equal(t, address.Address("b:27017"), srv.Addr)
		}
		require.Len(t, pool.acquired(), 1)
	})
	t.Run("disconnected cached slave is reacquired", func(t *testing.T) {
		set := rsSet(t, "a", "b", "c")
		secondary(t, set, "b", "c")
		pool := newFakePool()
		m := NewManager(pool, WithClock(fixedClock(base)))
		l := m.NewLink(set, WithTimeout(100*time.Millisecond))
		l.setSlave("c:27017")

		srv, err := m.GetReadTarget(ctx, l)
		require.NoError(t, err)
		require.Equal(t, address.Address("c:27017"), srv.Addr)
		require.Equal(t, []address.Address{"c:27017"}, pool.acquired())
		require.Equal(t, []time.Duration{100 * time.Millisecond}, pool.timeouts)
	})
	t.Run("unreachable cached slave is replaced in registry order", func(t *testing.T) {
		set := rsSet(t, "a", "b", "c", "d")
		secondary(t, set, "b", "c", "d")
		pool := newFakePool()
		pool.down("b:27017", errors.New("refused"))
		pool.down("c:27017", errors.New("refused"))
		m := NewManager(pool, WithClock(fixedClock(base)))
		l := m.NewLink(set)
		l.setSlave("c:27017")

		srv, err := m.GetReadTarget(ctx, l)
		require.NoError(t, err)
		require.Equal(t, address.Address("d:27017"), srv.Addr)
		require.Equal(t, []address.Address{"c:27017", "b:27017", "d:27017"}, pool.acquired())
		slave, ok := l.Slave()
		require.True(t, ok)
		require.Equal(t, address.Address("d:27017"), slave)
	})
	t.Run("no readable server", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		secondary(t, set, "b")
		require.NoError(t, set.SetPrimary("a"))
		pool := newFakePool()
		pool.down("b:27017", errors.New("refused"))
		m := NewManager(pool, WithClock(fixedClock(base)))

		_, err := m.GetReadTarget(ctx, m.NewLink(set))
		require.Equal(t, ErrNoReadableServer, err)
		require.Equal(t, []address.Address{"b:27017"}, pool.acquired(), "the primary is never a read target")
	})
	t.Run("unreachable cached slave is forgotten", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		secondary(t, set, "b")
		require.NoError(t, set.SetPrimary("a"))
		pool := newFakePool()
		pool.down("b:27017", errors.New("refused"))
		m := NewManager(pool, WithClock(fixedClock(base)))
		l := m.NewLink(set)
		l.setSlave("b:27017")

		_, err := m.GetReadTarget(ctx, l)
		require.Equal(t, ErrNoReadableServer, err)
		require.Equal(t, []address.Address{"b:27017"}, pool.acquired())
		_, ok := l.Slave()
		require.False(t, ok)
	})
	t.Run("cached slave that stopped being a secondary is dropped", func(t *testing.T) {
		set := rsSet(t, "a", "b", "c")
		secondary(t, set, "b", "c")
		refresher := &fakeRefresher{apply: func(s *topology.ServerSet) {
			_ = s.SetPrimary("b")
		}}
		pool := newFakePool()
		m := NewManager(pool, WithRefresher(refresher), WithClock(fixedClock(base.Add(time.Minute))))
		l := m.NewLink(set)
		l.setSlave("b:27017")
		pool.setConnected("b:27017")

		srv, err := m.GetReadTarget(ctx, l)
		require.NoError(t, err)
		require.Equal(t, address.Address("c:27017"), srv.Addr)
	})
	t.Run("failed refresh keeps the cached slave", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		secondary(t, set, "b")
		refresher := &fakeRefresher{err: errors.New("down")}
		pool := newFakePool()
		pool.setConnected("b:27017")
		m := NewManager(pool, WithRefresher(refresher), WithClock(fixedClock(base.Add(time.Minute))))
		l := m.NewLink(set)
		l.setSlave("b:27017")

		srv, err := m.GetReadTarget(ctx, l)
		require.NoError(t, err)
		require.Equal(t, address.Address("b:27017"), srv.Addr)
		require.Empty(t, pool.acquired())
	})
}

func TestManager_ReconnectAll(t *testing.T) {
	ctx := context.Background()

	t.Run("partial success is success", func(t *testing.T) {
		for k := 1; k <= 3; k++ {
			pool := newFakePool()
			members := []address.Address{"a:27017", "b:27017", "c:27017"}
			for _, addr := range members[k:] {
				pool.down(addr, errors.New("refused"))
			}
			m := NewManager(pool)
			require.NoError(t, m.ReconnectAll(ctx, m.NewLink(rsSet(t, members...))))
			require.Equal(t, members, pool.acquired())
		}
	})
	t.Run("all fail reports the first failure", func(t *testing.T) {
		pool := newFakePool()
		refused := errors.New("refused")
		pool.down("a:27017", refused)
		pool.down("b:27017", errors.New("timeout"))
		m := NewManager(pool)

		err := m.ReconnectAll(ctx, m.NewLink(rsSet(t, "a", "b"), WithTimeout(100*time.Millisecond)))
		require.Error(t, err)
		require.Equal(t, "connecting failed: refused", err.Error())

		var failed ConnectionFailedError
		require.True(t, errors.As(err, &failed))
		require.Equal(t, "refused", failed.Message)
		require.True(t, errors.Is(err, refused))
	})
	t.Run("empty registry fails", func(t *testing.T) {
		pool := newFakePool()
		m := NewManager(pool)

		var err error
		require.NotPanics(t, func() {
			err = m.ReconnectAll(ctx, m.NewLink(topology.NewServerSet(nil, topology.WithSetName("rs0"))))
		})
		var failed ConnectionFailedError
		require.True(t, errors.As(err, &failed))
		require.NotEmpty(t, failed.Message)
		require.Empty(t, pool.acquired())
	})
}

func TestSweepResult(t *testing.T) {
	var r sweepResult
	r.add(errors.New("first"))
	r.add(errors.New("second"))
	require.Equal(t, "connecting failed: first", r.err().Error())
	r.add(nil)
	r.add(errors.New("third"))
	require.NoError(t, r.err())

	var empty sweepResult
	require.Equal(t, "connection failed", empty.err().Error())
}

func TestManager_Disconnect(t *testing.T) {
	set := rsSet(t, "a", "b")
	require.NoError(t, set.SetPrimary("a"))
	pool := newFakePool()
	pool.setConnected("a:27017")
	pool.setConnected("b:27017")
	m := NewManager(pool)
	l := m.NewLink(set)

	m.Disconnect(l)
	_, ok := set.Primary()
	require.False(t, ok)
	require.Equal(t, []address.Address{"a:27017"}, pool.released())
	require.True(t, pool.IsConnected("b:27017"), "secondaries are not disconnected")

	m.Disconnect(l)
	_, ok = set.Primary()
	require.False(t, ok)
	require.Equal(t, []address.Address{"a:27017"}, pool.released())

	t.Run("disconnected primary is kept", func(t *testing.T) {
		set := rsSet(t, "a")
		require.NoError(t, set.SetPrimary("a"))
		pool := newFakePool()
		m := NewManager(pool)

		m.Disconnect(m.NewLink(set))
		_, ok := set.Primary()
		require.True(t, ok)
		require.Empty(t, pool.released())
	})
}

func TestManager_DisconnectAll(t *testing.T) {
	ctx := context.Background()

	t.Run("drains every member", func(t *testing.T) {
		set := rsSet(t, "a", "b", "c")
		require.NoError(t, set.SetPrimary("a"))
		pool := &drainPool{fakePool: newFakePool()}
		m := NewManager(pool)
		l := m.NewLink(set)
		l.setSlave("b:27017")

		require.NoError(t, m.DisconnectAll(ctx, l))
		for _, addr := range set.Addresses() {
			_, ok := pool.drained.Load(addr)
			require.True(t, ok, "%s was not drained", addr)
		}
		_, ok := set.Primary()
		require.False(t, ok)
		_, ok = l.Slave()
		require.False(t, ok)
	})
	t.Run("a failed drain does not cut the others short", func(t *testing.T) {
		set := rsSet(t, "a", "b", "c")
		require.NoError(t, set.SetPrimary("a"))

		var mu sync.Mutex
		ctxErrs := make(map[address.Address]error)
		pool := &drainFunc{fakePool: newFakePool(), drain: func(ctx context.Context, addr address.Address) error {
			if addr == "a:27017" {
				return errors.New("drain failed")
			}
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			ctxErrs[addr] = ctx.Err()
			mu.Unlock()
			return nil
		}}
		m := NewManager(pool)

		err := m.DisconnectAll(ctx, m.NewLink(set))
		require.EqualError(t, err, "drain failed")
		require.Equal(t, map[address.Address]error{"b:27017": nil, "c:27017": nil}, ctxErrs)
		_, ok := set.Primary()
		require.False(t, ok)
	})
	t.Run("releases without drain support", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		pool := newFakePool()
		m := NewManager(pool)

		require.NoError(t, m.DisconnectAll(ctx, m.NewLink(set)))
		require.ElementsMatch(t, []address.Address{"a:27017", "b:27017"}, pool.released())
	})
}

func TestManager_GetWriteTarget(t *testing.T) {
	ctx := context.Background()

	t.Run("reconnects and finds the new primary", func(t *testing.T) {
		set := rsSet(t, "a", "b", "c")
		pool := newFakePool()
		pool.down("a:27017", errors.New("refused"))
		pool.down("b:27017", errors.New("timeout"))
		refresher := &fakeRefresher{apply: func(s *topology.ServerSet) {
			_ = s.SetPrimary("c")
		}}
		m := NewManager(pool, WithRefresher(refresher))
		l := m.NewLink(set, WithTimeout(100*time.Millisecond))

		require.NoError(t, m.ReconnectAll(ctx, l))

		srv, err := m.GetWriteTarget(ctx, l)
		require.NoError(t, err)
		require.Equal(t, address.Address("c:27017"), srv.Addr)
		require.Empty(t, pool.released(), "there was no primary to disconnect")
	})
	t.Run("auto-reconnect disabled trusts the recorded primary", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		require.NoError(t, set.SetPrimary("a"))
		pool := newFakePool()
		pool.down("a:27017", errors.New("refused"))
		m := NewManager(pool, WithAutoReconnect(false))

		srv, err := m.GetWriteTarget(ctx, m.NewLink(set))
		require.NoError(t, err)
		require.Equal(t, address.Address("a:27017"), srv.Addr)
		require.Empty(t, pool.acquired())
		require.Empty(t, pool.released())
	})
	t.Run("connected primary skips reconnection", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		require.NoError(t, set.SetPrimary("b"))
		pool := newFakePool()
		pool.setConnected("b:27017")
		m := NewManager(pool)

		srv, err := m.GetWriteTarget(ctx, m.NewLink(set))
		require.NoError(t, err)
		require.Equal(t, address.Address("b:27017"), srv.Addr)
		require.Empty(t, pool.acquired())
	})
	t.Run("connected standalone skips reconnection", func(t *testing.T) {
		set := topology.NewServerSet([]address.Address{"a"})
		pool := newFakePool()
		pool.setConnected("a:27017")
		m := NewManager(pool)

		srv, err := m.GetWriteTarget(ctx, m.NewLink(set))
		require.NoError(t, err)
		require.Equal(t, address.Address("a:27017"), srv.Addr)
		require.Empty(t, pool.acquired())
	})
	t.Run("unconnected primary triggers a sweep", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		require.NoError(t, set.SetPrimary("a"))
		pool := newFakePool()
		m := NewManager(pool, WithResolver(resolverFunc(func(s *topology.ServerSet) (topology.Server, bool) {
			return s.Lookup("b")
		})))
		l := m.NewLink(set)

		// The primary is recorded but not connected, so the link is not
		// connected and Disconnect has nothing to release.
		srv, err := m.GetWriteTarget(ctx, l)
		require.NoError(t, err)
		require.Equal(t, address.Address("b:27017"), srv.Addr)
		require.Equal(t, []address.Address{"a:27017", "b:27017"}, pool.acquired())
		require.Empty(t, pool.released())
	})
	t.Run("sweep failure is surfaced", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		pool := newFakePool()
		pool.down("a:27017", errors.New("refused"))
		pool.down("b:27017", errors.New("timeout"))
		m := NewManager(pool)

		_, err := m.GetWriteTarget(ctx, m.NewLink(set))
		require.EqualError(t, err, "connecting failed: refused")
	})
	t.Run("no master after a successful sweep", func(t *testing.T) {
		set := rsSet(t, "a")
		m := NewManager(newFakePool())

		_, err := m.GetWriteTarget(ctx, m.NewLink(set))
		require.Equal(t, ErrNoMaster, err)
	})
	t.Run("each link sweeps with its own timeout", func(t *testing.T) {
		set := rsSet(t, "a")
		pool := &gatedPool{fakePool: newFakePool(), minTimeout: 50 * time.Millisecond, arrived: make(chan struct{})}
		refresher := &fakeRefresher{apply: func(s *topology.ServerSet) {
			_ = s.SetPrimary("a")
		}}
		m := NewManager(pool, WithRefresher(refresher))
		short := m.NewLink(set, WithTimeout(time.Millisecond))
		long := m.NewLink(set, WithTimeout(time.Second))

		var shortErr error
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, shortErr = m.GetWriteTarget(ctx, short)
		}()

		srv, err := m.GetWriteTarget(ctx, long)
		<-done
		require.NoError(t, err)
		require.Equal(t, address.Address("a:27017"), srv.Addr)
		require.EqualError(t, shortErr, "connecting failed: timed out")
		require.Equal(t, []time.Duration{time.Second}, pool.timeouts)
	})
	t.Run("auto-reconnect disabled never refreshes", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		refresher := &fakeRefresher{}
		pool := newFakePool()
		m := NewManager(pool,
			WithAutoReconnect(false),
			WithRefresher(refresher),
			WithClock(fixedClock(base.Add(time.Second))),
		)
		l := m.NewLink(set)

		for i := 0; i < 5; i++ {
			_, err := m.GetWriteTarget(ctx, l)
			require.Equal(t, ErrNoMaster, err)
		}
		require.Zero(t, refresher.count())
		require.Equal(t, base, set.LastRefresh())
		require.Empty(t, pool.acquired())
	})
	t.Run("refresh after a sweep counts toward the staleness window", func(t *testing.T) {
		set := rsSet(t, "a", "b")
		secondary(t, set, "b")
		refresher := &fakeRefresher{apply: func(s *topology.ServerSet) {
			_ = s.SetPrimary("a")
		}}
		now := base.Add(time.Minute)
		m := NewManager(newFakePool(), WithRefresher(refresher), WithClock(fixedClock(now)))
		l := m.NewLink(set)

		srv, err := m.GetWriteTarget(ctx, l)
		require.NoError(t, err)
		require.Equal(t, address.Address("a:27017"), srv.Addr)
		require.Equal(t, now, set.LastRefresh())

		srv, err = m.GetReadTarget(ctx, l)
		require.NoError(t, err)
		require.Equal(t, address.Address("b:27017"), srv.Addr)
		require.Equal(t, 1, refresher.count())
	})
}

type resolverFunc func(*topology.ServerSet) (topology.Server, bool)

func (f resolverFunc) CurrentPrimary(_ context.Context, set *topology.ServerSet) (topology.Server, bool) {
	return f(set)
}

func TestManager_Open(t *testing.T) {
	cache := topology.NewCache()
	m := NewManager(newFakePool(), WithCache(cache))

	l1 := m.Open("rs0", []address.Address{"a", "b"})
	l2 := m.Open("rs0", []address.Address{"b", "a"}, WithTimeout(time.Minute))
	require.Same(t, l1.ServerSet(), l2.ServerSet())
	require.NotEqual(t, l1.ID, l2.ID)
	require.Equal(t, DefaultConnectTimeout, l1.Timeout())
	require.Equal(t, time.Minute, l2.Timeout())
	require.True(t, l1.IsReplicaSet())

	require.NoError(t, l1.Close())
	require.NoError(t, l1.Close())
	require.Equal(t, 1, cache.Len())
	require.NoError(t, l2.Close())
	require.Zero(t, cache.Len())

	require.NoError(t, m.NewLink(topology.NewServerSet(nil)).Close())
}

func TestManager_Metrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	set := rsSet(t, "a", "b")
	secondary(t, set, "b")
	pool := newFakePool()
	pool.down("a:27017", errors.New("refused"))
	pool.down("b:27017", errors.New("refused"))
	m := NewManager(pool, WithMetrics(reg), WithClock(fixedClock(base)))
	l := m.NewLink(set)

	_, err := m.GetReadTarget(context.Background(), l)
	require.Error(t, err)
	_, err = m.GetWriteTarget(context.Background(), l)
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(reg.TargetSelectionTotal.WithLabelValues(opRead, "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(reg.TargetSelectionTotal.WithLabelValues(opWrite, "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(reg.SweepsTotal.WithLabelValues("rs0", "failure")))
}
