// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ikmak/rslink/address"
	"github.com/ikmak/rslink/description"
	"github.com/ikmak/rslink/event"
	"github.com/ikmak/rslink/internal/logger"
)

// Refresher re-derives the roles of a server set's members. It mutates the
// set in place.
type Refresher interface {
	Refresh(ctx context.Context, set *ServerSet) error
}

// PrimaryResolver reports the current primary of a server set.
type PrimaryResolver interface {
	CurrentPrimary(ctx context.Context, set *ServerSet) (Server, bool)
}

// Prober asks one server for its view of the replica set.
type Prober interface {
	Probe(ctx context.Context, addr address.Address) (description.Server, error)
}

// ProberFunc is an adapter to allow ordinary functions to be used as a
// Prober.
type ProberFunc func(ctx context.Context, addr address.Address) (description.Server, error)

// Probe implements the Prober interface.
func (f ProberFunc) Probe(ctx context.Context, addr address.Address) (description.Server, error) {
	return f(ctx, addr)
}

// ErrNoMemberAnswered is the message of a refresh in which every probe
// failed. The first probe error is wrapped with it.
var ErrNoMemberAnswered = errors.New("no member of the set answered")

const defaultHeartbeatTimeout = 10 * time.Second

// HeartbeatOption configures a HeartbeatRefresher.
type HeartbeatOption func(*heartbeatConfig)

type heartbeatConfig struct {
	timeout time.Duration
	logger  *logger.Logger
	monitor *event.TopologyMonitor
}

// WithHeartbeatTimeout bounds each probe.
func WithHeartbeatTimeout(d time.Duration) HeartbeatOption {
	return func(cfg *heartbeatConfig) {
		cfg.timeout = d
	}
}

// WithHeartbeatLogger configures the refresher's logger.
func WithHeartbeatLogger(l *logger.Logger) HeartbeatOption {
	return func(cfg *heartbeatConfig) {
		cfg.logger = l
	}
}

// WithTopologyMonitor configures the monitor that receives refresh events.
func WithTopologyMonitor(m *event.TopologyMonitor) HeartbeatOption {
	return func(cfg *heartbeatConfig) {
		cfg.monitor = m
	}
}

// HeartbeatRefresher refreshes a server set by probing each member in
// registration order and applying what it reports.
type HeartbeatRefresher struct {
	prober Prober
	cfg    heartbeatConfig
}

// NewHeartbeatRefresher creates a refresher that probes through p.
func NewHeartbeatRefresher(p Prober, opts ...HeartbeatOption) *HeartbeatRefresher {
	cfg := heartbeatConfig{timeout: defaultHeartbeatTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &HeartbeatRefresher{prober: p, cfg: cfg}
}

// Refresh probes every member and applies the results. It fails only if no
// member answered, in which case the set is left as it was.
func (r *HeartbeatRefresher) Refresh(ctx context.Context, set *ServerSet) error {
	start := time.Now()
	members := set.Addresses()
	setID := set.ID.String()

	if r.cfg.monitor != nil && r.cfg.monitor.RefreshStarted != nil {
		r.cfg.monitor.RefreshStarted(&event.RefreshStartedEvent{
			SetID:   setID,
			SetName: set.SetName(),
			Members: len(members),
		})
	}
	r.cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, "Refresh started",
		logger.KeySetID, setID,
		logger.KeySetName, set.SetName(),
		logger.KeyMembers, len(members),
	)

	var firstErr error
	answered := 0
	descs := make([]description.Server, 0, len(members))
	for _, addr := range members {
		desc, err := r.probe(ctx, addr)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			desc = description.NewServerFromError(addr, err)
		} else {
			answered++
		}
		descs = append(descs, desc)
	}

	if answered == 0 {
		err := ErrNoMemberAnswered
		if firstErr != nil {
			err = errors.Wrap(firstErr, ErrNoMemberAnswered.Error())
		}
		if r.cfg.monitor != nil && r.cfg.monitor.RefreshFailed != nil {
			r.cfg.monitor.RefreshFailed(&event.RefreshFailedEvent{
				SetID:    setID,
				SetName:  set.SetName(),
				Failure:  err,
				Duration: time.Since(start),
			})
		}
		return err
	}

	for _, desc := range descs {
		r.apply(set, desc)
	}

	primary, _ := set.Primary()
	if r.cfg.monitor != nil && r.cfg.monitor.RefreshSucceeded != nil {
		r.cfg.monitor.RefreshSucceeded(&event.RefreshSucceededEvent{
			SetID:    setID,
			SetName:  set.SetName(),
			Primary:  primary.Addr,
			Duration: time.Since(start),
		})
	}
	r.cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, "Refresh succeeded",
		logger.KeySetID, setID,
		logger.KeySetName, set.SetName(),
		"primary", string(primary.Addr),
		logger.KeyDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

func (r *HeartbeatRefresher) probe(ctx context.Context, addr address.Address) (description.Server, error) {
	if r.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.timeout)
		defer cancel()
	}
	desc, err := r.prober.Probe(ctx, addr)
	if err != nil {
		return description.Server{}, err
	}
	desc.Addr = addr
	if desc.LastUpdateTime.IsZero() {
		desc.LastUpdateTime = time.Now().UTC()
	}
	return desc, nil
}

func (r *HeartbeatRefresher) apply(set *ServerSet, desc description.Server) {
	prev, _ := set.Lookup(desc.Addr)
	// A primary probed earlier in this pass may have dropped the member.
	if err := set.Apply(desc); err != nil {
		return
	}
	cur, ok := set.Lookup(desc.Addr)
	if ok && cur.Kind == prev.Kind {
		return
	}

	if r.cfg.monitor != nil && r.cfg.monitor.ServerDescriptionChanged != nil {
		r.cfg.monitor.ServerDescriptionChanged(&event.ServerDescriptionChangedEvent{
			SetID:               set.ID.String(),
			Address:             desc.Addr,
			PreviousDescription: toDescription(prev),
			NewDescription:      desc,
		})
	}
	r.cfg.logger.Print(logger.LevelDebug, logger.ComponentTopology, "Server description changed",
		logger.KeySetID, set.ID.String(),
		logger.KeyServerHost, desc.Addr.Host(),
		logger.KeyServerPort, desc.Addr.Port(),
		"previousKind", prev.Kind.String(),
		"newKind", desc.Kind.String(),
	)
}

func toDescription(s Server) description.Server {
	return description.Server{
		Addr:           s.Addr,
		Kind:           s.Kind,
		SetName:        s.SetName,
		LastError:      s.LastError,
		LastUpdateTime: s.LastUpdate,
	}
}

// RegistryResolver resolves the primary from what the registry records. It
// never refreshes the set.
type RegistryResolver struct{}

// CurrentPrimary implements the PrimaryResolver interface. A standalone set
// resolves to its first member.
func (RegistryResolver) CurrentPrimary(_ context.Context, set *ServerSet) (Server, bool) {
	if !set.IsReplicaSet() {
		members := set.Members()
		if len(members) == 0 {
			return Server{}, false
		}
		return members[0], true
	}
	return set.Primary()
}
