// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	krpretty "github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/pretty"
	"github.com/urfave/cli/v2"

	"github.com/ikmak/rslink/address"
	"github.com/ikmak/rslink/config"
	"github.com/ikmak/rslink/description"
	"github.com/ikmak/rslink/internal/metrics"
	"github.com/ikmak/rslink/link"
	"github.com/ikmak/rslink/pool"
	"github.com/ikmak/rslink/topology"
)

type session struct {
	cfg       *config.Config
	pool      *pool.Pool
	manager   *link.Manager
	refresher *topology.HeartbeatRefresher
	link      *link.Link
	out       io.Writer
	json      bool
}

func withSession(fn func(context.Context, *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := newSession(c)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(c.Context, s)
	}
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	lg, err := cfg.Logger(logrus.StandardLogger())
	if err != nil {
		return nil, errors.Wrap(err, "configuring logger")
	}
	reg := metrics.NewRegistry(prometheus.NewRegistry())

	p, err := pool.New(cfg.PoolOptions(pool.WithLogger(lg), pool.WithMetrics(reg))...)
	if err != nil {
		return nil, errors.Wrap(err, "creating pool")
	}

	seeds := cfg.Seeds()
	prober := &staticProber{
		pool:    p,
		setName: cfg.ReplicaSet,
		roles:   cfg.Roles(),
		members: seeds,
		timeout: cfg.ConnectTimeout,
	}
	refresher := topology.NewHeartbeatRefresher(prober, cfg.HeartbeatOptions(topology.WithHeartbeatLogger(lg))...)
	m := link.NewManager(p, cfg.ManagerOptions(
		link.WithRefresher(refresher),
		link.WithLogger(lg),
		link.WithMetrics(reg),
	)...)

	return &session{
		cfg:       cfg,
		pool:      p,
		manager:   m,
		refresher: refresher,
		link:      m.Open(cfg.ReplicaSet, seeds, cfg.LinkOptions()...),
		out:       c.App.Writer,
		json:      c.Bool("json"),
	}, nil
}

func (s *session) close() {
	_ = s.link.Close()
	_ = s.pool.Close()
}

// staticProber answers heartbeats from the configuration: a member that
// accepts a connection reports its configured role.
type staticProber struct {
	pool    *pool.Pool
	setName string
	roles   map[address.Address]description.ServerKind
	members []address.Address
	timeout time.Duration
}

func (p *staticProber) Probe(ctx context.Context, addr address.Address) (description.Server, error) {
	start := time.Now()
	conn, err := p.pool.Checkout(ctx, addr, p.timeout)
	if err != nil {
		return description.Server{}, err
	}
	_ = conn.Close()

	kind, ok := p.roles[addr]
	if !ok {
		kind = description.RSMember
		if p.setName == "" {
			kind = description.Standalone
		}
	}
	desc := description.Server{
		Addr:           addr,
		AverageRTT:     time.Since(start),
		Kind:           kind,
		LastUpdateTime: time.Now().UTC(),
		SetName:        p.setName,
	}
	if kind == description.RSPrimary {
		desc.Members = p.members
	}
	return desc, nil
}

type targetResult struct {
	Operation string `json:"operation"`
	Target    string `json:"target,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

type memberStatus struct {
	Address string           `json:"address"`
	Kind    string           `json:"kind"`
	Primary bool             `json:"primary"`
	Error   string           `json:"error,omitempty"`
	Pool    pool.ServerStats `json:"pool"`
}

func readTarget(ctx context.Context, s *session) error {
	srv, err := s.manager.GetReadTarget(ctx, s.link)
	return s.printTarget("read", srv, err)
}

func writeTarget(ctx context.Context, s *session) error {
	srv, err := s.manager.GetWriteTarget(ctx, s.link)
	return s.printTarget("write", srv, err)
}

func reconnect(ctx context.Context, s *session) error {
	err := s.manager.ReconnectAll(ctx, s.link)
	res := targetResult{Operation: "reconnect"}
	if err != nil {
		res.Error = err.Error()
	}
	if perr := s.print(res, func(w io.Writer) {
		if err != nil {
			fmt.Fprintf(w, "reconnect: %v\n", err)
			return
		}
		fmt.Fprintln(w, "reconnect: ok")
	}); perr != nil {
		return perr
	}
	return err
}

func status(ctx context.Context, s *session) error {
	set := s.link.ServerSet()
	_ = s.manager.ReconnectAll(ctx, s.link)
	if err := s.refresher.Refresh(ctx, set); err != nil {
		logrus.WithError(err).Warn("refresh failed")
	}

	members := set.Members()
	out := make([]memberStatus, 0, len(members))
	for _, m := range members {
		ms := memberStatus{
			Address: string(m.Addr),
			Kind:    m.Kind.String(),
			Primary: m.IsPrimary(),
			Pool:    s.pool.Stats(m.Addr),
		}
		if m.LastError != nil {
			ms.Error = m.LastError.Error()
		}
		out = append(out, ms)
	}
	return s.print(out, func(w io.Writer) {
		for _, ms := range out {
			krpretty.Fprintf(w, "%# v\n", ms)
		}
	})
}

func (s *session) printTarget(op string, srv topology.Server, err error) error {
	res := targetResult{Operation: op}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Target = string(srv.Addr)
		res.Kind = srv.Kind.String()
	}
	if perr := s.print(res, func(w io.Writer) {
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", op, err)
			return
		}
		fmt.Fprintf(w, "%s: %s (%s)\n", op, res.Target, res.Kind)
	}); perr != nil {
		return perr
	}
	return err
}

func (s *session) print(v interface{}, text func(io.Writer)) error {
	if !s.json {
		text(s.out)
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding result")
	}
	_, err = s.out.Write(pretty.Pretty(b))
	return err
}
