// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package config loads replica set link configuration from YAML or TOML
// files and turns it into pool, topology, and link options.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ikmak/rslink/address"
	"github.com/ikmak/rslink/description"
	"github.com/ikmak/rslink/internal/logger"
	"github.com/ikmak/rslink/link"
	"github.com/ikmak/rslink/pool"
	"github.com/ikmak/rslink/topology"
)

const (
	defaultMaxConnsPerHost  = 100
	defaultMaxIdlePerHost   = 100
	defaultHeartbeatTimeout = 10 * time.Second
)

// Config is the file representation of a link's configuration.
type Config struct {
	ReplicaSet       string        `yaml:"replica_set" toml:"replica_set"`
	Members          []Member      `yaml:"members" toml:"members"`
	AutoReconnect    *bool         `yaml:"auto_reconnect" toml:"auto_reconnect"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" toml:"connect_timeout"`
	StalenessWindow  time.Duration `yaml:"staleness_window" toml:"staleness_window"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" toml:"heartbeat_timeout"`
	Pool             PoolConfig    `yaml:"pool" toml:"pool"`
	Log              LogConfig     `yaml:"log" toml:"log"`
}

// Member is one seed of the replica set. Role is the role the member is
// expected to report; it is only used by static probers.
type Member struct {
	Address string `yaml:"address" toml:"address"`
	Role    string `yaml:"role" toml:"role"`
}

// PoolConfig configures the connection pool. A max_conns_per_host of 0 means
// no limit.
type PoolConfig struct {
	MaxConnsPerHost *uint64       `yaml:"max_conns_per_host" toml:"max_conns_per_host"`
	MaxIdlePerHost  *uint64       `yaml:"max_idle_per_host" toml:"max_idle_per_host"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
}

// LogConfig configures logging. Components maps component names (all,
// topology, serverSelection, connection) to level literals.
type LogConfig struct {
	Format     string            `yaml:"format" toml:"format"`
	Components map[string]string `yaml:"components" toml:"components"`
}

// Load reads a configuration file. The format is chosen by extension: .yaml
// and .yml are YAML, .toml is TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	cfg, err := Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return cfg, nil
}

// Parse decodes data in the given format ("yaml", "yml" or "toml"), applies
// defaults, and validates the result.
func Parse(data []byte, format string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "decoding yaml")
		}
	case "toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "decoding toml")
		}
	default:
		return nil, errors.Errorf("unsupported config format %q", format)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.AutoReconnect == nil {
		enabled := true
		c.AutoReconnect = &enabled
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = link.DefaultConnectTimeout
	}
	if c.StalenessWindow == 0 {
		c.StalenessWindow = link.DefaultStalenessWindow
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Pool.MaxConnsPerHost == nil {
		n := uint64(defaultMaxConnsPerHost)
		c.Pool.MaxConnsPerHost = &n
	}
	if c.Pool.MaxIdlePerHost == nil {
		n := uint64(defaultMaxIdlePerHost)
		if *c.Pool.MaxConnsPerHost > 0 && *c.Pool.MaxConnsPerHost < n {
			n = *c.Pool.MaxConnsPerHost
		}
		c.Pool.MaxIdlePerHost = &n
	}
}

// Validate reports the first problem with the configuration.
func (c *Config) Validate() error {
	if len(c.Members) == 0 {
		return errors.New("at least one member is required")
	}
	if c.ReplicaSet == "" && len(c.Members) > 1 {
		return errors.New("replica_set is required when more than one member is configured")
	}
	for i, m := range c.Members {
		if m.Address == "" {
			return errors.Errorf("member %d has no address", i)
		}
		if m.Role != "" && description.ParseServerKind(m.Role) == description.Unknown && !strings.EqualFold(m.Role, "unknown") {
			return errors.Errorf("member %s has unknown role %q", m.Address, m.Role)
		}
	}
	if c.ConnectTimeout < 0 || c.StalenessWindow < 0 || c.HeartbeatTimeout < 0 || c.Pool.IdleTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	if c.Pool.MaxConnsPerHost != nil && c.Pool.MaxIdlePerHost != nil &&
		*c.Pool.MaxConnsPerHost > 0 && *c.Pool.MaxIdlePerHost > *c.Pool.MaxConnsPerHost {
		return errors.Wrap(pool.ErrSizeLargerThanCapacity, "pool")
	}
	for name, lvl := range c.Log.Components {
		if _, ok := logger.ParseComponent(name); !ok {
			return errors.Errorf("unknown log component %q", name)
		}
		if !logger.IsLevelLiteral(lvl) {
			return errors.Errorf("unknown log level %q for component %q", lvl, name)
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return errors.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Seeds returns the canonical member addresses in configuration order.
func (c *Config) Seeds() []address.Address {
	hosts := make([]string, len(c.Members))
	for i, m := range c.Members {
		hosts[i] = m.Address
	}
	return address.Parse(hosts...)
}

// Roles returns the configured role of each member that declares one.
func (c *Config) Roles() map[address.Address]description.ServerKind {
	roles := make(map[address.Address]description.ServerKind, len(c.Members))
	for _, m := range c.Members {
		if m.Role == "" {
			continue
		}
		roles[address.Address(m.Address).Canonicalize()] = description.ParseServerKind(m.Role)
	}
	return roles
}

// ServerSetOptions returns the options for the configured server set.
func (c *Config) ServerSetOptions() []topology.ServerSetOption {
	return []topology.ServerSetOption{topology.WithSetName(c.ReplicaSet)}
}

// PoolOptions returns the pool options for the configuration followed by
// extra.
func (c *Config) PoolOptions(extra ...pool.Option) []pool.Option {
	opts := []pool.Option{
		pool.WithIdleTimeout(c.Pool.IdleTimeout),
	}
	if c.Pool.MaxConnsPerHost != nil {
		opts = append(opts, pool.WithMaxConnsPerHost(*c.Pool.MaxConnsPerHost))
	}
	if c.Pool.MaxIdlePerHost != nil {
		opts = append(opts, pool.WithMaxIdlePerHost(*c.Pool.MaxIdlePerHost))
	}
	return append(opts, extra...)
}

// ManagerOptions returns the link manager options for the configuration
// followed by extra.
func (c *Config) ManagerOptions(extra ...link.Option) []link.Option {
	opts := []link.Option{link.WithStalenessWindow(c.StalenessWindow)}
	if c.AutoReconnect != nil {
		opts = append(opts, link.WithAutoReconnect(*c.AutoReconnect))
	}
	return append(opts, extra...)
}

// LinkOptions returns the per-link options for the configuration.
func (c *Config) LinkOptions() []link.LinkOption {
	return []link.LinkOption{link.WithTimeout(c.ConnectTimeout)}
}

// HeartbeatOptions returns the refresher options for the configuration
// followed by extra.
func (c *Config) HeartbeatOptions(extra ...topology.HeartbeatOption) []topology.HeartbeatOption {
	return append([]topology.HeartbeatOption{topology.WithHeartbeatTimeout(c.HeartbeatTimeout)}, extra...)
}

// Logger builds a logger writing through l, or the standard logrus logger
// when l is nil. Component levels from the file replace the RSLINK_LOG_*
// environment variables, which are used only when the file sets none.
func (c *Config) Logger(l *logrus.Logger) (*logger.Logger, error) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	if c.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	levels := make(map[logger.Component]logger.Level, len(c.Log.Components))
	for name, lvl := range c.Log.Components {
		component, _ := logger.ParseComponent(name)
		levels[component] = logger.ParseLevel(lvl)
	}
	lg, err := logger.New(logger.NewLogrusSink(l), levels)
	if err != nil {
		return nil, err
	}
	if maxLevel(lg.ComponentLevels) >= logger.LevelDebug {
		l.SetLevel(logrus.DebugLevel)
	}
	return lg, nil
}

func maxLevel(levels map[logger.Component]logger.Level) logger.Level {
	max := logger.LevelOff
	for _, lvl := range levels {
		if lvl > max {
			max = lvl
		}
	}
	return max
}
