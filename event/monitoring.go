// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package event defines the monitoring hooks emitted by the connection pool
// and the topology refresher.
package event

import (
	"time"

	"github.com/ikmak/rslink/address"
	"github.com/ikmak/rslink/description"
)

// strings for pool monitoring reasons
const (
	ReasonIdle              = "idle"
	ReasonPoolClosed        = "poolClosed"
	ReasonStale             = "stale"
	ReasonConnectionErrored = "connectionError"
	ReasonTimedOut          = "timeout"
	ReasonReleased          = "released"
)

// strings for pool monitoring types
const (
	ConnectionClosed   = "ConnectionClosed"
	ConnectionCreated  = "ConnectionCreated"
	GetFailed          = "ConnectionCheckOutFailed"
	GetSucceeded       = "ConnectionCheckedOut"
	ConnectionReturned = "ConnectionCheckedIn"
	PoolCleared        = "ConnectionPoolCleared"
	PoolClosedEvent    = "ConnectionPoolClosed"
)

// PoolEvent contains all information summarizing a pool event
type PoolEvent struct {
	Type         string          `json:"type"`
	Address      address.Address `json:"address"`
	ConnectionID uint64          `json:"connectionId"`
	Reason       string          `json:"reason"`
	Error        error           `json:"-"`
	Duration     time.Duration   `json:"duration"`
}

// PoolMonitor is a function that allows the user to gain access to events occurring in the pool
type PoolMonitor struct {
	Event func(*PoolEvent)
}

// Publish sends evt to the monitor if one is configured.
func (m *PoolMonitor) Publish(evt *PoolEvent) {
	if m == nil || m.Event == nil {
		return
	}
	m.Event(evt)
}

// RefreshStartedEvent is published before a server set is refreshed.
type RefreshStartedEvent struct {
	SetID   string
	SetName string
	Members int
}

// RefreshSucceededEvent is published after a refresh in which at least one
// member answered.
type RefreshSucceededEvent struct {
	SetID    string
	SetName  string
	Primary  address.Address
	Duration time.Duration
}

// RefreshFailedEvent is published after a refresh in which no member answered.
type RefreshFailedEvent struct {
	SetID    string
	SetName  string
	Failure  error
	Duration time.Duration
}

// ServerDescriptionChangedEvent represents a change in one member's role.
type ServerDescriptionChangedEvent struct {
	SetID               string
	Address             address.Address
	PreviousDescription description.Server
	NewDescription      description.Server
}

// TopologyMonitor represents a monitor that is triggered for refresh events.
type TopologyMonitor struct {
	RefreshStarted           func(*RefreshStartedEvent)
	RefreshSucceeded         func(*RefreshSucceededEvent)
	RefreshFailed            func(*RefreshFailedEvent)
	ServerDescriptionChanged func(*ServerDescriptionChangedEvent)
}
