// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package description holds the role information a heartbeat reports about
// replica set members.
package description

import (
	"fmt"
	"time"

	"github.com/ikmak/rslink/address"
)

// Server represents a description of a server as reported by one heartbeat.
type Server struct {
	Addr address.Address

	AverageRTT     time.Duration
	CanonicalAddr  address.Address
	Kind           ServerKind
	LastError      error
	LastUpdateTime time.Time
	Members        []address.Address
	SetName        string
}

// NewServerFromError creates a description for a server that could not be
// reached or answered with an error.
func NewServerFromError(addr address.Address, err error) Server {
	return Server{
		Addr:           addr,
		Kind:           Unknown,
		LastError:      err,
		LastUpdateTime: time.Now().UTC(),
	}
}

// String implements the fmt.Stringer interface.
func (s Server) String() string {
	str := fmt.Sprintf("Addr: %s, Type: %s", s.Addr, s.Kind)
	if s.SetName != "" {
		str += fmt.Sprintf(", Set: %s", s.SetName)
	}
	if s.AverageRTT > 0 {
		str += fmt.Sprintf(", Average RTT: %d", s.AverageRTT)
	}
	if s.LastError != nil {
		str += fmt.Sprintf(", Last error: %s", s.LastError)
	}
	return str
}
