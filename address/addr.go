// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package address provides the identity of a replica set member.
package address

import (
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the port assumed when an address omits one.
const DefaultPort = 27017

// Address is a network address. It can be either an IP address or a DNS name.
type Address string

// Network is the network protocol for this address. In most cases this will be
// "tcp" or "unix".
func (a Address) Network() string {
	if strings.HasSuffix(string(a), "sock") {
		return "unix"
	}
	return "tcp"
}

// String is the canonical version of this address, e.g. localhost:27017,
// 1.2.3.4:27017, example.com:27017.
func (a Address) String() string {
	// TODO: unicode case folding?
	s := strings.ToLower(string(a))
	if len(s) == 0 {
		return ""
	}
	if a.Network() != "unix" {
		_, _, err := net.SplitHostPort(s)
		if err != nil && strings.Contains(err.Error(), "missing port in address") {
			s += ":" + strconv.Itoa(DefaultPort)
		}
	}

	return s
}

// Canonicalize creates a canonicalized address.
func (a Address) Canonicalize() Address {
	return Address(a.String())
}

// Host returns the host part of the canonical address.
func (a Address) Host() string {
	if a.Network() == "unix" {
		return string(a)
	}
	host, _, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	return host
}

// Port returns the port part of the canonical address, or 0 for unix sockets
// and unparsable addresses.
func (a Address) Port() int {
	if a.Network() == "unix" {
		return 0
	}
	_, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return 0
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return p
}

// New builds an address from a host and port.
func New(host string, port int) Address {
	if port <= 0 {
		port = DefaultPort
	}
	return Address(net.JoinHostPort(host, strconv.Itoa(port))).Canonicalize()
}

// Parse canonicalizes every entry of a seed list, dropping empty entries and
// duplicates while keeping the first occurrence's position.
func Parse(hosts ...string) []Address {
	seen := make(map[Address]struct{}, len(hosts))
	addrs := make([]Address, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		a := Address(h).Canonicalize()
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		addrs = append(addrs, a)
	}
	return addrs
}
