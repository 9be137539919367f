// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pool

import (
	"fmt"

	"github.com/ikmak/rslink/address"
)

// ErrPoolClosed is returned from an attempt to use a closed pool.
var ErrPoolClosed = PoolError("pool is closed")

// ErrSizeLargerThanCapacity is returned from an attempt to create a pool with
// an idle size larger than the per-server capacity.
var ErrSizeLargerThanCapacity = PoolError("size is larger than capacity")

// ErrConnectionClosed is returned from an attempt to return or use a
// connection that is no longer checked out.
var ErrConnectionClosed = PoolError("connection is closed")

// PoolError is an error returned from a Pool method.
type PoolError string

func (pe PoolError) Error() string { return string(pe) }

// ConnectionError represents a failure to establish a connection to a server.
type ConnectionError struct {
	Address      address.Address
	ConnectionID uint64
	Wrapped      error

	message string
}

// Error implements the error interface.
func (e ConnectionError) Error() string {
	if e.Wrapped != nil && e.message != "" {
		return fmt.Sprintf("connection(%s) %s: %s", e.Address, e.message, e.Wrapped.Error())
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("connection(%s) %s", e.Address, e.Wrapped.Error())
	}
	return fmt.Sprintf("connection(%s) %s", e.Address, e.message)
}

// Unwrap returns the underlying error.
func (e ConnectionError) Unwrap() error {
	return e.Wrapped
}
