// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package link

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotReplicaSet is returned when a read target is requested from a
	// link that is not connected to a replica set.
	ErrNotReplicaSet = errors.New("connection is not a replica set")

	// ErrNoReadableServer is returned when no secondary could be connected.
	ErrNoReadableServer = errors.New("could not find any server to read from")

	// ErrNoMaster is returned when the primary cannot be determined.
	ErrNoMaster = errors.New("couldn't determine master")
)

// ConnectionFailedError is returned when every connection attempt of a
// reconnection sweep failed. Message holds the first failure in member order.
type ConnectionFailedError struct {
	Message string
	Wrapped error
}

func (e ConnectionFailedError) Error() string {
	if e.Message == "" {
		return "connection failed"
	}
	return "connecting failed: " + e.Message
}

// Unwrap returns the first underlying connection error.
func (e ConnectionFailedError) Unwrap() error {
	return e.Wrapped
}

// sweepResult folds the outcomes of a sweep. One success makes the sweep
// successful; only the first failure is kept.
type sweepResult struct {
	connected bool
	first     error
}

func (r *sweepResult) add(err error) {
	if err == nil {
		r.connected = true
		return
	}
	if r.first == nil {
		r.first = err
	}
}

func (r *sweepResult) err() error {
	if r.connected {
		return nil
	}
	if r.first == nil {
		return ConnectionFailedError{}
	}
	return ConnectionFailedError{Message: r.first.Error(), Wrapped: r.first}
}
