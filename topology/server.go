// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"fmt"
	"time"

	"github.com/ikmak/rslink/address"
	"github.com/ikmak/rslink/description"
)

// Server is one member of a ServerSet as the registry currently sees it.
// Whether the member is connected is owned by the connection pool, not by
// this record.
type Server struct {
	Addr       address.Address
	Kind       description.ServerKind
	SetName    string
	LastError  error
	LastUpdate time.Time
}

// IsPrimary reports whether the member was last seen as the primary.
func (s Server) IsPrimary() bool { return s.Kind == description.RSPrimary }

// IsSecondary reports whether the member was last seen as a secondary.
func (s Server) IsSecondary() bool { return s.Kind == description.RSSecondary }

func (s Server) String() string {
	if s.LastError != nil {
		return fmt.Sprintf("%s (%s: %v)", s.Addr, s.Kind, s.LastError)
	}
	return fmt.Sprintf("%s (%s)", s.Addr, s.Kind)
}

func serverFromDescription(desc description.Server) Server {
	updated := desc.LastUpdateTime
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return Server{
		Addr:       desc.Addr,
		Kind:       desc.Kind,
		SetName:    desc.SetName,
		LastError:  desc.LastError,
		LastUpdate: updated,
	}
}
