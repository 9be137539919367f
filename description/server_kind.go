// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package description

import "strings"

// ServerKind represents the type of a server.
type ServerKind uint32

// These constants are the possible types of servers.
const (
	Unknown     ServerKind = 0
	Standalone  ServerKind = 1
	RSMember    ServerKind = 2
	RSPrimary   ServerKind = 4 + RSMember
	RSSecondary ServerKind = 8 + RSMember
	RSArbiter   ServerKind = 16 + RSMember
	RSGhost     ServerKind = 32 + RSMember
)

// String implements the fmt.Stringer interface.
func (kind ServerKind) String() string {
	switch kind {
	case Standalone:
		return "Standalone"
	case RSMember:
		return "RSOther"
	case RSPrimary:
		return "RSPrimary"
	case RSSecondary:
		return "RSSecondary"
	case RSArbiter:
		return "RSArbiter"
	case RSGhost:
		return "RSGhost"
	}

	return "Unknown"
}

// IsReplicaSetMember reports whether the kind belongs to a replica set.
func (kind ServerKind) IsReplicaSetMember() bool {
	return kind&RSMember != 0
}

// ParseServerKind maps a role name to a ServerKind. It accepts the String
// forms as well as the short names "primary", "secondary", "arbiter",
// "standalone" and "other". Unrecognized names map to Unknown.
func ParseServerKind(s string) ServerKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standalone":
		return Standalone
	case "primary", "master", "rsprimary":
		return RSPrimary
	case "secondary", "slave", "rssecondary":
		return RSSecondary
	case "arbiter", "rsarbiter":
		return RSArbiter
	case "ghost", "rsghost":
		return RSGhost
	case "other", "rsother", "member":
		return RSMember
	}
	return Unknown
}
