// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"os"
	"strings"
)

// Keys used in log messages.
const (
	KeyMessage            = "message"
	KeyServerHost         = "serverHost"
	KeyServerPort         = "serverPort"
	KeyDriverConnectionID = "driverConnectionId"
	KeyFailure            = "failure"
	KeyReason             = "reason"
	KeyDurationMS         = "durationMS"
	KeySetID              = "setId"
	KeySetName            = "replicaSet"
	KeyLinkID             = "linkId"
	KeyOperation          = "operation"
	KeyMembers            = "members"
	KeyConnected          = "connected"
)

// KeyValues is a list of key-value pairs.
type KeyValues []interface{}

// Add adds a key-value pair to an instance of a KeyValues list.
func (kvs *KeyValues) Add(key string, value interface{}) {
	*kvs = append(*kvs, key, value)
}

// Component is an enumeration representing the "components" which can be
// logged against. A Level can be configured on a per-component basis.
type Component int

const (
	// ComponentAll enables logging for all components.
	ComponentAll Component = iota

	// ComponentTopology enables topology refresh logging.
	ComponentTopology

	// ComponentServerSelection enables read/write target selection logging.
	ComponentServerSelection

	// ComponentConnection enables connection pool logging.
	ComponentConnection
)

const (
	envVarAll             = "RSLINK_LOG_ALL"
	envVarTopology        = "RSLINK_LOG_TOPOLOGY"
	envVarServerSelection = "RSLINK_LOG_SERVER_SELECTION"
	envVarConnection      = "RSLINK_LOG_CONNECTION"
)

var componentEnvVarMap = map[string]Component{
	envVarAll:             ComponentAll,
	envVarTopology:        ComponentTopology,
	envVarServerSelection: ComponentServerSelection,
	envVarConnection:      ComponentConnection,
}

// ParseComponent maps a configuration name ("all", "topology",
// "serverSelection", "connection") to a Component.
func ParseComponent(name string) (Component, bool) {
	switch strings.ToLower(name) {
	case "all":
		return ComponentAll, true
	case "topology":
		return ComponentTopology, true
	case "serverselection", "server_selection":
		return ComponentServerSelection, true
	case "connection":
		return ComponentConnection, true
	}
	return 0, false
}

// EnvHasComponentVariables returns true if the environment contains any of
// the component environment variables.
func EnvHasComponentVariables() bool {
	for envVar := range componentEnvVarMap {
		if os.Getenv(envVar) != "" {
			return true
		}
	}

	return false
}

// getEnvComponentLevels returns a component-to-level mapping defined by the
// environment variables, with "RSLINK_LOG_ALL" taking priority.
func getEnvComponentLevels() map[Component]Level {
	componentLevels := make(map[Component]Level)

	globalLevel := ParseLevel(os.Getenv(envVarAll))

	for envVar, component := range componentEnvVarMap {
		if component == ComponentAll {
			continue
		}

		level := globalLevel
		if globalLevel == LevelOff {
			level = ParseLevel(os.Getenv(envVar))
		}

		componentLevels[component] = level
	}

	return componentLevels
}

// selectComponentLevels returns a new map of components to levels. Explicit
// levels take priority over the environment; ComponentAll fans out to every
// component that has no level of its own.
func selectComponentLevels(componentLevels map[Component]Level) map[Component]Level {
	selected := make(map[Component]Level)

	if len(componentLevels) == 0 {
		return getEnvComponentLevels()
	}

	all, hasAll := componentLevels[ComponentAll]
	for _, component := range componentEnvVarMap {
		if component == ComponentAll {
			continue
		}
		if level, ok := componentLevels[component]; ok {
			selected[component] = level
			continue
		}
		if hasAll {
			selected[component] = all
		}
	}

	return selected
}
