// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import "strings"

// DiffToInfo is the number of levels that come before the "Info" level. This
// ensures that "Info" is the 0th level passed to the sink.
const DiffToInfo = 1

// Level is an enumeration representing the supported log severity levels.
//
// The order of the logging levels is important. Sinks are expected to treat
// 0 as the info level, so any addition before LevelInfo must update
// DiffToInfo.
type Level int

const (
	// LevelOff suppresses logging.
	LevelOff Level = iota

	// LevelInfo enables logging of informational messages. These logs are
	// high-level information about normal behavior, e.g. a refresh failing
	// and being ignored.
	LevelInfo

	// LevelDebug enables logging of debug messages. These logs can be
	// voluminous, e.g. every connection checked out of the pool.
	LevelDebug
)

// LevelLiteral are the logging levels accepted from environment variables and
// configuration files.
type LevelLiteral string

// LevelLiteral constants.
const (
	LevelLiteralOff       LevelLiteral = "off"
	LevelLiteralEmergency LevelLiteral = "emergency"
	LevelLiteralAlert     LevelLiteral = "alert"
	LevelLiteralCritical  LevelLiteral = "critical"
	LevelLiteralError     LevelLiteral = "error"
	LevelLiteralWarning   LevelLiteral = "warn"
	LevelLiteralNotice    LevelLiteral = "notice"
	LevelLiteralInfo      LevelLiteral = "info"
	LevelLiteralDebug     LevelLiteral = "debug"
	LevelLiteralTrace     LevelLiteral = "trace"
)

var allLevelLiterals = []LevelLiteral{
	LevelLiteralOff,
	LevelLiteralEmergency,
	LevelLiteralAlert,
	LevelLiteralCritical,
	LevelLiteralError,
	LevelLiteralWarning,
	LevelLiteralNotice,
	LevelLiteralInfo,
	LevelLiteralDebug,
	LevelLiteralTrace,
}

// Level returns the Level associated with the literal. Severities above
// notice collapse to LevelInfo, trace collapses to LevelDebug.
func (ll LevelLiteral) Level() Level {
	switch ll {
	case LevelLiteralEmergency, LevelLiteralAlert, LevelLiteralCritical,
		LevelLiteralError, LevelLiteralWarning, LevelLiteralNotice, LevelLiteralInfo:
		return LevelInfo
	case LevelLiteralDebug, LevelLiteralTrace:
		return LevelDebug
	default:
		return LevelOff
	}
}

// ParseLevel returns the Level for a case-insensitive literal. The default is
// LevelOff.
func ParseLevel(str string) Level {
	for _, ll := range allLevelLiterals {
		if strings.EqualFold(string(ll), str) {
			return ll.Level()
		}
	}

	return LevelOff
}

// IsLevelLiteral reports whether str is one of the accepted level literals,
// ignoring case.
func IsLevelLiteral(str string) bool {
	for _, ll := range allLevelLiterals {
		if strings.EqualFold(string(ll), str) {
			return true
		}
	}
	return false
}
