// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogrusSink writes log messages to a logrus logger, turning key/value pairs
// into structured fields.
type LogrusSink struct {
	log logrus.FieldLogger
}

// Compile-time check to ensure LogrusSink implements the LogSink interface.
var _ LogSink = &LogrusSink{}

// NewLogrusSink will create a new LogrusSink writing to l.
func NewLogrusSink(l logrus.FieldLogger) *LogrusSink {
	return &LogrusSink{log: l}
}

// Info writes msg at logrus info level for level 0 and at debug level for
// anything more verbose.
func (s *LogrusSink) Info(level int, msg string, keysAndValues ...interface{}) {
	entry := s.log.WithFields(fields(keysAndValues))
	if level <= 0 {
		entry.Info(msg)
		return
	}
	entry.Debug(msg)
}

// Error writes msg with err attached at logrus error level.
func (s *LogrusSink) Error(err error, msg string, keysAndValues ...interface{}) {
	s.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}
