// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package logger provides the component/level logger used by the pool, the
// topology refresher and the link manager.
package logger

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LogSink represents a logging implementation. It is specifically designed to
// be a subset of go-logr/logr's LogSink interface.
type LogSink interface {
	// Info logs a non-error message with the given key/value pairs. The
	// level argument is provided for optional logging.
	Info(level int, msg string, keysAndValues ...interface{})

	// Error logs an error, with the given message and key/value pairs.
	Error(err error, msg string, keysAndValues ...interface{})
}

// Logger represents the configuration for the internal logger. A nil *Logger
// is valid and discards everything.
type Logger struct {
	ComponentLevels map[Component]Level
	Sink            LogSink
}

// New will construct a new logger. If any of the given options are the zero
// value, the argument will be sourced from the environment. A nil sink logs
// through the logrus standard logger.
func New(sink LogSink, componentLevels map[Component]Level) (*Logger, error) {
	if sink == nil {
		sink = NewLogrusSink(logrus.StandardLogger())
	}

	for component, level := range componentLevels {
		if level < LevelOff || level > LevelDebug {
			return nil, errors.Errorf("invalid level %d for component %d", level, component)
		}
	}

	return &Logger{
		ComponentLevels: selectComponentLevels(componentLevels),
		Sink:            sink,
	}, nil
}

// LevelComponentEnabled will return true if the given Level is enabled for the
// given Component.
func (logger *Logger) LevelComponentEnabled(level Level, component Component) bool {
	if logger == nil || logger.Sink == nil || level == LevelOff {
		return false
	}

	return logger.ComponentLevels[component] >= level
}

// Print prints a log message to the sink if the level is enabled for the
// component.
func (logger *Logger) Print(level Level, component Component, msg string, keysAndValues ...interface{}) {
	if !logger.LevelComponentEnabled(level, component) {
		return
	}

	logger.Sink.Info(int(level)-DiffToInfo, msg, keysAndValues...)
}

// Error logs an error if info logging is enabled for the component.
func (logger *Logger) Error(component Component, err error, msg string, keysAndValues ...interface{}) {
	if !logger.LevelComponentEnabled(LevelInfo, component) {
		return
	}

	logger.Sink.Error(err, msg, keysAndValues...)
}
