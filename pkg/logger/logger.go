// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger holds the process-wide slog logger used by the authrelay
// binary. It is a thin layer over toolhive-core/logging; library packages log
// through log/slog directly and callers that need a handle use [Get].
package logger

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-core/env"
	"github.com/stacklok/toolhive-core/logging"
)

const (
	// UnstructuredLogsEnv selects text output when true (the default) and JSON otherwise.
	UnstructuredLogsEnv = "UNSTRUCTURED_LOGS"

	// LogLevelEnv overrides the level, e.g. "debug" or "warn".
	LogLevelEnv = "AUTHRELAY_LOG_LEVEL"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(logging.New())
}

func get() *slog.Logger {
	return singleton.Load()
}

// Get returns the underlying *slog.Logger for injection into structs.
func Get() *slog.Logger {
	return get()
}

// Set replaces the process logger and makes it the slog default.
func Set(l *slog.Logger) {
	singleton.Store(l)
	slog.SetDefault(l)
}

// Debug logs a message at debug level.
func Debug(msg string) {
	get().Debug(msg)
}

// Debugw logs a message at debug level with key-value pairs.
func Debugw(msg string, keysAndValues ...any) {
	get().Debug(msg, keysAndValues...)
}

// Info logs a message at info level.
func Info(msg string) {
	get().Info(msg)
}

// Infof logs a formatted message at info level.
func Infof(msg string, args ...any) {
	get().Info(fmt.Sprintf(msg, args...))
}

// Infow logs a message at info level with key-value pairs.
func Infow(msg string, keysAndValues ...any) {
	get().Info(msg, keysAndValues...)
}

// Warnw logs a message at warning level with key-value pairs.
func Warnw(msg string, keysAndValues ...any) {
	get().Warn(msg, keysAndValues...)
}

// Errorf logs a formatted message at error level.
func Errorf(msg string, args ...any) {
	get().Error(fmt.Sprintf(msg, args...))
}

// Errorw logs a message at error level with key-value pairs.
func Errorw(msg string, keysAndValues ...any) {
	get().Error(msg, keysAndValues...)
}

// Initialize configures the process logger from the OS environment and viper.
func Initialize() {
	InitializeWithEnv(&env.OSReader{})
}

// InitializeWithEnv configures the process logger using envReader for
// environment lookups so tests can inject values.
func InitializeWithEnv(envReader env.Reader) {
	var opts []logging.Option

	if unstructuredLogsWithEnv(envReader) {
		opts = append(opts, logging.WithFormat(logging.FormatText))
	}

	if level, ok := levelWithEnv(envReader); ok {
		opts = append(opts, logging.WithLevel(level))
	}

	Set(logging.New(opts...))
}

func unstructuredLogsWithEnv(envReader env.Reader) bool {
	unstructuredLogs, err := strconv.ParseBool(envReader.Getenv(UnstructuredLogsEnv))
	if err != nil {
		// unset or unparsable: keep the human-friendly default
		return true
	}
	return unstructuredLogs
}

// levelWithEnv resolves the log level. --debug wins over the environment.
func levelWithEnv(envReader env.Reader) (slog.Level, bool) {
	if viper.GetBool("debug") {
		return slog.LevelDebug, true
	}
	raw := strings.TrimSpace(envReader.Getenv(LogLevelEnv))
	if raw == "" {
		return 0, false
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, false
	}
	return level, true
}
