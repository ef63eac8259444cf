// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-core/env/mocks"
	"github.com/stacklok/toolhive-core/logging"
)

func TestUnstructuredLogsCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"Default Case", "", true},
		{"Explicitly True", "true", true},
		{"Explicitly False", "false", false},
		{"Invalid Value", "not-a-bool", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			mockEnv := mocks.NewMockReader(ctrl)
			mockEnv.EXPECT().Getenv(UnstructuredLogsEnv).Return(tt.envValue)

			assert.Equal(t, tt.expected, unstructuredLogsWithEnv(mockEnv))
		})
	}
}

func TestLevelWithEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		envValue  string
		wantLevel slog.Level
		wantOK    bool
	}{
		{"unset", "", 0, false},
		{"debug", "debug", slog.LevelDebug, true},
		{"warn upper case", "WARN", slog.LevelWarn, true},
		{"garbage", "loud", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			mockEnv := mocks.NewMockReader(ctrl)
			mockEnv.EXPECT().Getenv(LogLevelEnv).Return(tt.envValue)

			level, ok := levelWithEnv(mockEnv)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantLevel, level)
		})
	}
}

func setSingletonForTest(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := singleton.Load()
	prevDefault := slog.Default()
	singleton.Store(l)
	t.Cleanup(func() {
		singleton.Store(prev)
		slog.SetDefault(prevDefault)
	})
}

func TestLogLevels(t *testing.T) { //nolint:paralleltest // mutates singleton
	tests := []struct {
		name     string
		logFn    func()
		contains string
	}{
		{"Debug", func() { Debug("debug msg") }, "debug msg"},
		{"Debugw", func() { Debugw("debug kv", "key", "val") }, "debug kv"},
		{"Info", func() { Info("info msg") }, "info msg"},
		{"Infof", func() { Infof("info %s", "formatted") }, "info formatted"},
		{"Infow", func() { Infow("info kv", "key", "val") }, "info kv"},
		{"Warnw", func() { Warnw("warn kv", "key", "val") }, "warn kv"},
		{"Errorf", func() { Errorf("error %s", "formatted") }, "error formatted"},
		{"Errorw", func() { Errorw("error kv", "key", "val") }, "error kv"},
	}

	for _, tc := range tests { //nolint:paralleltest // mutates singleton
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := logging.New(
				logging.WithOutput(&buf),
				logging.WithLevel(slog.LevelDebug),
			)
			setSingletonForTest(t, l)

			tc.logFn()

			assert.Contains(t, buf.String(), tc.contains)
		})
	}
}

func TestSetUpdatesDefault(t *testing.T) { //nolint:paralleltest // mutates singleton
	var buf bytes.Buffer
	l := logging.New(logging.WithOutput(&buf))
	setSingletonForTest(t, slog.Default())

	Set(l)
	require.Same(t, l, Get())

	slog.Info("through slog default")
	assert.Contains(t, buf.String(), "through slog default")
}
