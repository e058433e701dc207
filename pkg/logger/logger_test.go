// Copyright 2025 MassGen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevelRecognizesKnownNames(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelInfo, ParseLevel("INFO"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
}

func TestParseLevelFallsBackToWarnOnUnknown(t *testing.T) {
	require.Equal(t, slog.LevelWarn, ParseLevel("not-a-level"))
}

func TestNewReturnsUsableLoggerAtEachLevel(t *testing.T) {
	for _, lvl := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		l := New(lvl, os.Stderr)
		require.NotNil(t, l)
		l.Info("test message", "level", lvl.String())
	}
}

func TestFilteringHandlerSuppressesBelowConfiguredLevel(t *testing.T) {
	h := &filteringHandler{handler: slog.NewTextHandler(os.Stderr, nil), minLevel: slog.LevelError}
	require.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestLevelColorCoversAllTiers(t *testing.T) {
	require.Equal(t, colorRed, levelColor(slog.LevelError))
	require.Equal(t, colorYellow, levelColor(slog.LevelWarn))
	require.Equal(t, colorBlue, levelColor(slog.LevelInfo))
	require.Equal(t, colorGray, levelColor(slog.LevelDebug))
}
