package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextCarriesNamedLogger checks that WithName and WithKV decorate the context logger.
func TestContextCarriesNamedLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx := ToContext(context.Background(), New(zapcore.DebugLevel, &buf))
	ctx = WithName(ctx, "fetch")
	ctx = WithKV(ctx, "url", "https://example.com/a.zip")

	InfoKV(ctx, "Downloading", "attempt", 1)

	out := buf.String()
	require.Contains(t, out, "fetch")
	require.Contains(t, out, "Downloading")
	require.Contains(t, out, "https://example.com/a.zip")
}

// TestFromContextFallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, global, FromContext(context.Background()))
}

// TestHelpersRespectLevel drops messages below the logger level.
func TestHelpersRespectLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx := ToContext(context.Background(), New(zapcore.InfoLevel, &buf))

	Debug(ctx, "cmake output")
	DebugKV(ctx, "Skipping entry", "name", "link")
	require.Empty(t, buf.String())

	WarnKV(ctx, "Unable to remove run marker", "path", "/tmp/x")
	require.Contains(t, buf.String(), "WARN")
	require.Contains(t, buf.String(), "/tmp/x")
}
