package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("warn", &buf)

	l.Info("hidden %d", 1)
	require.Empty(t, buf.String())

	l.Warn("shown %d", 2)
	require.Contains(t, buf.String(), "shown 2")
}

func TestLoggerNamedCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("debug", &buf).Named("auth")

	l.Debug("token refreshed")
	out := buf.String()
	require.True(t, strings.Contains(out, `"component":"auth"`), out)
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	l := NewLoggerWithWriter("error", &bytes.Buffer{})
	l.SetLevel("verbose")
	require.Equal(t, ERROR, l.GetLevel())
	l.SetLevel("DEBUG")
	require.Equal(t, DEBUG, l.GetLevel())
	require.Equal(t, "DEBUG", l.GetLevel().String())
}
