package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(WithLogLevel("loud"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level=loud")
}

func TestNewLogger_InvalidEncoding(t *testing.T) {
	_, err := NewLogger(WithEncoding("xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zap.Build")
}

func TestNewLogger_WritesJSONAtLevel(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.log")

	zl, err := NewLogger(WithLogLevel("warn"), WithOutputPaths(out))
	require.NoError(t, err)

	zl.Info("dropped")
	zl.Warn("kept")
	require.NoError(t, zl.Sync())

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	s := string(b)
	assert.NotContains(t, s, "dropped")
	assert.Contains(t, s, `"msg":"kept"`)
	assert.True(t, strings.HasPrefix(s, "{"))
}

func TestMust_Panics(t *testing.T) {
	assert.Panics(t, func() {
		Must(NewLogger(WithLogLevel("nope")))
	})
}

func TestNewLogger_ConsoleToSeveralOutputs(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "b.log")

	zl, err := NewLogger(WithEncoding("console"), WithOutputPaths(strings.Split(a+","+b, ",")...))
	require.NoError(t, err)

	zl.Info("hello")
	require.NoError(t, zl.Sync())

	for _, p := range []string{a, b} {
		got, err := os.ReadFile(p)
		require.NoError(t, err)
		s := string(got)
		assert.Contains(t, s, "\tinfo\thello")
		assert.False(t, strings.HasPrefix(s, "{"), "console lines are not json")
	}
}
