package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVerbosityMapsCountToLevel(t *testing.T) {
	t.Cleanup(func() { SetVerbosity(0) })

	cases := map[int]string{-3: "warn", 0: "warn", 1: "info", 2: "debug", 3: "trace", 9: "trace"}
	for count, want := range cases {
		SetVerbosity(count)
		assert.Equal(t, want, LevelName(), "count=%d", count)
	}
	SetVerbosity(9)
	assert.Equal(t, 4, Verbosity())
}

func TestParseLevel(t *testing.T) {
	lvl, count, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lvl)
	assert.Equal(t, 2, count)

	lvl, count, err = ParseLevel("Warning")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, lvl)
	assert.Equal(t, 0, count)

	lvl, count, err = ParseLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, LevelTrace, lvl)
	assert.Equal(t, 4, count)

	_, _, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestComponentLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetVerbosity(0)
	})

	SetVerbosity(0)
	log := Component("worker")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	Infof("also hidden %d", 1)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "component=worker")

	SetVerbosity(1)
	Infof("now visible %d", 2)
	assert.Contains(t, buf.String(), "now visible 2")
}
