package notify

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volume-watcher/internal/core"
	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
)

func TestLogSinkTracksVisibleNotifications(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	logging.SetVerbosity(1)
	t.Cleanup(func() {
		logging.SetOutput(os.Stderr)
		logging.SetVerbosity(0)
	})

	sink := NewLogSink()
	require.NoError(t, sink.Show(core.OngoingNotification()))
	require.NoError(t, sink.Show(domain.NotificationDescriptor{ID: domain.NotificationVolumeLevel, Title: "Media volume", Text: "Volume 3"}))
	require.NoError(t, sink.Cancel(domain.NotificationOutputDevice))

	visible := sink.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, domain.NotificationOngoing, visible[0].ID)
	assert.Contains(t, buf.String(), "Media volume: Volume 3")
	assert.NotContains(t, buf.String(), "notification cancelled")

	require.NoError(t, sink.Cancel(domain.NotificationVolumeLevel))
	assert.Len(t, sink.Visible(), 1)
	assert.Contains(t, buf.String(), "notification cancelled")
}

func TestCommandForAction(t *testing.T) {
	cmd, ok := commandFor(domain.ActionDismissForceMute)
	assert.True(t, ok)
	assert.Equal(t, core.CommandDismissForceMute, cmd)

	_, ok = commandFor("snooze")
	assert.False(t, ok)
}
