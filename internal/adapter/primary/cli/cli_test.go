package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volume-watcher/internal/adapter/secondary/repository"
	"volume-watcher/internal/domain"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigSetAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	out, err := runRoot(t, "--config", path, "config", "set",
		"forceMute.enabled=true", "forceMute.fromMinute=22:00", "forceMute.toMinute=06:30")
	require.NoError(t, err)
	assert.Contains(t, out, "window=22:00-06:30")

	out, err = runRoot(t, "--config", path, "config", "get")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, true, got["forceMute.enabled"])
	assert.Equal(t, "22:00", got["forceMute.fromMinute"])
	assert.Equal(t, "06:30", got["forceMute.toMinute"])

	_, err = runRoot(t, "--config", path, "config", "set", "bogus=1")
	assert.ErrorIs(t, err, domain.ErrUnknownKey)

	_, err = runRoot(t, "--config", path, "config", "set", "noequals")
	assert.Error(t, err)
}

func TestScheduleListsAlarms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	_, err := runRoot(t, "--config", path, "config", "set",
		"forceMute.enabled=true", "forceMute.fromMinute=23:00", "forceMute.toMinute=07:00")
	require.NoError(t, err)

	out, err := runRoot(t, "--config", path, "schedule")
	require.NoError(t, err)
	assert.Contains(t, out, string(domain.AlarmWindowStart))
	assert.Contains(t, out, string(domain.AlarmWindowEnd))
}

func TestParseAssignments(t *testing.T) {
	fields, err := parseAssignments([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "x=y"}, fields)

	_, err = parseAssignments([]string{"=1"})
	assert.Error(t, err)
}

func newTestSimulator(t *testing.T) (*simulator, *bytes.Buffer) {
	t.Helper()
	repo, err := repository.NewFileRepository(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)
	var out bytes.Buffer
	sim, err := newSimulator(repo, time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local), &out)
	require.NoError(t, err)
	t.Cleanup(sim.Close)
	return sim, &out
}

func TestSimulatorForceMuteWindow(t *testing.T) {
	sim, out := newTestSimulator(t)

	require.NoError(t, sim.Exec([]string{"start"}))
	require.NoError(t, sim.Exec([]string{"set", "forceMute.enabled=true", "forceMute.fromMinute=22:00", "forceMute.toMinute=06:00"}))
	assert.Len(t, sim.uc.Status().Worker.Alarms, 2)

	require.NoError(t, sim.Exec([]string{"at", "22:00"}))
	require.Eventually(t, func() bool {
		return sim.device.Mutes() == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		w := sim.uc.Status().Worker
		return w != nil && w.Monitor.ForceMuteActive
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sim.Exec([]string{"status"}))
	assert.Contains(t, out.String(), "service:  running")
	assert.Contains(t, out.String(), "active=true")
}

func TestSimulatorSkipsWholeWindow(t *testing.T) {
	sim, _ := newTestSimulator(t)

	require.NoError(t, sim.Exec([]string{"start"}))
	require.NoError(t, sim.Exec([]string{"set", "forceMute.enabled=true", "forceMute.fromMinute=22:00", "forceMute.toMinute=06:00"}))
	require.NoError(t, sim.Exec([]string{"advance", "20h"}))

	nextStart := time.Date(2024, 6, 2, 22, 0, 0, 0, time.Local)
	require.Eventually(t, func() bool {
		w := sim.uc.Status().Worker
		return w != nil && len(w.Alarms) == 2 && w.Alarms[0].Trigger.Equal(nextStart)
	}, time.Second, 5*time.Millisecond)

	w := sim.uc.Status().Worker
	assert.False(t, w.Monitor.ForceMuteActive)
	assert.Zero(t, sim.device.Mutes())
}

func TestSimulatorRestartAfterKill(t *testing.T) {
	sim, _ := newTestSimulator(t)

	require.NoError(t, sim.Exec([]string{"start"}))
	require.NoError(t, sim.Exec([]string{"kill", "oom"}))
	st := sim.uc.Status()
	assert.Equal(t, domain.StateStopped, st.State)
	assert.True(t, st.RestartPending)
	assert.Equal(t, "oom", st.LastTermination)

	require.NoError(t, sim.Exec([]string{"advance", "3s"}))
	assert.Equal(t, domain.StateRunning, sim.uc.Status().State)
}

func TestSimulatorDeviceCommands(t *testing.T) {
	sim, _ := newTestSimulator(t)
	require.NoError(t, sim.Exec([]string{"start"}))

	require.NoError(t, sim.Exec([]string{"volume", "8"}))
	require.NoError(t, sim.Exec([]string{"headset", "on"}))
	require.Eventually(t, func() bool {
		w := sim.uc.Status().Worker
		return w != nil && w.Monitor.VolumeLevel == 8 && w.Monitor.HeadsetConnected
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, sim.Exec([]string{"headset", "maybe"}))
	assert.Error(t, sim.Exec([]string{"volume"}))
	assert.Error(t, sim.Exec([]string{"nonsense"}))
}
