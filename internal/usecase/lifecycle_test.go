package usecase

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"volume-watcher/internal/adapter/secondary/alarm"
	"volume-watcher/internal/adapter/secondary/broadcast"
	"volume-watcher/internal/adapter/secondary/notify"
	"volume-watcher/internal/adapter/secondary/repository"
	"volume-watcher/internal/adapter/secondary/volume"
	"volume-watcher/internal/clock"
	"volume-watcher/internal/core"
	"volume-watcher/internal/domain"
)

type fixture struct {
	clock  *clock.MockClock
	repo   *repository.FileRepository
	device *volume.MemoryDevice
	sink   *notify.LogSink
	hub    *broadcast.Hub
	ctrl   LifecycleUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := repository.NewFileRepository(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	f := &fixture{
		clock:  clock.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)),
		repo:   repo,
		device: volume.NewMemoryDevice(5),
		sink:   notify.NewLogSink(),
		hub:    broadcast.NewHub(),
	}
	ctrl, err := NewLifecycleController(Deps{
		Repo:        repo,
		Audio:       f.device,
		Calls:       f.device,
		Sink:        f.sink,
		Alarms:      alarm.NewTimerAlarms(f.clock),
		Broadcaster: f.hub,
		Sources:     []domain.SignalSource{f.device},
		Clock:       f.clock,
	})
	require.NoError(t, err)
	f.ctrl = ctrl
	t.Cleanup(ctrl.Close)
	return f
}

func (f *fixture) settings(t *testing.T) domain.Settings {
	t.Helper()
	s, err := f.repo.Load()
	require.NoError(t, err)
	return s
}

func TestStartAndUserStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	events, unsubscribe := f.hub.Subscribe()
	defer unsubscribe()

	require.NoError(t, f.ctrl.Start())
	assert.ErrorIs(t, f.ctrl.Start(), domain.ErrAlreadyRunning)

	status := f.ctrl.Status()
	assert.Equal(t, domain.StateRunning, status.State)
	require.NotNil(t, status.Worker)
	assert.Equal(t, 5, status.Worker.Monitor.VolumeLevel, "initial read")
	assert.True(t, f.settings(t).ServiceEnabled)
	assert.NotEmpty(t, f.sink.Visible())
	assert.Equal(t, domain.LifecycleStarted, <-events)

	require.NoError(t, f.ctrl.Stop(true))
	status = f.ctrl.Status()
	assert.Equal(t, domain.StateStopped, status.State)
	assert.Nil(t, status.Worker)
	assert.False(t, f.settings(t).ServiceEnabled)
	assert.Empty(t, f.sink.Visible())
	assert.Equal(t, domain.LifecycleStopped, <-events)

	assert.ErrorIs(t, f.ctrl.Stop(true), domain.ErrNotRunning)
	assert.ErrorIs(t, f.ctrl.Dispatch(core.Event{Type: core.EventCallStateChanged, Data: core.CallStateChangedData{Active: true}}), domain.ErrNotRunning)
}

func TestNoRestartAfterUserStop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Start())
	require.NoError(t, f.ctrl.Stop(true))

	f.ctrl.Terminate(errors.New("task removed"))

	status := f.ctrl.Status()
	assert.False(t, status.RestartPending)
	assert.Zero(t, status.Restarts)
	f.clock.Advance(2 * RestartDelay)
	assert.Equal(t, domain.StateStopped, f.ctrl.Status().State)
}

func TestInvoluntaryTerminationRestartsOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Start())

	f.ctrl.Terminate(errors.New("killed"))
	f.ctrl.Terminate(errors.New("killed again"))

	status := f.ctrl.Status()
	assert.Equal(t, domain.StateStopped, status.State)
	assert.True(t, status.RestartPending)
	assert.Equal(t, 1, status.Restarts)
	assert.Equal(t, "killed again", status.LastTermination)
	assert.True(t, f.settings(t).ServiceEnabled, "system stop keeps the service enabled")

	f.clock.Advance(RestartDelay - time.Millisecond)
	assert.Equal(t, domain.StateStopped, f.ctrl.Status().State)
	f.clock.Advance(time.Millisecond)

	status = f.ctrl.Status()
	assert.Equal(t, domain.StateRunning, status.State)
	assert.False(t, status.RestartPending)
	assert.Equal(t, 1, status.Restarts)
}

func TestUserStopCancelsPendingRestart(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Start())
	f.ctrl.Terminate(errors.New("killed"))
	require.True(t, f.ctrl.Status().RestartPending)

	require.NoError(t, f.ctrl.Stop(true))
	f.clock.Advance(2 * RestartDelay)
	assert.Equal(t, domain.StateStopped, f.ctrl.Status().State)
	assert.False(t, f.settings(t).ServiceEnabled)
}

func TestSourceDeathIsInvoluntary(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Start())
	waitSubscribed(t, f)

	f.device.Fail(errors.New("receiver unregistered"))

	require.Eventually(t, func() bool { return f.ctrl.Status().RestartPending }, 2*time.Second, time.Millisecond)
	assert.Contains(t, f.ctrl.Status().LastTermination, "receiver unregistered")

	f.clock.Advance(RestartDelay)
	assert.Equal(t, domain.StateRunning, f.ctrl.Status().State)
}

func TestSignalsReachWorkerAndLifecycleCommands(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Start())
	waitSubscribed(t, f)

	f.device.SetVolume(7)
	require.Eventually(t, func() bool {
		w := f.ctrl.Status().Worker
		return w != nil && w.Monitor.VolumeLevel == 7
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, f.ctrl.Signal(core.CommandSignal(core.CommandMute, nil)))
	assert.Equal(t, 1, f.device.Mutes())

	assert.Error(t, f.ctrl.Signal(domain.RawSignal{Action: "screen.off"}))

	f.device.Emit(core.CommandSignal(core.CommandStop, nil))
	require.Eventually(t, func() bool { return f.ctrl.Status().State == domain.StateStopped }, 2*time.Second, time.Millisecond)

	f.ctrl.Terminate(errors.New("process exit"))
	assert.False(t, f.ctrl.Status().RestartPending)
}

func TestToggleAndStartIfEnabled(t *testing.T) {
	f := newFixture(t)

	started, err := f.ctrl.StartIfEnabled()
	require.NoError(t, err)
	assert.False(t, started)

	require.NoError(t, f.ctrl.Toggle())
	assert.Equal(t, domain.StateRunning, f.ctrl.Status().State)
	f.ctrl.Close()
	assert.True(t, f.settings(t).ServiceEnabled, "process exit leaves the service enabled")
	assert.ErrorIs(t, f.ctrl.Start(), domain.ErrClosed)

	next, err := NewLifecycleController(Deps{Repo: f.repo, Sink: notify.NewLogSink(), Clock: f.clock})
	require.NoError(t, err)
	t.Cleanup(next.Close)
	started, err = next.StartIfEnabled()
	require.NoError(t, err)
	assert.True(t, started)

	require.NoError(t, next.Toggle())
	assert.Equal(t, domain.StateStopped, next.Status().State)
}

func TestUpdateConfigWhileStoppedAndRunning(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.UpdateConfig(map[string]any{"enableOnHeadset": true}))
	assert.True(t, f.settings(t).EnableOnHeadset)
	assert.ErrorIs(t, f.ctrl.UpdateConfig(map[string]any{"nope": 1}), domain.ErrUnknownKey)

	require.NoError(t, f.ctrl.Start())
	require.NoError(t, f.ctrl.UpdateConfig(map[string]any{"showVolumeLevelNoti": false}))
	assert.False(t, f.settings(t).ShowVolumeLevelNoti)
	assert.False(t, f.ctrl.Status().Worker.Settings.ShowVolumeLevelNoti)
	assert.True(t, f.ctrl.Status().Worker.Settings.ServiceEnabled)
}

func waitSubscribed(t *testing.T, f *fixture) {
	t.Helper()
	// the memory device has no subscription hook; a broadcast reaching the
	// worker proves the source is running
	require.Eventually(t, func() bool {
		f.device.SetCall(false)
		w := f.ctrl.Status().Worker
		return w != nil && w.ImmediateRefreshes > 1
	}, 2*time.Second, 5*time.Millisecond)
}
