package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volume-watcher/internal/config"
	"volume-watcher/internal/domain"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 10, hour, minute, 0, 0, time.Local)
}

func scheduledState(start, end int) State {
	s := domain.DefaultSettings()
	s.ForceMute = domain.ForceMuteSchedule{Enabled: true, Mode: domain.ModeScheduled, WindowStartMinute: start, WindowEndMinute: end}
	return NewState(s)
}

func volumeEvent(level int) Event {
	return Event{Type: EventVolumeChanged, Data: VolumeChangedData{Stream: domain.StreamMusic, Level: level, Readable: level >= 0}}
}

func effectTypes(effects []Effect) []EffectType {
	var out []EffectType
	for _, e := range effects {
		out = append(out, e.Type)
	}
	return out
}

func TestUnreadableVolumeIsNoOp(t *testing.T) {
	state := NewState(domain.DefaultSettings())
	state, _, err := HandleEvent(state, volumeEvent(6), at(12, 0))
	require.NoError(t, err)

	next, effects, err := HandleEvent(state, volumeEvent(-1), at(12, 0))
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, state, next)
	assert.Equal(t, 6, next.Monitor.VolumeLevel)
}

func TestVolumeChangeRecomputesForceMuteAcrossMidnight(t *testing.T) {
	state := scheduledState(1380, 60)

	next, effects, err := HandleEvent(state, volumeEvent(5), at(23, 50))
	require.NoError(t, err)
	assert.True(t, next.Monitor.ForceMuteActive)
	assert.Equal(t, []EffectType{EffectMute, EffectRefresh}, effectTypes(effects))
	assert.Equal(t, domain.StreamMusic, effects[0].Stream)

	next, effects, err = HandleEvent(next, volumeEvent(4), at(8, 20))
	require.NoError(t, err)
	assert.False(t, next.Monitor.ForceMuteActive)
	assert.Equal(t, []EffectType{EffectRefresh}, effectTypes(effects))
}

func TestForceMuteHeadsetExemption(t *testing.T) {
	state := scheduledState(1380, 60)
	state.Monitor.HeadsetConnected = true
	state.Monitor.EnableOnHeadset = false

	next, effects, err := HandleEvent(state, volumeEvent(5), at(0, 30))
	require.NoError(t, err)
	assert.True(t, next.Monitor.ForceMuteActive)
	assert.NotContains(t, effectTypes(effects), EffectMute)
}

func TestHeadsetChangeProbesVolumeAndMutesOnUnplug(t *testing.T) {
	state := scheduledState(1380, 60)
	state.Monitor.HeadsetConnected = true
	state.Monitor.VolumeLevel = 5
	state.Monitor.VolumeKnown = true

	next, effects, err := HandleEvent(state, Event{Type: EventHeadsetChanged, Data: HeadsetChangedData{Connected: false}}, at(23, 30))
	require.NoError(t, err)
	assert.False(t, next.Monitor.HeadsetConnected)
	assert.Equal(t, []EffectType{EffectMute, EffectRefresh, EffectProbeVolume}, effectTypes(effects))
}

func TestCallStateOnlyRefreshes(t *testing.T) {
	state := NewState(domain.DefaultSettings())
	next, effects, err := HandleEvent(state, Event{Type: EventCallStateChanged, Data: CallStateChangedData{Active: true}}, at(9, 0))
	require.NoError(t, err)
	assert.True(t, next.Monitor.CallActive)
	assert.Equal(t, []EffectType{EffectRefresh}, effectTypes(effects))
}

func TestWindowEdges(t *testing.T) {
	disabled := NewState(domain.DefaultSettings())
	next, effects, err := HandleEvent(disabled, Event{Type: EventForceMuteWindowEdge, Data: WindowEdgeData{Edge: EdgeStart}}, at(23, 0))
	require.NoError(t, err)
	assert.False(t, next.Monitor.ForceMuteActive)
	assert.Empty(t, effects)

	state := scheduledState(1380, 60)
	state.Monitor.VolumeLevel, state.Monitor.VolumeKnown = 3, true
	next, effects, err = HandleEvent(state, Event{Type: EventForceMuteWindowEdge, Data: WindowEdgeData{Edge: EdgeStart}}, at(23, 0))
	require.NoError(t, err)
	assert.True(t, next.Monitor.ForceMuteActive)
	assert.Equal(t, []EffectType{EffectMute, EffectRefresh}, effectTypes(effects))

	next, _, err = HandleEvent(next, Event{Type: EventForceMuteWindowEdge, Data: WindowEdgeData{Edge: EdgeStop}}, at(1, 0))
	require.NoError(t, err)
	assert.False(t, next.Monitor.ForceMuteActive)
}

func TestLateWindowEdgesFollowWallClock(t *testing.T) {
	state := scheduledState(1380, 420)
	state.Monitor.VolumeLevel, state.Monitor.VolumeKnown = 6, true
	start := Event{Type: EventForceMuteWindowEdge, Data: WindowEdgeData{Edge: EdgeStart}}
	stop := Event{Type: EventForceMuteWindowEdge, Data: WindowEdgeData{Edge: EdgeStop}}

	next, effects, err := HandleEvent(state, start, at(8, 0))
	require.NoError(t, err)
	assert.False(t, next.Monitor.ForceMuteActive, "window already closed")
	assert.Equal(t, []EffectType{EffectRefresh}, effectTypes(effects))

	dismissed := state
	dismissed.ForceMuteDismissed = true
	next, effects, err = HandleEvent(dismissed, stop, at(23, 30))
	require.NoError(t, err)
	assert.True(t, next.Monitor.ForceMuteActive, "next window already open")
	assert.False(t, next.ForceMuteDismissed)
	assert.Equal(t, []EffectType{EffectMute, EffectRefresh}, effectTypes(effects))
}

func TestUserMute(t *testing.T) {
	state := NewState(domain.DefaultSettings())
	_, effects, err := HandleEvent(state, Event{Type: EventUserCommand, Data: UserCommandData{Command: CommandMute}}, at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, []EffectType{EffectMute}, effectTypes(effects))

	state.Monitor.VolumeKnown = true
	_, effects, err = HandleEvent(state, Event{Type: EventUserCommand, Data: UserCommandData{Command: CommandMute}}, at(12, 0))
	require.NoError(t, err)
	assert.Empty(t, effects, "already silent")
}

func TestDismissSuppressesRecomputationUntilScheduleChange(t *testing.T) {
	state := scheduledState(1380, 60)
	state, _, err := HandleEvent(state, volumeEvent(5), at(23, 30))
	require.NoError(t, err)
	require.True(t, state.Monitor.ForceMuteActive)

	state, _, err = HandleEvent(state, Event{Type: EventUserCommand, Data: UserCommandData{Command: CommandDismissForceMute}}, at(23, 31))
	require.NoError(t, err)
	assert.False(t, state.Monitor.ForceMuteActive)

	state, effects, err := HandleEvent(state, volumeEvent(6), at(23, 32))
	require.NoError(t, err)
	assert.False(t, state.Monitor.ForceMuteActive)
	assert.NotContains(t, effectTypes(effects), EffectMute)

	state, effects, err = HandleEvent(state, Event{Type: EventUserCommand, Data: UserCommandData{
		Command: CommandUpdateConfig,
		Fields:  map[string]any{config.KeyForceMuteTo: "02:00"},
	}}, at(23, 33))
	require.NoError(t, err)
	assert.True(t, state.Monitor.ForceMuteActive)
	assert.Equal(t, []EffectType{EffectMute, EffectRearmAlarms, EffectRefresh, EffectSaveSettings}, effectTypes(effects))
}

func TestUpdateConfigIsTransactional(t *testing.T) {
	state := NewState(domain.DefaultSettings())

	next, effects, err := HandleEvent(state, Event{Type: EventUserCommand, Data: UserCommandData{
		Command: CommandUpdateConfig,
		Fields:  map[string]any{config.KeyEnableOnHeadset: true, "bogus": 1},
	}}, at(10, 0))
	assert.ErrorIs(t, err, domain.ErrUnknownKey)
	assert.Empty(t, effects)
	assert.Equal(t, state, next)

	next, _, err = HandleEvent(state, Event{Type: EventUserCommand, Data: UserCommandData{
		Command: CommandUpdateConfig,
		Fields:  map[string]any{config.KeyEnableOnHeadset: true, config.KeyForceMuteFrom: 5000},
	}}, at(10, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidMinute)
	assert.Equal(t, state, next)
}

func TestConfigChangedOnlyActsOnDifferences(t *testing.T) {
	state := NewState(domain.DefaultSettings())

	_, effects, err := HandleEvent(state, Event{Type: EventConfigChanged, Data: ConfigChangedData{Key: config.KeyServiceEnabled, Settings: state.Settings}}, at(10, 0))
	require.NoError(t, err)
	assert.Empty(t, effects)

	changed := state.Settings
	changed.ShowVolumeLevelNoti = false
	next, effects, err := HandleEvent(state, Event{Type: EventConfigChanged, Data: ConfigChangedData{Key: config.KeyShowVolumeLevelNoti, Settings: changed}}, at(10, 0))
	require.NoError(t, err)
	assert.False(t, next.Monitor.ShowVolumeLevelNoti)
	assert.Equal(t, []EffectType{EffectRefresh}, effectTypes(effects))

	changed = state.Settings
	changed.ForceMute.Enabled = true
	_, effects, err = HandleEvent(state, Event{Type: EventConfigChanged, Data: ConfigChangedData{Key: config.KeyForceMuteEnabled, Settings: changed}}, at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, []EffectType{EffectRearmAlarms, EffectRefresh}, effectTypes(effects))
}

func TestLifecycleCommandsAreRejected(t *testing.T) {
	state := NewState(domain.DefaultSettings())
	for _, cmd := range []Command{CommandStart, CommandStop, CommandToggle} {
		_, _, err := HandleEvent(state, Event{Type: EventUserCommand, Data: UserCommandData{Command: cmd}}, at(10, 0))
		assert.ErrorIs(t, err, ErrLifecycleCommand)
	}
}

func TestHandleStart(t *testing.T) {
	s := domain.DefaultSettings()
	s.ForceMute = domain.ForceMuteSchedule{Enabled: true, Mode: domain.ModeAlways, WindowStartMinute: 60, WindowEndMinute: 120}
	state := NewState(s)
	state.Monitor.VolumeLevel, state.Monitor.VolumeKnown = 9, true
	state.ForceMuteDismissed = true

	next, effects := HandleStart(state, at(15, 0))
	assert.True(t, next.Monitor.ForceMuteActive)
	assert.False(t, next.ForceMuteDismissed)
	assert.Equal(t, []EffectType{EffectMute, EffectRefresh, EffectRearmAlarms}, effectTypes(effects))
}

func TestInvalidEventData(t *testing.T) {
	state := NewState(domain.DefaultSettings())
	_, _, err := HandleEvent(state, Event{Type: EventVolumeChanged, Data: "loud"}, at(10, 0))
	assert.Error(t, err)
	_, _, err = HandleEvent(state, Event{Type: "Unknown"}, at(10, 0))
	assert.Error(t, err)
}
