package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"volume-watcher/internal/config"
	"volume-watcher/internal/domain"
)

// ErrLifecycleCommand is returned when a start/stop/toggle command reaches the
// event worker instead of the lifecycle controller.
var ErrLifecycleCommand = errors.New("lifecycle command must be handled by the controller")

var forceMute = domain.NewForceMuteService()

// HandleEvent is a pure function that takes current state and an event,
// and returns the new state along with effects to be executed.
// On error the returned state is the unchanged input state.
func HandleEvent(state State, event Event, now time.Time) (State, []Effect, error) {
	switch event.Type {
	case EventVolumeChanged:
		data, ok := event.Data.(VolumeChangedData)
		if !ok {
			return state, nil, fmt.Errorf("invalid VolumeChangedData")
		}
		return handleVolumeChanged(state, data, now)
	case EventHeadsetChanged:
		data, ok := event.Data.(HeadsetChangedData)
		if !ok {
			return state, nil, fmt.Errorf("invalid HeadsetChangedData")
		}
		return handleHeadsetChanged(state, data, now)
	case EventCallStateChanged:
		data, ok := event.Data.(CallStateChangedData)
		if !ok {
			return state, nil, fmt.Errorf("invalid CallStateChangedData")
		}
		return handleCallStateChanged(state, data)
	case EventForceMuteWindowEdge:
		data, ok := event.Data.(WindowEdgeData)
		if !ok {
			return state, nil, fmt.Errorf("invalid WindowEdgeData")
		}
		return handleWindowEdge(state, data, now)
	case EventUserCommand:
		data, ok := event.Data.(UserCommandData)
		if !ok {
			return state, nil, fmt.Errorf("invalid UserCommandData")
		}
		return handleUserCommand(state, data, now)
	case EventConfigChanged:
		data, ok := event.Data.(ConfigChangedData)
		if !ok {
			return state, nil, fmt.Errorf("invalid ConfigChangedData")
		}
		return handleConfigChanged(state, data, now)
	default:
		return state, nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}

// HandleStart computes the state and effects of a worker that just started:
// the force-mute flag from the wall clock, an unconditional refresh and the
// initial alarm schedule.
func HandleStart(state State, now time.Time) (State, []Effect) {
	newState := state
	newState.ForceMuteDismissed = false
	newState = recomputeForceMute(newState, now)

	effects := muteIfForced(newState, "force-mute at start")
	effects = append(effects,
		Effect{Type: EffectRefresh, Reason: "start"},
		Effect{Type: EffectRearmAlarms, Settings: newState.Settings},
	)
	return newState, effects
}

func handleVolumeChanged(state State, data VolumeChangedData, now time.Time) (State, []Effect, error) {
	if !data.Readable || data.Level < 0 || data.Stream != domain.StreamMusic {
		return state, nil, nil
	}

	newState := state
	newState.Monitor.VolumeLevel = data.Level
	newState.Monitor.VolumeKnown = true
	newState = recomputeForceMute(newState, now)

	effects := muteIfForced(newState, "force-mute on volume change")
	effects = append(effects, Effect{Type: EffectRefresh, Reason: "volume changed"})
	return newState, effects, nil
}

func handleHeadsetChanged(state State, data HeadsetChangedData, now time.Time) (State, []Effect, error) {
	newState := state
	newState.Monitor.HeadsetConnected = data.Connected
	newState = recomputeForceMute(newState, now)

	effects := muteIfForced(newState, "force-mute on route change")
	effects = append(effects,
		Effect{Type: EffectRefresh, Reason: "headset changed"},
		Effect{Type: EffectProbeVolume, Stream: domain.StreamMusic},
	)
	return newState, effects, nil
}

func handleCallStateChanged(state State, data CallStateChangedData) (State, []Effect, error) {
	newState := state
	newState.Monitor.CallActive = data.Active
	return newState, []Effect{{Type: EffectRefresh, Reason: "call state changed"}}, nil
}

func handleWindowEdge(state State, data WindowEdgeData, now time.Time) (State, []Effect, error) {
	switch data.Edge {
	case EdgeStart:
		if !state.Settings.ForceMute.Enabled {
			return state, nil, nil
		}
	case EdgeStop:
	default:
		return state, nil, fmt.Errorf("unknown window edge: %q", data.Edge)
	}

	// Edges may fire late or together after a suspend; the wall clock decides.
	newState := state
	newState.Monitor.ForceMuteActive = forceMute.ActiveAt(state.Settings.ForceMute, now)
	newState.ForceMuteDismissed = false

	effects := muteIfForced(newState, "force-mute window "+string(data.Edge))
	effects = append(effects, Effect{Type: EffectRefresh, Reason: "window " + string(data.Edge)})
	return newState, effects, nil
}

func handleUserCommand(state State, data UserCommandData, now time.Time) (State, []Effect, error) {
	switch data.Command {
	case CommandMute:
		return state, muteNow(state, "user"), nil
	case CommandDismissForceMute:
		newState := state
		newState.Monitor.ForceMuteActive = false
		newState.ForceMuteDismissed = true
		return newState, []Effect{{Type: EffectRefresh, Reason: "force-mute dismissed"}}, nil
	case CommandUpdateConfig:
		return handleUpdateConfig(state, data.Fields, now)
	case CommandStart, CommandStop, CommandToggle:
		return state, nil, fmt.Errorf("%w: %s", ErrLifecycleCommand, data.Command)
	default:
		return state, nil, fmt.Errorf("unknown command: %q", data.Command)
	}
}

func handleUpdateConfig(state State, fields map[string]any, now time.Time) (State, []Effect, error) {
	settings, unknown, err := config.FromMap(state.Settings, fields)
	if err != nil {
		return state, nil, err
	}
	if len(unknown) > 0 {
		return state, nil, fmt.Errorf("%w: %s", domain.ErrUnknownKey, strings.Join(unknown, ", "))
	}
	if settings, err = config.Normalize(settings); err != nil {
		return state, nil, err
	}

	newState, effects := applySettings(state, settings, now)
	effects = append(effects, Effect{Type: EffectSaveSettings, Settings: settings})
	return newState, effects, nil
}

func handleConfigChanged(state State, data ConfigChangedData, now time.Time) (State, []Effect, error) {
	settings, err := config.Normalize(data.Settings)
	if err != nil {
		return state, nil, fmt.Errorf("config key %s: %w", data.Key, err)
	}
	newState, effects := applySettings(state, settings, now)
	return newState, effects, nil
}

// applySettings replaces the settings and derives the effects of every key
// that actually changed. Unchanged settings produce no effects.
func applySettings(state State, settings domain.Settings, now time.Time) (State, []Effect) {
	changed := config.Diff(state.Settings, settings)

	newState := state
	newState.Settings = settings
	newState.Monitor.EnableOnHeadset = settings.EnableOnHeadset
	newState.Monitor.ShowOutputDeviceNoti = settings.ShowOutputDeviceNoti
	newState.Monitor.ShowVolumeLevelNoti = settings.ShowVolumeLevelNoti

	var display, schedule bool
	for _, key := range changed {
		switch {
		case config.IsForceMuteKey(key):
			schedule = true
		case key == config.KeyEnableOnHeadset,
			key == config.KeyShowOutputDeviceNoti,
			key == config.KeyShowVolumeLevelNoti:
			display = true
		}
	}

	var effects []Effect
	if schedule {
		newState.ForceMuteDismissed = false
		newState = recomputeForceMute(newState, now)
		effects = append(effects, muteIfForced(newState, "force-mute schedule changed")...)
		effects = append(effects, Effect{Type: EffectRearmAlarms, Settings: settings})
	}
	if schedule || display {
		effects = append(effects, Effect{Type: EffectRefresh, Reason: "config changed"})
	}
	return newState, effects
}

func recomputeForceMute(state State, now time.Time) State {
	state.Monitor.ForceMuteActive = !state.ForceMuteDismissed &&
		forceMute.ActiveAt(state.Settings.ForceMute, now)
	return state
}

// muteIfForced is the force-mute path into muteNow. A connected headset is
// always exempt.
func muteIfForced(state State, reason string) []Effect {
	m := state.Monitor
	if !m.ForceMuteActive || m.HeadsetConnected || !m.MediaVolumeOn() {
		return nil
	}
	return muteNow(state, reason)
}

// muteNow emits the mute request unless the stream is already known to be silent.
func muteNow(state State, reason string) []Effect {
	if state.Monitor.VolumeKnown && state.Monitor.VolumeLevel == 0 {
		return nil
	}
	return []Effect{{Type: EffectMute, Stream: domain.StreamMusic, Reason: reason}}
}
