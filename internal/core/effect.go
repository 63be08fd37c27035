package core

import (
	"volume-watcher/internal/domain"
)

// EffectType represents the type of side effect to be performed.
type EffectType string

const (
	EffectMute         EffectType = "Mute"
	EffectRefresh      EffectType = "Refresh"
	EffectRearmAlarms  EffectType = "RearmAlarms"
	EffectSaveSettings EffectType = "SaveSettings"
	EffectProbeVolume  EffectType = "ProbeVolume"
)

// Effect represents a side effect that should be performed by the worker.
// The transition function produces Effects without executing them, maintaining purity.
type Effect struct {
	Type     EffectType
	Stream   domain.Stream
	Reason   string
	Settings domain.Settings
}

// Event represents a normalized input event.
type Event struct {
	Type EventType
	Data interface{}
}

// EventType represents the type of event.
type EventType string

const (
	EventVolumeChanged       EventType = "VolumeChanged"
	EventHeadsetChanged      EventType = "HeadsetChanged"
	EventCallStateChanged    EventType = "CallStateChanged"
	EventForceMuteWindowEdge EventType = "ForceMuteWindowEdge"
	EventUserCommand         EventType = "UserCommand"
	EventConfigChanged       EventType = "ConfigChanged"
)

// VolumeChangedData carries a stream level sample. Readable is false when the
// platform could not read the level.
type VolumeChangedData struct {
	Stream   domain.Stream
	Level    int
	Readable bool
}

// HeadsetChangedData contains accessory connection state.
type HeadsetChangedData struct {
	Connected bool
}

// CallStateChangedData contains telephony call state.
type CallStateChangedData struct {
	Active bool
}

// Edge is a force-mute window boundary.
type Edge string

const (
	EdgeStart Edge = "start"
	EdgeStop  Edge = "stop"
)

// WindowEdgeData contains the boundary that was reached.
type WindowEdgeData struct {
	Edge Edge
}

// Command is an explicit user action.
type Command string

const (
	CommandStart            Command = "start"
	CommandStop             Command = "stop"
	CommandToggle           Command = "toggle"
	CommandMute             Command = "mute"
	CommandUpdateConfig     Command = "update-config"
	CommandDismissForceMute Command = "dismiss-force-mute"
)

// IsLifecycle reports whether the command is handled by the lifecycle controller
// rather than the event worker.
func (c Command) IsLifecycle() bool {
	return c == CommandStart || c == CommandStop || c == CommandToggle
}

// UserCommandData contains a command and, for update-config, the fields to change.
type UserCommandData struct {
	Command Command
	Fields  map[string]any
}

// ConfigChangedData names the key that changed and carries the new settings.
type ConfigChangedData struct {
	Key      string
	Settings domain.Settings
}

// State represents the worker-owned state.
type State struct {
	Monitor  domain.MonitorState
	Settings domain.Settings
	// ForceMuteDismissed suppresses on-demand force-mute recomputation until
	// the next window start edge or schedule change.
	ForceMuteDismissed bool
}

// NewState builds the initial state from settings; device fields stay at
// their defaults until the first authoritative read.
func NewState(settings domain.Settings) State {
	return State{
		Monitor: domain.MonitorState{
			EnableOnHeadset:      settings.EnableOnHeadset,
			ShowOutputDeviceNoti: settings.ShowOutputDeviceNoti,
			ShowVolumeLevelNoti:  settings.ShowVolumeLevelNoti,
		},
		Settings: settings,
	}
}
