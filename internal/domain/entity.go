package domain

import "time"

// MinutesPerDay bounds every window minute value.
const MinutesPerDay = 24 * 60

// Stream identifies an audio stream that can be sampled or muted.
type Stream string

// StreamMusic is the only stream the watcher tracks.
const StreamMusic Stream = "music"

// MonitorState is the canonical state record owned by the event worker.
// This is a pure domain model with no dependencies on external concerns.
type MonitorState struct {
	// VolumeLevel is meaningful only when VolumeKnown is true.
	VolumeLevel int
	VolumeKnown bool

	HeadsetConnected bool
	CallActive       bool
	ForceMuteActive  bool

	EnableOnHeadset      bool
	ShowOutputDeviceNoti bool
	ShowVolumeLevelNoti  bool
}

// MediaVolumeOn reports whether a known, non-zero volume was last read.
func (s MonitorState) MediaVolumeOn() bool {
	return s.VolumeKnown && s.VolumeLevel > 0
}

// OutputDevice returns the human readable name of the current output.
func (s MonitorState) OutputDevice() string {
	if s.HeadsetConnected {
		return "Headset"
	}
	return "Speaker"
}

// ForceMuteMode selects whether the mute window applies all day or only inside the window.
type ForceMuteMode int

const (
	ModeScheduled ForceMuteMode = iota
	ModeAlways
)

func (m ForceMuteMode) String() string {
	switch m {
	case ModeAlways:
		return "always"
	case ModeScheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// ParseForceMuteMode converts the persisted text form of a mode.
func ParseForceMuteMode(s string) (ForceMuteMode, error) {
	switch s {
	case "always", "Always":
		return ModeAlways, nil
	case "scheduled", "Scheduled", "":
		return ModeScheduled, nil
	default:
		return ModeScheduled, ErrInvalidMode
	}
}

// ForceMuteSchedule is the force-mute configuration.
// Minutes are counted from local midnight.
type ForceMuteSchedule struct {
	Enabled           bool
	Mode              ForceMuteMode
	WindowStartMinute int
	WindowEndMinute   int
}

// Degenerate reports a zero-length window, which never activates.
func (s ForceMuteSchedule) Degenerate() bool {
	return s.WindowStartMinute == s.WindowEndMinute
}

// Validate checks that both window bounds are valid minutes of a day.
func (s ForceMuteSchedule) Validate() error {
	if s.WindowStartMinute < 0 || s.WindowStartMinute >= MinutesPerDay {
		return ErrInvalidMinute
	}
	if s.WindowEndMinute < 0 || s.WindowEndMinute >= MinutesPerDay {
		return ErrInvalidMinute
	}
	if s.Mode != ModeAlways && s.Mode != ModeScheduled {
		return ErrInvalidMode
	}
	return nil
}

// Settings is the user configuration read from the flat key/value store.
type Settings struct {
	ServiceEnabled       bool
	AutoStartOnBoot      bool
	EnableOnHeadset      bool
	ShowOutputDeviceNoti bool
	ShowVolumeLevelNoti  bool
	ForceMute            ForceMuteSchedule
}

// Validate checks if the configuration values are valid.
func (s Settings) Validate() error {
	return s.ForceMute.Validate()
}

// DefaultSettings returns the configuration used when nothing is persisted.
func DefaultSettings() Settings {
	return Settings{
		ServiceEnabled:       false,
		AutoStartOnBoot:      true,
		EnableOnHeadset:      false,
		ShowOutputDeviceNoti: true,
		ShowVolumeLevelNoti:  true,
		ForceMute: ForceMuteSchedule{
			Enabled:           false,
			Mode:              ModeScheduled,
			WindowStartMinute: 23 * 60,
			WindowEndMinute:   7 * 60,
		},
	}
}

// Notification ids and channels shown by the watcher.
const (
	NotificationOngoing      = 1
	NotificationOutputDevice = 3
	NotificationVolumeLevel  = 4
	NotificationForceMute    = 5

	ChannelOngoing      = "ongoing"
	ChannelOutputDevice = "output_device"
	ChannelVolumeLevel  = "volume_level"
	ChannelForceMute    = "force_mute"
)

// NotificationAction is a button attached to a notification.
type NotificationAction string

const (
	ActionStop             NotificationAction = "stop"
	ActionMute             NotificationAction = "mute"
	ActionDismissForceMute NotificationAction = "dismiss-force-mute"
)

// NotificationDescriptor is an immutable request to show a notification.
// A new descriptor is built on every refresh and replaces any prior one with the same ID.
type NotificationDescriptor struct {
	ChannelID string
	ID        int
	Title     string
	Text      string
	Icon      string
	Ongoing   bool
	Actions   []NotificationAction
}

// AlarmID identifies one of the force-mute window alarms.
type AlarmID string

const (
	AlarmWindowStart AlarmID = "force-mute-start"
	AlarmWindowEnd   AlarmID = "force-mute-end"
)

// Alarm is an armed wake timer.
type Alarm struct {
	ID      AlarmID
	Trigger time.Time
	// Interval is the recurrence period; zero means one-shot.
	Interval time.Duration
}

// TriggerEpochMillis returns the trigger time in milliseconds since the Unix epoch.
func (a Alarm) TriggerEpochMillis() int64 {
	return a.Trigger.UnixMilli()
}

// LifecycleState represents the service lifecycle.
type LifecycleState int

const (
	StateStopped LifecycleState = iota
	StateStarting
	StateRunning
	StateStoppingByUser
	StateStoppingBySystem
)

func (s LifecycleState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStoppingByUser:
		return "stopping-by-user"
	case StateStoppingBySystem:
		return "stopping-by-system"
	default:
		return "unknown"
	}
}

// LifecycleEvent is broadcast when the service starts or stops.
type LifecycleEvent string

const (
	LifecycleStarted LifecycleEvent = "started"
	LifecycleStopped LifecycleEvent = "stopped"
)

// Decision is the output of the notification policy.
type Decision struct {
	OutputDeviceVisible bool
	VolumeLevelVisible  bool
	UnifiedText         bool
	ForceMuteVisible    bool
}
