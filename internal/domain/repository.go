package domain

import (
	"context"
	"time"
)

// SettingsRepository is a secondary port that defines how to persist configuration.
// This interface is defined in the domain layer and implemented by adapters.
type SettingsRepository interface {
	Load() (Settings, error)
	Save(settings Settings) error
}

// AudioDevice is a secondary port for reading and silencing audio output.
type AudioDevice interface {
	StreamVolume(stream Stream) (int, error)
	HeadsetConnected() (bool, error)
	Mute(stream Stream) error
}

// CallStateReader reports whether a telephony call is in progress.
type CallStateReader interface {
	CallActive() (bool, error)
}

// NotificationSink renders and removes status notifications.
type NotificationSink interface {
	Show(n NotificationDescriptor) error
	Cancel(id int) error
}

// AlarmFacility arms wake timers. fire is invoked from an arbitrary goroutine
// every time the alarm triggers.
type AlarmFacility interface {
	Arm(alarm Alarm, fire func()) error
	Cancel(id AlarmID) error
}

// Broadcaster publishes lifecycle transitions to interested parties.
type Broadcaster interface {
	Broadcast(event LifecycleEvent)
}

// RawSignal is an unnormalized external signal, modelled after an intent:
// an action name plus loosely typed extras.
type RawSignal struct {
	Action string
	Extras map[string]any
}

// SignalSource delivers raw signals until ctx is cancelled.
// A non-nil error other than ctx.Err() means the source died involuntarily.
type SignalSource interface {
	Name() string
	Run(ctx context.Context, emit func(RawSignal)) error
}

// Clock abstracts time for deterministic testing.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a pending AfterFunc call.
type Timer interface {
	// Stop prevents the timer from firing. Stopping a fired or stopped timer is a no-op.
	Stop() bool
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
