package domain

import "errors"

var (
	// ErrInvalidMinute indicates that a window bound is outside [0, 1440).
	ErrInvalidMinute = errors.New("minute must be between 0 and 1439")

	// ErrInvalidMode indicates an unknown force-mute mode.
	ErrInvalidMode = errors.New("force mute mode must be always or scheduled")

	// ErrUnknownKey indicates a configuration key that the watcher does not know.
	ErrUnknownKey = errors.New("unknown configuration key")

	// ErrUnknownSignal indicates a raw signal that normalizes to no event.
	ErrUnknownSignal = errors.New("unrecognised signal")

	// ErrNotRunning indicates that the service is not running.
	ErrNotRunning = errors.New("service is not running")

	// ErrAlreadyRunning indicates a start request while the service runs.
	ErrAlreadyRunning = errors.New("service is already running")

	// ErrClosed indicates that the controller was shut down for good.
	ErrClosed = errors.New("controller is closed")

	// ErrFacilityUnavailable indicates that a platform facility cannot be reached.
	ErrFacilityUnavailable = errors.New("facility unavailable")
)
