package domain

import "time"

// ForceMuteService provides pure domain logic for the force-mute window.
// This service has no side effects and no dependencies on external concerns.
type ForceMuteService struct{}

// NewForceMuteService creates a new force-mute service.
func NewForceMuteService() *ForceMuteService {
	return &ForceMuteService{}
}

// MinuteOfDay returns the local minute of day of t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// InWindow reports whether minute t lies in [start, end), wrapping past midnight
// when start > end. A degenerate window (start == end) contains nothing.
func InWindow(start, end, t int) bool {
	switch {
	case start < end:
		return start <= t && t < end
	case start > end:
		return t >= start || t < end
	default:
		return false
	}
}

// ActiveAt reports whether the schedule applies at now.
// Disabled and degenerate schedules are never active, whatever the mode.
func (s *ForceMuteService) ActiveAt(schedule ForceMuteSchedule, now time.Time) bool {
	if !schedule.Enabled || schedule.Degenerate() {
		return false
	}
	if schedule.Mode == ModeAlways {
		return true
	}
	return InWindow(schedule.WindowStartMinute, schedule.WindowEndMinute, MinuteOfDay(now))
}

// NeedsAlarms reports whether window-edge alarms should be armed for schedule.
func (s *ForceMuteService) NeedsAlarms(schedule ForceMuteSchedule) bool {
	return schedule.Enabled && !schedule.Degenerate() && schedule.Mode == ModeScheduled
}

// NextTrigger returns today's instant at minute, or tomorrow's if that instant
// is not after now.
func (s *ForceMuteService) NextTrigger(now time.Time, minute int) time.Time {
	y, m, d := now.Date()
	at := time.Date(y, m, d, minute/60, minute%60, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// WindowAlarms computes both daily-recurring edge alarms for schedule.
// It returns nil when no alarm should be armed.
func (s *ForceMuteService) WindowAlarms(schedule ForceMuteSchedule, now time.Time) []Alarm {
	if !s.NeedsAlarms(schedule) {
		return nil
	}
	const day = 24 * time.Hour
	return []Alarm{
		{ID: AlarmWindowStart, Trigger: s.NextTrigger(now, schedule.WindowStartMinute), Interval: day},
		{ID: AlarmWindowEnd, Trigger: s.NextTrigger(now, schedule.WindowEndMinute), Interval: day},
	}
}
