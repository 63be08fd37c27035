package alarm

import (
	"sync"
	"time"

	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
)

// TimerAlarms implements domain.AlarmFacility with in-process timers.
// Recurring alarms re-arm themselves from their previous trigger, so a late
// firing does not shift the schedule. The force-mute worker cancels and
// re-arms both window edges after every firing, so for those alarms the
// built-in recurrence only covers the gap until the worker has done so.
type TimerAlarms struct {
	clock domain.Clock

	mu     sync.Mutex
	timers map[domain.AlarmID]*entry
}

type entry struct {
	alarm domain.Alarm
	timer domain.Timer
}

// NewTimerAlarms creates an alarm facility driven by clock.
func NewTimerAlarms(clock domain.Clock) *TimerAlarms {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &TimerAlarms{clock: clock, timers: map[domain.AlarmID]*entry{}}
}

// Arm replaces any alarm with the same id.
func (a *TimerAlarms) Arm(alarm domain.Alarm, fire func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if old, ok := a.timers[alarm.ID]; ok {
		old.timer.Stop()
	}
	e := &entry{alarm: alarm}
	a.timers[alarm.ID] = e
	a.schedule(e, fire)
	logging.Debugf("alarm %s armed for %s", alarm.ID, alarm.Trigger.Format(time.RFC3339))
	return nil
}

// schedule requires a.mu.
func (a *TimerAlarms) schedule(e *entry, fire func()) {
	delay := e.alarm.Trigger.Sub(a.clock.Now())
	if delay < 0 {
		delay = 0
	}
	e.timer = a.clock.AfterFunc(delay, func() {
		a.mu.Lock()
		if a.timers[e.alarm.ID] != e {
			a.mu.Unlock()
			return
		}
		if e.alarm.Interval > 0 {
			e.alarm.Trigger = e.alarm.Trigger.Add(e.alarm.Interval)
			a.schedule(e, fire)
		} else {
			delete(a.timers, e.alarm.ID)
		}
		a.mu.Unlock()
		fire()
	})
}

// Cancel disarms id. Cancelling an unknown or fired alarm is a no-op.
func (a *TimerAlarms) Cancel(id domain.AlarmID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.timers[id]; ok {
		e.timer.Stop()
		delete(a.timers, id)
	}
	return nil
}

// Armed returns the pending alarms.
func (a *TimerAlarms) Armed() []domain.Alarm {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Alarm, 0, len(a.timers))
	for _, e := range a.timers {
		out = append(out, e.alarm)
	}
	return out
}
