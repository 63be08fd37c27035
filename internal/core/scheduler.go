package core

import (
	"time"

	"github.com/rs/zerolog"

	"volume-watcher/internal/domain"
)

// forceMuteScheduler keeps the two window-edge alarms consistent with the
// current schedule. It is owned by the worker goroutine.
type forceMuteScheduler struct {
	alarms  domain.AlarmFacility
	service *domain.ForceMuteService
	logger  zerolog.Logger

	// gen tags every armed alarm; firings from older generations are stale.
	// It moves only when the schedule changes or the alarms are cancelled.
	gen       uint64
	schedule  domain.ForceMuteSchedule
	scheduled bool
	armed     []domain.Alarm
}

func newForceMuteScheduler(alarms domain.AlarmFacility, logger zerolog.Logger) *forceMuteScheduler {
	return &forceMuteScheduler{
		alarms:  alarms,
		service: domain.NewForceMuteService(),
		logger:  logger,
	}
}

// Rearm cancels any armed alarms and arms both edges for schedule.
// fire is called with the edge and the generation it was armed under.
// When the alarm facility is missing or fails, scheduling is skipped and only
// the on-demand window check covers force mute.
func (s *forceMuteScheduler) Rearm(schedule domain.ForceMuteSchedule, now time.Time, fire func(edge Edge, gen uint64)) {
	if !s.scheduled || schedule != s.schedule {
		s.gen++
	}
	s.schedule, s.scheduled = schedule, true
	s.cancelArmed()

	wanted := s.service.WindowAlarms(schedule, now)
	if len(wanted) == 0 {
		s.logger.Debug().
			Bool("enabled", schedule.Enabled).
			Str("mode", schedule.Mode.String()).
			Msg("force-mute alarms not needed")
		return
	}
	if s.alarms == nil {
		s.logger.Warn().Msg("alarm facility unavailable, relying on on-demand window checks")
		return
	}

	gen := s.gen
	for _, alarm := range wanted {
		edge := EdgeStart
		if alarm.ID == domain.AlarmWindowEnd {
			edge = EdgeStop
		}
		if err := s.alarms.Arm(alarm, func() { fire(edge, gen) }); err != nil {
			s.logger.Warn().Err(err).Str("alarm", string(alarm.ID)).Msg("arming alarm failed, relying on on-demand window checks")
			s.CancelAll()
			return
		}
		s.armed = append(s.armed, alarm)
		s.logger.Debug().
			Str("alarm", string(alarm.ID)).
			Time("trigger", alarm.Trigger).
			Msg("alarm armed")
	}
}

// CancelAll cancels both alarms and invalidates every pending firing.
// Cancelling unarmed alarms is a no-op.
func (s *forceMuteScheduler) CancelAll() {
	s.gen++
	s.scheduled = false
	s.cancelArmed()
}

func (s *forceMuteScheduler) cancelArmed() {
	s.armed = nil
	if s.alarms == nil {
		return
	}
	for _, id := range []domain.AlarmID{domain.AlarmWindowStart, domain.AlarmWindowEnd} {
		if err := s.alarms.Cancel(id); err != nil {
			s.logger.Debug().Err(err).Str("alarm", string(id)).Msg("cancel alarm")
		}
	}
}

// Current reports whether gen is the generation of the armed alarms.
func (s *forceMuteScheduler) Current(gen uint64) bool {
	return gen == s.gen
}

// Armed returns a copy of the armed alarms.
func (s *forceMuteScheduler) Armed() []domain.Alarm {
	if len(s.armed) == 0 {
		return nil
	}
	out := make([]domain.Alarm, len(s.armed))
	copy(out, s.armed)
	return out
}
