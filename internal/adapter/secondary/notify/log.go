package notify

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
)

// LogSink renders notifications as log lines and remembers what is visible.
// It is used when no notification server is reachable.
type LogSink struct {
	logger zerolog.Logger

	mu      sync.Mutex
	visible map[int]domain.NotificationDescriptor
}

// NewLogSink creates a console sink.
func NewLogSink() *LogSink {
	return &LogSink{logger: logging.Component("notify"), visible: map[int]domain.NotificationDescriptor{}}
}

func (s *LogSink) Show(n domain.NotificationDescriptor) error {
	s.mu.Lock()
	prev, existed := s.visible[n.ID]
	s.visible[n.ID] = n
	s.mu.Unlock()

	if existed && prev.Title == n.Title && prev.Text == n.Text && prev.Icon == n.Icon {
		s.logger.Trace().Int("id", n.ID).Msg("notification unchanged")
		return nil
	}
	s.logger.Info().
		Int("id", n.ID).
		Str("channel", n.ChannelID).
		Str("icon", n.Icon).
		Str("actions", joinActions(n.Actions)).
		Msgf("%s: %s", n.Title, n.Text)
	return nil
}

func (s *LogSink) Cancel(id int) error {
	s.mu.Lock()
	_, existed := s.visible[id]
	delete(s.visible, id)
	s.mu.Unlock()
	if existed {
		s.logger.Info().Int("id", id).Msg("notification cancelled")
	}
	return nil
}

// Visible returns the visible notifications ordered by id.
func (s *LogSink) Visible() []domain.NotificationDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NotificationDescriptor, 0, len(s.visible))
	for _, n := range s.visible {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func joinActions(actions []domain.NotificationAction) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}
