package config

import (
	"fmt"
	"strconv"
	"strings"

	"volume-watcher/internal/domain"
)

// Normalize validates settings and returns a safe copy.
func Normalize(s domain.Settings) (domain.Settings, error) {
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// ParseMinute accepts either a bare minute count ("1380") or a clock time ("23:00").
func ParseMinute(s string) (int, error) {
	s = strings.TrimSpace(s)
	if h, m, ok := strings.Cut(s, ":"); ok {
		hour, err := strconv.Atoi(h)
		if err != nil || hour < 0 || hour > 23 {
			return 0, fmt.Errorf("invalid hour in %q", s)
		}
		minute, err := strconv.Atoi(m)
		if err != nil || minute < 0 || minute > 59 {
			return 0, fmt.Errorf("invalid minute in %q", s)
		}
		return hour*60 + minute, nil
	}
	minute, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid minute %q", s)
	}
	if minute < 0 || minute >= domain.MinutesPerDay {
		return 0, domain.ErrInvalidMinute
	}
	return minute, nil
}

// FormatMinute renders a minute of day as HH:MM.
func FormatMinute(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
