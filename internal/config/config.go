package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"volume-watcher/internal/domain"
)

// Flat keys of the persisted key/value store.
const (
	KeyServiceEnabled       = "serviceEnabled"
	KeyAutoStartOnBoot      = "autoStartOnBoot"
	KeyEnableOnHeadset      = "enableOnHeadset"
	KeyShowOutputDeviceNoti = "showOutputDeviceNoti"
	KeyShowVolumeLevelNoti  = "showVolumeLevelNoti"
	KeyForceMuteEnabled     = "forceMute.enabled"
	KeyForceMuteMode        = "forceMute.mode"
	KeyForceMuteFrom        = "forceMute.fromMinute"
	KeyForceMuteTo          = "forceMute.toMinute"
)

// Keys lists every known key in persisted order.
func Keys() []string {
	return []string{
		KeyServiceEnabled,
		KeyAutoStartOnBoot,
		KeyEnableOnHeadset,
		KeyShowOutputDeviceNoti,
		KeyShowVolumeLevelNoti,
		KeyForceMuteEnabled,
		KeyForceMuteMode,
		KeyForceMuteFrom,
		KeyForceMuteTo,
	}
}

// IsForceMuteKey reports whether key belongs to the force-mute schedule.
func IsForceMuteKey(key string) bool {
	return strings.HasPrefix(key, "forceMute.")
}

// ToMap flattens settings into the key/value form written to disk.
func ToMap(s domain.Settings) map[string]any {
	return map[string]any{
		KeyServiceEnabled:       s.ServiceEnabled,
		KeyAutoStartOnBoot:      s.AutoStartOnBoot,
		KeyEnableOnHeadset:      s.EnableOnHeadset,
		KeyShowOutputDeviceNoti: s.ShowOutputDeviceNoti,
		KeyShowVolumeLevelNoti:  s.ShowVolumeLevelNoti,
		KeyForceMuteEnabled:     s.ForceMute.Enabled,
		KeyForceMuteMode:        s.ForceMute.Mode.String(),
		KeyForceMuteFrom:        s.ForceMute.WindowStartMinute,
		KeyForceMuteTo:          s.ForceMute.WindowEndMinute,
	}
}

// FromMap overlays values on base. Unknown keys are returned separately so
// callers can decide whether to reject or ignore them.
func FromMap(base domain.Settings, values map[string]any) (domain.Settings, []string, error) {
	out := base
	var unknown []string
	for key, raw := range values {
		if err := Set(&out, key, raw); err != nil {
			if errors.Is(err, domain.ErrUnknownKey) {
				unknown = append(unknown, key)
				continue
			}
			return base, nil, err
		}
	}
	sort.Strings(unknown)
	return out, unknown, nil
}

// Set assigns a single key. Values may be native types or their string form.
func Set(s *domain.Settings, key string, raw any) error {
	switch key {
	case KeyServiceEnabled:
		return setBool(&s.ServiceEnabled, key, raw)
	case KeyAutoStartOnBoot:
		return setBool(&s.AutoStartOnBoot, key, raw)
	case KeyEnableOnHeadset:
		return setBool(&s.EnableOnHeadset, key, raw)
	case KeyShowOutputDeviceNoti:
		return setBool(&s.ShowOutputDeviceNoti, key, raw)
	case KeyShowVolumeLevelNoti:
		return setBool(&s.ShowVolumeLevelNoti, key, raw)
	case KeyForceMuteEnabled:
		return setBool(&s.ForceMute.Enabled, key, raw)
	case KeyForceMuteMode:
		text, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%s: expected string, got %T", key, raw)
		}
		mode, err := domain.ParseForceMuteMode(text)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		s.ForceMute.Mode = mode
		return nil
	case KeyForceMuteFrom:
		return setMinute(&s.ForceMute.WindowStartMinute, key, raw)
	case KeyForceMuteTo:
		return setMinute(&s.ForceMute.WindowEndMinute, key, raw)
	default:
		return domain.ErrUnknownKey
	}
}

// Diff returns the keys whose values differ between a and b.
func Diff(a, b domain.Settings) []string {
	am, bm := ToMap(a), ToMap(b)
	var changed []string
	for _, key := range Keys() {
		if am[key] != bm[key] {
			changed = append(changed, key)
		}
	}
	return changed
}

func setBool(dst *bool, key string, raw any) error {
	switch v := raw.(type) {
	case bool:
		*dst = v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	default:
		return fmt.Errorf("%s: expected bool, got %T", key, raw)
	}
	return nil
}

func setMinute(dst *int, key string, raw any) error {
	var minute int
	switch v := raw.(type) {
	case int:
		minute = v
	case int64:
		minute = int(v)
	case float64:
		minute = int(v)
	case string:
		m, err := ParseMinute(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		minute = m
	default:
		return fmt.Errorf("%s: expected minute, got %T", key, raw)
	}
	if minute < 0 || minute >= domain.MinutesPerDay {
		return fmt.Errorf("%s: %w", key, domain.ErrInvalidMinute)
	}
	*dst = minute
	return nil
}
