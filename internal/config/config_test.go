package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volume-watcher/internal/domain"
)

func TestFromMapOverlaysKnownKeys(t *testing.T) {
	base := domain.DefaultSettings()
	got, unknown, err := FromMap(base, map[string]any{
		KeyEnableOnHeadset:     true,
		KeyForceMuteEnabled:    "true",
		KeyForceMuteMode:       "always",
		KeyForceMuteFrom:       "22:30",
		KeyForceMuteTo:         390,
		"legacy.showAd":        true,
		KeyShowVolumeLevelNoti: false,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy.showAd"}, unknown)
	assert.True(t, got.EnableOnHeadset)
	assert.False(t, got.ShowVolumeLevelNoti)
	assert.True(t, got.ForceMute.Enabled)
	assert.Equal(t, domain.ModeAlways, got.ForceMute.Mode)
	assert.Equal(t, 22*60+30, got.ForceMute.WindowStartMinute)
	assert.Equal(t, 390, got.ForceMute.WindowEndMinute)
}

func TestFromMapRejectsBadValues(t *testing.T) {
	base := domain.DefaultSettings()

	_, _, err := FromMap(base, map[string]any{KeyForceMuteTo: 1440})
	assert.ErrorIs(t, err, domain.ErrInvalidMinute)

	_, _, err = FromMap(base, map[string]any{KeyForceMuteMode: "sometimes"})
	assert.ErrorIs(t, err, domain.ErrInvalidMode)

	_, _, err = FromMap(base, map[string]any{KeyEnableOnHeadset: "maybe"})
	assert.Error(t, err)
}

func TestToMapRoundTripsThroughFromMap(t *testing.T) {
	s := domain.DefaultSettings()
	s.ForceMute.Enabled = true
	s.ForceMute.Mode = domain.ModeAlways

	got, unknown, err := FromMap(domain.Settings{}, ToMap(s))
	require.NoError(t, err)
	assert.Empty(t, unknown)
	assert.Equal(t, s, got)
}

func TestDiff(t *testing.T) {
	a := domain.DefaultSettings()
	b := a
	b.EnableOnHeadset = true
	b.ForceMute.WindowEndMinute = 8 * 60

	assert.Equal(t, []string{KeyEnableOnHeadset, KeyForceMuteTo}, Diff(a, b))
	assert.Empty(t, Diff(a, a))
}

func TestParseMinute(t *testing.T) {
	m, err := ParseMinute("23:00")
	require.NoError(t, err)
	assert.Equal(t, 1380, m)

	m, err = ParseMinute(" 60 ")
	require.NoError(t, err)
	assert.Equal(t, 60, m)

	for _, bad := range []string{"24:00", "12:60", "abc", "1440", "-1"} {
		_, err := ParseMinute(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "07:05", FormatMinute(425))
}

func TestIsForceMuteKey(t *testing.T) {
	assert.True(t, IsForceMuteKey(KeyForceMuteFrom))
	assert.False(t, IsForceMuteKey(KeyEnableOnHeadset))
}
