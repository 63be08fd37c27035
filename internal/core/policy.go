package core

import (
	"fmt"

	"volume-watcher/internal/config"
	"volume-watcher/internal/domain"
)

// Decide maps a monitor state to the set of indicators that should be visible.
// An active call blanks the output and volume indicators.
func Decide(m domain.MonitorState) domain.Decision {
	d := domain.Decision{ForceMuteVisible: m.ForceMuteActive}
	if m.CallActive {
		return d
	}

	routeAllowed := !m.HeadsetConnected || m.EnableOnHeadset
	d.OutputDeviceVisible = m.ShowOutputDeviceNoti && routeAllowed
	d.VolumeLevelVisible = m.ShowVolumeLevelNoti && m.MediaVolumeOn() && routeAllowed

	switch {
	case d.OutputDeviceVisible && !d.VolumeLevelVisible:
		d.UnifiedText = !m.ShowVolumeLevelNoti
	case d.VolumeLevelVisible && !d.OutputDeviceVisible:
		d.UnifiedText = !m.ShowOutputDeviceNoti
	}
	return d
}

// NotificationPlan lists the descriptors to show and the ids to cancel for one refresh.
type NotificationPlan struct {
	Show   []domain.NotificationDescriptor
	Cancel []int
}

// BuildNotifications builds fresh descriptors for every visible indicator and
// a cancel for every hidden one.
func BuildNotifications(state State, d domain.Decision) NotificationPlan {
	m := state.Monitor
	var plan NotificationPlan

	if d.OutputDeviceVisible {
		text := m.OutputDevice()
		if d.UnifiedText && m.VolumeKnown {
			text = fmt.Sprintf("%s · Volume %d", m.OutputDevice(), m.VolumeLevel)
		}
		plan.Show = append(plan.Show, domain.NotificationDescriptor{
			ChannelID: domain.ChannelOutputDevice,
			ID:        domain.NotificationOutputDevice,
			Title:     "Output device",
			Text:      text,
			Icon:      outputIcon(m),
			Ongoing:   true,
			Actions:   []domain.NotificationAction{domain.ActionStop, domain.ActionMute},
		})
	} else {
		plan.Cancel = append(plan.Cancel, domain.NotificationOutputDevice)
	}

	if d.VolumeLevelVisible {
		text := fmt.Sprintf("Volume %d", m.VolumeLevel)
		if d.UnifiedText {
			text = fmt.Sprintf("Volume %d · %s", m.VolumeLevel, m.OutputDevice())
		}
		plan.Show = append(plan.Show, domain.NotificationDescriptor{
			ChannelID: domain.ChannelVolumeLevel,
			ID:        domain.NotificationVolumeLevel,
			Title:     "Media volume",
			Text:      text,
			Icon:      fmt.Sprintf("level-%d", m.VolumeLevel),
			Ongoing:   true,
			Actions:   []domain.NotificationAction{domain.ActionStop, domain.ActionMute},
		})
	} else {
		plan.Cancel = append(plan.Cancel, domain.NotificationVolumeLevel)
	}

	if d.ForceMuteVisible {
		plan.Show = append(plan.Show, forceMuteNotification(state.Settings.ForceMute))
	} else {
		plan.Cancel = append(plan.Cancel, domain.NotificationForceMute)
	}
	return plan
}

// OngoingNotification is shown for as long as the watcher runs.
func OngoingNotification() domain.NotificationDescriptor {
	return domain.NotificationDescriptor{
		ChannelID: domain.ChannelOngoing,
		ID:        domain.NotificationOngoing,
		Title:     "Volume watcher",
		Text:      "Watching media volume and output device",
		Icon:      "watcher",
		Ongoing:   true,
		Actions:   []domain.NotificationAction{domain.ActionStop},
	}
}

func forceMuteNotification(schedule domain.ForceMuteSchedule) domain.NotificationDescriptor {
	text := "Media is muted while force mute is on"
	if schedule.Mode == domain.ModeScheduled {
		text = fmt.Sprintf("Media is muted until %s", config.FormatMinute(schedule.WindowEndMinute))
	}
	return domain.NotificationDescriptor{
		ChannelID: domain.ChannelForceMute,
		ID:        domain.NotificationForceMute,
		Title:     "Force mute",
		Text:      text,
		Icon:      "block",
		Ongoing:   true,
		Actions:   []domain.NotificationAction{domain.ActionDismissForceMute, domain.ActionStop},
	}
}

func outputIcon(m domain.MonitorState) string {
	switch {
	case m.HeadsetConnected:
		return "headset"
	case m.VolumeKnown && m.VolumeLevel == 0:
		return "speaker-mute"
	default:
		return "speaker"
	}
}
