package core

import (
	"fmt"
	"strconv"
	"strings"

	"volume-watcher/internal/domain"
)

// Raw signal actions and extras understood by Normalize.
const (
	ActionVolumeChanged                   = "volume.changed"
	ActionHeadsetPlug                     = "headset.plug"
	ActionBluetoothConnection             = "bluetooth.connection_state"
	ActionBluetoothACLConnected           = "bluetooth.acl_connected"
	ActionBluetoothACLDisconnected        = "bluetooth.acl_disconnected"
	ActionBluetoothACLDisconnectRequested = "bluetooth.acl_disconnect_requested"
	ActionPhoneState                      = "phone.state"
	ActionForceMuteAlarm                  = "alarm.force_mute"
	ActionCommand                         = "command"
	ActionConfigChanged                   = "config.changed"

	ExtraStream   = "stream"
	ExtraValue    = "value"
	ExtraState    = "state"
	ExtraEdge     = "edge"
	ExtraName     = "name"
	ExtraKey      = "key"
	ExtraSettings = "settings"
	ExtraFields   = "fields"

	PhoneStateIdle             = "idle"
	PhoneStateRinging          = "ringing"
	PhoneStateOffhook          = "offhook"
	BluetoothStateConnected    = "connected"
	BluetoothStateDisconnected = "disconnected"
)

const unreadableVolume = -1

// Normalize translates a raw external signal into exactly one event.
// Signals that are not recognised yield ok=false and are dropped.
func Normalize(sig domain.RawSignal) (Event, bool) {
	switch sig.Action {
	case ActionVolumeChanged:
		stream, _ := sig.Extras[ExtraStream].(string)
		if domain.Stream(stream) != domain.StreamMusic {
			return Event{}, false
		}
		level, ok := intExtra(sig.Extras, ExtraValue)
		if !ok {
			level = unreadableVolume
		}
		return Event{Type: EventVolumeChanged, Data: VolumeChangedData{
			Stream:   domain.StreamMusic,
			Level:    level,
			Readable: level >= 0,
		}}, true

	case ActionHeadsetPlug:
		state, _ := intExtra(sig.Extras, ExtraState)
		return headset(state == 1), true

	case ActionBluetoothConnection:
		state, _ := sig.Extras[ExtraState].(string)
		return headset(state == BluetoothStateConnected), true

	case ActionBluetoothACLConnected:
		return headset(true), true

	case ActionBluetoothACLDisconnected, ActionBluetoothACLDisconnectRequested:
		return headset(false), true

	case ActionPhoneState:
		state, ok := sig.Extras[ExtraState].(string)
		if !ok {
			return Event{}, false
		}
		return Event{Type: EventCallStateChanged, Data: CallStateChangedData{
			Active: strings.EqualFold(state, PhoneStateOffhook),
		}}, true

	case ActionForceMuteAlarm:
		edge, _ := sig.Extras[ExtraEdge].(string)
		switch Edge(edge) {
		case EdgeStart, EdgeStop:
			return Event{Type: EventForceMuteWindowEdge, Data: WindowEdgeData{Edge: Edge(edge)}}, true
		}
		return Event{}, false

	case ActionCommand:
		name, _ := sig.Extras[ExtraName].(string)
		cmd := Command(name)
		switch cmd {
		case CommandStart, CommandStop, CommandToggle, CommandMute, CommandDismissForceMute:
			return Event{Type: EventUserCommand, Data: UserCommandData{Command: cmd}}, true
		case CommandUpdateConfig:
			fields, _ := sig.Extras[ExtraFields].(map[string]any)
			if len(fields) == 0 {
				return Event{}, false
			}
			return Event{Type: EventUserCommand, Data: UserCommandData{Command: cmd, Fields: fields}}, true
		}
		return Event{}, false

	case ActionConfigChanged:
		key, _ := sig.Extras[ExtraKey].(string)
		settings, ok := sig.Extras[ExtraSettings].(domain.Settings)
		if key == "" || !ok {
			return Event{}, false
		}
		return Event{Type: EventConfigChanged, Data: ConfigChangedData{Key: key, Settings: settings}}, true
	}
	return Event{}, false
}

func headset(connected bool) Event {
	return Event{Type: EventHeadsetChanged, Data: HeadsetChangedData{Connected: connected}}
}

func intExtra(extras map[string]any, key string) (int, bool) {
	switch v := extras[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// Signal helpers used by adapters that produce raw signals.

// VolumeSignal builds a volume.changed raw signal. A negative level marks an unreadable sample.
func VolumeSignal(stream domain.Stream, level int) domain.RawSignal {
	return domain.RawSignal{Action: ActionVolumeChanged, Extras: map[string]any{
		ExtraStream: string(stream),
		ExtraValue:  level,
	}}
}

// HeadsetSignal builds a headset.plug raw signal.
func HeadsetSignal(connected bool) domain.RawSignal {
	state := 0
	if connected {
		state = 1
	}
	return domain.RawSignal{Action: ActionHeadsetPlug, Extras: map[string]any{ExtraState: state}}
}

// PhoneSignal builds a phone.state raw signal.
func PhoneSignal(offhook bool) domain.RawSignal {
	state := PhoneStateIdle
	if offhook {
		state = PhoneStateOffhook
	}
	return domain.RawSignal{Action: ActionPhoneState, Extras: map[string]any{ExtraState: state}}
}

// AlarmSignal builds an alarm.force_mute raw signal.
func AlarmSignal(edge Edge) domain.RawSignal {
	return domain.RawSignal{Action: ActionForceMuteAlarm, Extras: map[string]any{ExtraEdge: string(edge)}}
}

// CommandSignal builds a command raw signal.
func CommandSignal(cmd Command, fields map[string]any) domain.RawSignal {
	extras := map[string]any{ExtraName: string(cmd)}
	if fields != nil {
		extras[ExtraFields] = fields
	}
	return domain.RawSignal{Action: ActionCommand, Extras: extras}
}

// ConfigSignal builds a config.changed raw signal carrying the settings that were read.
func ConfigSignal(key string, settings domain.Settings) domain.RawSignal {
	return domain.RawSignal{Action: ActionConfigChanged, Extras: map[string]any{
		ExtraKey:      key,
		ExtraSettings: settings,
	}}
}

func (e Event) String() string {
	return fmt.Sprintf("%s%+v", e.Type, e.Data)
}
