package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"volume-watcher/internal/core"
	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
)

const (
	notificationsName      = "org.freedesktop.Notifications"
	notificationsPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsInterface = "org.freedesktop.Notifications"

	appName = "volume-watcher"
)

var actionLabels = map[domain.NotificationAction]string{
	domain.ActionStop:             "Stop",
	domain.ActionMute:             "Mute",
	domain.ActionDismissForceMute: "Dismiss",
}

// DBusSink shows notifications through the desktop notification server and
// turns action button presses into command signals.
type DBusSink struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	logger zerolog.Logger

	mu sync.Mutex
	// server ids keyed by our notification id
	serverIDs map[int]uint32
}

// NewDBusSink connects to the session bus.
func NewDBusSink() (*DBusSink, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DBusSink{
		conn:      conn,
		obj:       conn.Object(notificationsName, notificationsPath),
		logger:    logging.Component("dbus-notify"),
		serverIDs: map[int]uint32{},
	}, nil
}

// Show creates or replaces the notification with n.ID.
func (s *DBusSink) Show(n domain.NotificationDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions := make([]string, 0, 2*len(n.Actions))
	for _, a := range n.Actions {
		actions = append(actions, string(a), actionLabels[a])
	}
	hints := map[string]dbus.Variant{
		"category":      dbus.MakeVariant("device"),
		"resident":      dbus.MakeVariant(n.Ongoing),
		"desktop-entry": dbus.MakeVariant(appName),
		"x-channel":     dbus.MakeVariant(n.ChannelID),
	}

	var id uint32
	call := s.obj.Call(notificationsInterface+".Notify", 0,
		appName, s.serverIDs[n.ID], n.Icon, n.Title, n.Text, actions, hints, int32(0))
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify %d: %w", n.ID, err)
	}
	s.serverIDs[n.ID] = id
	return nil
}

// Cancel closes the notification with id. Unknown ids are ignored.
func (s *DBusSink) Cancel(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	serverID, ok := s.serverIDs[id]
	if !ok {
		return nil
	}
	delete(s.serverIDs, id)
	if call := s.obj.Call(notificationsInterface+".CloseNotification", 0, serverID); call.Err != nil {
		return fmt.Errorf("close notification %d: %w", id, call.Err)
	}
	return nil
}

func (s *DBusSink) Name() string { return "notification-actions" }

// Run listens for ActionInvoked signals on our notifications and emits the
// matching command signal.
func (s *DBusSink) Run(ctx context.Context, emit func(domain.RawSignal)) error {
	opts := []dbus.MatchOption{
		dbus.WithMatchInterface(notificationsInterface),
		dbus.WithMatchMember("ActionInvoked"),
	}
	if err := s.conn.AddMatchSignal(opts...); err != nil {
		return fmt.Errorf("subscribe ActionInvoked: %w", err)
	}
	defer func() {
		if err := s.conn.RemoveMatchSignal(opts...); err != nil {
			s.logger.Debug().Err(err).Msg("remove match")
		}
	}()

	ch := make(chan *dbus.Signal, 16)
	s.conn.Signal(ch)
	defer s.conn.RemoveSignal(ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				return errors.New("session bus closed")
			}
			if sig.Name != notificationsInterface+".ActionInvoked" || len(sig.Body) < 2 {
				continue
			}
			serverID, _ := sig.Body[0].(uint32)
			action, _ := sig.Body[1].(string)
			if !s.owns(serverID) {
				continue
			}
			if cmd, ok := commandFor(domain.NotificationAction(action)); ok {
				s.logger.Debug().Str("action", action).Msg("notification action")
				emit(core.CommandSignal(cmd, nil))
			}
		}
	}
}

func (s *DBusSink) owns(serverID uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.serverIDs {
		if id == serverID {
			return true
		}
	}
	return false
}

// Close releases the bus connection.
func (s *DBusSink) Close() error {
	return s.conn.Close()
}

func commandFor(action domain.NotificationAction) (core.Command, bool) {
	switch action {
	case domain.ActionStop:
		return core.CommandStop, true
	case domain.ActionMute:
		return core.CommandMute, true
	case domain.ActionDismissForceMute:
		return core.CommandDismissForceMute, true
	default:
		return "", false
	}
}
