package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
	"volume-watcher/internal/metrics"
)

const (
	// RefreshDelay is the trailing refresh delay after the last refresh in a burst.
	RefreshDelay = 1000 * time.Millisecond
	// ProbeDelay is how long after a route change the volume is read again.
	ProbeDelay = 1000 * time.Millisecond

	queueSize = 64
)

// Deps are the secondary ports used by the worker. Alarms may be nil, in
// which case force mute relies on on-demand window checks only.
type Deps struct {
	Audio  domain.AudioDevice
	Sink   domain.NotificationSink
	Alarms domain.AlarmFacility
	Repo   domain.SettingsRepository
	Clock  domain.Clock
}

// Snapshot is a consistent copy of the worker state for status surfaces.
type Snapshot struct {
	Monitor            domain.MonitorState
	Settings           domain.Settings
	ForceMuteDismissed bool
	Decision           domain.Decision
	Alarms             []domain.Alarm
	ImmediateRefreshes int
	TrailingRefreshes  int
	Mutes              int
}

// Manager is the single event worker. Every state transition, policy
// decision and alarm re-arm runs on its goroutine, one request at a time.
// Timers and alarms re-inject requests into the same queue.
type Manager struct {
	deps      Deps
	clock     domain.Clock
	logger    zerolog.Logger
	scheduler *forceMuteScheduler

	mu       sync.RWMutex
	state    State
	snapshot Snapshot

	queue    chan request
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once

	// owned by the worker goroutine
	refreshTimer domain.Timer
	refreshGen   uint64
	probeTimer   domain.Timer
	probeGen     uint64
	tornDown     bool
}

type requestKind int

const (
	reqEvent requestKind = iota
	reqBegin
	reqTrailingRefresh
	reqProbe
	reqSync
	reqStop
)

type request struct {
	kind     requestKind
	event    Event
	gen      uint64
	resultCh chan error
}

// NewManager prepares a worker for state. Call Start to run it.
func NewManager(deps Deps, state State) (*Manager, error) {
	if deps.Sink == nil || deps.Repo == nil {
		return nil, errors.New("notification sink and settings repository are required")
	}
	if deps.Clock == nil {
		deps.Clock = domain.RealClock{}
	}
	logger := logging.Component("worker")
	m := &Manager{
		deps:      deps,
		clock:     deps.Clock,
		logger:    logger,
		scheduler: newForceMuteScheduler(deps.Alarms, logger),
		state:     state,
		queue:     make(chan request, queueSize),
		done:      make(chan struct{}),
	}
	m.snapshot = Snapshot{Monitor: state.Monitor, Settings: state.Settings}
	return m, nil
}

// Start launches the worker goroutine and queues the start-up transition:
// force-mute recomputation, an unconditional refresh and the initial alarms.
func (m *Manager) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	m.queue <- request{kind: reqBegin}
	go m.loop()
}

// Done is closed once the worker goroutine has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Dispatch queues ev and waits until it has been applied.
func (m *Manager) Dispatch(ev Event) error {
	return m.call(request{kind: reqEvent, event: ev})
}

// Post queues ev without waiting. It reports false once the worker has stopped.
func (m *Manager) Post(ev Event) bool {
	return m.enqueue(request{kind: reqEvent, event: ev})
}

// Sync waits until every request queued before it has been processed.
func (m *Manager) Sync() error {
	return m.call(request{kind: reqSync})
}

// Stop cancels the debounce and probe timers, both alarms and every visible
// notification, then ends the worker. It is idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if !m.started.Load() {
			m.teardown()
			return
		}
		_ = m.call(request{kind: reqStop})
		<-m.done
	})
}

// Snapshot returns a copy of the last committed state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.Alarms = append([]domain.Alarm(nil), s.Alarms...)
	return s
}

func (m *Manager) call(req request) error {
	req.resultCh = make(chan error, 1)
	if !m.enqueue(req) {
		return domain.ErrClosed
	}
	select {
	case err := <-req.resultCh:
		return err
	case <-m.done:
		// the reply may have raced with shutdown
		select {
		case err := <-req.resultCh:
			return err
		default:
			return domain.ErrClosed
		}
	}
}

func (m *Manager) enqueue(req request) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.queue <- req:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	for req := range m.queue {
		err := m.process(req)
		if req.resultCh != nil {
			req.resultCh <- err
		}
		if req.kind == reqStop {
			return
		}
	}
}

// process applies one request. A panic is reported as an error and leaves
// the committed state untouched.
func (m *Manager) process(req request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event worker: recovered from panic: %v", r)
			m.logger.Error().Interface("panic", r).Str("event", string(req.event.Type)).Msg("request aborted")
		}
	}()

	switch req.kind {
	case reqBegin:
		newState, effects := HandleStart(m.state, m.clock.Now())
		m.commit(newState)
		if err := m.deps.Sink.Show(OngoingNotification()); err != nil {
			m.logger.Warn().Err(err).Msg("show ongoing notification")
		}
		m.logger.Info().Msg("event worker started")
		return m.executeEffects(effects)

	case reqEvent:
		return m.applyEvent(req.event, req.gen)

	case reqTrailingRefresh:
		if m.tornDown || req.gen != m.refreshGen {
			return nil
		}
		m.refreshTimer = nil
		m.applyDecision(true)
		return nil

	case reqProbe:
		if m.tornDown || req.gen != m.probeGen {
			return nil
		}
		m.probeTimer = nil
		return m.probeVolume()

	case reqSync:
		return nil

	case reqStop:
		m.teardown()
		m.logger.Info().Msg("event worker stopped")
		return nil

	default:
		return fmt.Errorf("unknown request kind %d", req.kind)
	}
}

func (m *Manager) applyEvent(ev Event, alarmGen uint64) error {
	if m.tornDown {
		return domain.ErrClosed
	}
	fromAlarm := ev.Type == EventForceMuteWindowEdge && alarmGen != 0
	if fromAlarm && !m.scheduler.Current(alarmGen) {
		m.logger.Debug().Str("event", ev.String()).Msg("ignoring alarm from a cancelled schedule")
		metrics.RecordEvent(string(ev.Type), "stale")
		return nil
	}

	now := m.clock.Now()
	newState, effects, err := HandleEvent(m.state, ev, now)
	if err != nil {
		metrics.RecordEvent(string(ev.Type), "error")
		m.logger.Debug().Err(err).Str("event", ev.String()).Msg("event rejected")
		return err
	}
	m.commit(newState)
	metrics.RecordEvent(string(ev.Type), "ok")
	m.logger.Trace().Str("event", ev.String()).Int("effects", len(effects)).Msg("event applied")

	if fromAlarm {
		// recompute the next edges from the actual firing time
		effects = append(effects, Effect{Type: EffectRearmAlarms, Settings: newState.Settings})
	}
	return m.executeEffects(effects)
}

func (m *Manager) commit(state State) {
	m.state = state
	m.mu.Lock()
	m.snapshot.Monitor = state.Monitor
	m.snapshot.Settings = state.Settings
	m.snapshot.ForceMuteDismissed = state.ForceMuteDismissed
	m.mu.Unlock()
}

// executeEffects performs effects in order. Refresh runs at most once and last.
func (m *Manager) executeEffects(effects []Effect) error {
	var lastErr error
	refresh := false
	for _, eff := range effects {
		switch eff.Type {
		case EffectMute:
			m.mute(eff)
		case EffectRefresh:
			refresh = true
		case EffectRearmAlarms:
			m.rearm(eff.Settings.ForceMute)
		case EffectSaveSettings:
			if err := m.deps.Repo.Save(eff.Settings); err != nil {
				m.logger.Error().Err(err).Msg("save settings")
				lastErr = err
			}
		case EffectProbeVolume:
			m.scheduleProbe()
		}
	}
	if refresh {
		m.refresh()
	}
	return lastErr
}

func (m *Manager) mute(eff Effect) {
	if m.deps.Audio == nil {
		m.logger.Warn().Str("reason", eff.Reason).Msg("audio device unavailable, mute skipped")
		metrics.RecordMute(domain.ErrFacilityUnavailable)
		return
	}
	err := m.deps.Audio.Mute(eff.Stream)
	metrics.RecordMute(err)
	if err != nil {
		m.logger.Warn().Err(err).Str("reason", eff.Reason).Msg("mute failed")
		return
	}
	m.logger.Info().Str("stream", string(eff.Stream)).Str("reason", eff.Reason).Msg("stream muted")
	m.mu.Lock()
	m.snapshot.Mutes++
	m.mu.Unlock()
}

func (m *Manager) rearm(schedule domain.ForceMuteSchedule) {
	m.scheduler.Rearm(schedule, m.clock.Now(), func(edge Edge, gen uint64) {
		m.enqueue(request{
			kind:  reqEvent,
			event: Event{Type: EventForceMuteWindowEdge, Data: WindowEdgeData{Edge: edge}},
			gen:   gen,
		})
	})
	armed := m.scheduler.Armed()
	metrics.SetArmedAlarms(len(armed))
	m.mu.Lock()
	m.snapshot.Alarms = armed
	m.mu.Unlock()
}

// refresh applies the decision now and re-arms the single trailing refresh.
func (m *Manager) refresh() {
	m.applyDecision(false)

	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
	}
	m.refreshGen++
	gen := m.refreshGen
	m.refreshTimer = m.clock.AfterFunc(RefreshDelay, func() {
		m.enqueue(request{kind: reqTrailingRefresh, gen: gen})
	})
}

func (m *Manager) applyDecision(trailing bool) {
	d := Decide(m.state.Monitor)
	plan := BuildNotifications(m.state, d)
	for _, n := range plan.Show {
		if err := m.deps.Sink.Show(n); err != nil {
			m.logger.Warn().Err(err).Int("id", n.ID).Msg("show notification")
		}
	}
	for _, id := range plan.Cancel {
		if err := m.deps.Sink.Cancel(id); err != nil {
			m.logger.Warn().Err(err).Int("id", id).Msg("cancel notification")
		}
	}

	metrics.RecordRefresh(trailing)
	m.mu.Lock()
	m.snapshot.Decision = d
	if trailing {
		m.snapshot.TrailingRefreshes++
	} else {
		m.snapshot.ImmediateRefreshes++
	}
	m.mu.Unlock()
}

func (m *Manager) scheduleProbe() {
	if m.probeTimer != nil {
		m.probeTimer.Stop()
	}
	m.probeGen++
	gen := m.probeGen
	m.probeTimer = m.clock.AfterFunc(ProbeDelay, func() {
		m.enqueue(request{kind: reqProbe, gen: gen})
	})
}

// probeVolume re-reads the stream level after a route change settled.
func (m *Manager) probeVolume() error {
	if m.deps.Audio == nil {
		return nil
	}
	level, err := m.deps.Audio.StreamVolume(domain.StreamMusic)
	if err != nil {
		m.logger.Debug().Err(err).Msg("volume probe failed, keeping previous level")
		return nil
	}
	return m.applyEvent(Event{Type: EventVolumeChanged, Data: VolumeChangedData{
		Stream:   domain.StreamMusic,
		Level:    level,
		Readable: true,
	}}, 0)
}

func (m *Manager) teardown() {
	if m.tornDown {
		return
	}
	m.tornDown = true

	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	if m.probeTimer != nil {
		m.probeTimer.Stop()
		m.probeTimer = nil
	}
	m.refreshGen++
	m.probeGen++

	m.scheduler.CancelAll()
	metrics.SetArmedAlarms(0)

	for _, id := range []int{
		domain.NotificationOutputDevice,
		domain.NotificationVolumeLevel,
		domain.NotificationForceMute,
		domain.NotificationOngoing,
	} {
		if err := m.deps.Sink.Cancel(id); err != nil {
			m.logger.Debug().Err(err).Int("id", id).Msg("cancel notification")
		}
	}

	m.mu.Lock()
	m.snapshot.Alarms = nil
	m.mu.Unlock()
}
