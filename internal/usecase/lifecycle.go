package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"volume-watcher/internal/config"
	"volume-watcher/internal/core"
	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
	"volume-watcher/internal/metrics"
)

// RestartDelay is the delay before a self-restart after involuntary termination.
const RestartDelay = 3000 * time.Millisecond

// LifecycleUseCase is the primary port for service lifecycle operations.
type LifecycleUseCase interface {
	Start() error
	Stop(byUser bool) error
	Toggle() error
	// StartIfEnabled starts the service when it was left enabled and
	// auto-start is configured. It reports whether it started.
	StartIfEnabled() (bool, error)
	// Terminate reports an involuntary termination of the running service.
	Terminate(reason error)
	// Signal normalizes and routes a raw signal.
	Signal(sig domain.RawSignal) error
	Dispatch(ev core.Event) error
	// UpdateConfig changes settings through the worker when running, or
	// directly in the repository when stopped.
	UpdateConfig(fields map[string]any) error
	// Settings returns the worker's settings when running, else the persisted ones.
	Settings() (domain.Settings, error)
	Status() Status
	// Close stops the service for process exit. No restart is scheduled.
	Close()
}

// Deps are the secondary ports wired into every run of the service.
type Deps struct {
	Repo        domain.SettingsRepository
	Audio       domain.AudioDevice
	Calls       domain.CallStateReader
	Sink        domain.NotificationSink
	Alarms      domain.AlarmFacility
	Broadcaster domain.Broadcaster
	Sources     []domain.SignalSource
	Clock       domain.Clock
}

// Status is the lifecycle view exposed to the CLI and HTTP surfaces.
type Status struct {
	State           domain.LifecycleState
	RestartPending  bool
	Restarts        int
	LastTermination string
	// Worker is nil unless the service is running.
	Worker *core.Snapshot
}

// lifecycleController implements LifecycleUseCase.
// opMu serializes start/stop/terminate/restart; mu guards the fields below it.
type lifecycleController struct {
	deps   Deps
	clock  domain.Clock
	logger zerolog.Logger

	opMu      sync.Mutex
	sourcesWG sync.WaitGroup

	mu              sync.Mutex
	state           domain.LifecycleState
	stoppedByUser   bool
	ran             bool
	closed          bool
	runGen          uint64
	restartTimer    domain.Timer
	restarts        int
	lastTermination string
	manager         *core.Manager
	cancelSources   context.CancelFunc
}

// NewLifecycleController creates the lifecycle controller.
// Dependencies are injected (secondary ports).
func NewLifecycleController(deps Deps) (LifecycleUseCase, error) {
	if deps.Repo == nil || deps.Sink == nil {
		return nil, errors.New("settings repository and notification sink are required")
	}
	if deps.Clock == nil {
		deps.Clock = domain.RealClock{}
	}
	metrics.SetLifecycleState(int(domain.StateStopped))
	return &lifecycleController{
		deps:   deps,
		clock:  deps.Clock,
		logger: logging.Component("lifecycle"),
		state:  domain.StateStopped,
	}, nil
}

// Start moves Stopped → Starting → Running.
func (c *lifecycleController) Start() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.startLocked("user")
}

// Stop moves Running → StoppingByUser|StoppingBySystem → Stopped.
// A user stop also cancels a pending restart.
func (c *lifecycleController) Stop(byUser bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	running := c.state == domain.StateRunning
	cancelled := false
	if byUser {
		c.stoppedByUser = true
		cancelled = c.cancelRestartLocked()
	}
	c.mu.Unlock()

	if !running {
		if byUser {
			c.persistServiceEnabled(false)
		}
		if cancelled {
			c.logger.Info().Msg("pending restart cancelled by user stop")
			return nil
		}
		return domain.ErrNotRunning
	}
	c.stopLocked(byUser)
	return nil
}

func (c *lifecycleController) Toggle() error {
	c.mu.Lock()
	running := c.state == domain.StateRunning
	c.mu.Unlock()
	if running {
		return c.Stop(true)
	}
	return c.Start()
}

func (c *lifecycleController) StartIfEnabled() (bool, error) {
	settings, err := c.deps.Repo.Load()
	if err != nil {
		return false, err
	}
	if !settings.ServiceEnabled || !settings.AutoStartOnBoot {
		c.logger.Info().
			Bool("serviceEnabled", settings.ServiceEnabled).
			Bool("autoStartOnBoot", settings.AutoStartOnBoot).
			Msg("auto-start skipped")
		return false, nil
	}
	if err := c.Start(); err != nil {
		return false, err
	}
	return true, nil
}

func (c *lifecycleController) Terminate(reason error) {
	c.terminate(0, reason)
}

// terminate handles an involuntary termination. gen is the run that reported
// it, or zero for the current run. The user-stop flag is read and cleared in
// one step, so the most recent explicit stop decides whether to restart.
func (c *lifecycleController) terminate(gen uint64, reason error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if reason == nil {
		reason = errors.New("terminated")
	}

	c.mu.Lock()
	if gen != 0 && gen != c.runGen {
		c.mu.Unlock()
		c.logger.Debug().Err(reason).Msg("ignoring termination of a previous run")
		return
	}
	wasUser := c.stoppedByUser
	c.stoppedByUser = false
	ran := c.ran
	c.ran = false
	running := c.state == domain.StateRunning
	closed := c.closed
	c.lastTermination = reason.Error()
	c.mu.Unlock()

	c.logger.Warn().Err(reason).Bool("running", running).Bool("stoppedByUser", wasUser).Msg("involuntary termination")

	if running {
		c.stopLocked(false)
	}
	switch {
	case closed:
		return
	case wasUser:
		c.logger.Info().Msg("last stop was requested by the user, not restarting")
		return
	case !running && !ran:
		return
	}
	c.scheduleRestart()
}

func (c *lifecycleController) scheduleRestart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restartTimer != nil {
		return
	}
	c.restarts++
	metrics.RecordRestartScheduled()
	c.restartTimer = c.clock.AfterFunc(RestartDelay, c.restart)
	c.logger.Info().Dur("delay", RestartDelay).Msg("restart scheduled")
}

func (c *lifecycleController) restart() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.restartTimer == nil {
		// cancelled after the timer fired
		c.mu.Unlock()
		return
	}
	c.restartTimer = nil
	c.mu.Unlock()

	if err := c.startLocked("restart"); err != nil {
		c.logger.Error().Err(err).Msg("restart failed")
	}
}

// cancelRestartLocked requires c.mu.
func (c *lifecycleController) cancelRestartLocked() bool {
	if c.restartTimer == nil {
		return false
	}
	c.restartTimer.Stop()
	c.restartTimer = nil
	return true
}

// startLocked requires c.opMu.
func (c *lifecycleController) startLocked(origin string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	if c.state != domain.StateStopped {
		c.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	c.setStateLocked(domain.StateStarting)
	c.stoppedByUser = false
	c.cancelRestartLocked()
	c.mu.Unlock()

	settings, err := c.deps.Repo.Load()
	if err != nil {
		c.setState(domain.StateStopped)
		return fmt.Errorf("load settings: %w", err)
	}
	if !settings.ServiceEnabled {
		settings.ServiceEnabled = true
		if err := c.deps.Repo.Save(settings); err != nil {
			c.logger.Warn().Err(err).Msg("persist serviceEnabled")
		}
	}

	state := core.NewState(settings)
	c.readInitial(&state)

	mgr, err := core.NewManager(core.Deps{
		Audio:  c.deps.Audio,
		Sink:   c.deps.Sink,
		Alarms: c.deps.Alarms,
		Repo:   c.deps.Repo,
		Clock:  c.clock,
	}, state)
	if err != nil {
		c.setState(domain.StateStopped)
		return err
	}
	mgr.Start()

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.runGen++
	gen := c.runGen
	c.manager = mgr
	c.cancelSources = cancel
	c.ran = true
	c.mu.Unlock()

	for _, src := range c.deps.Sources {
		c.sourcesWG.Add(1)
		go c.runSource(ctx, gen, mgr, src)
	}

	if c.deps.Broadcaster != nil {
		c.deps.Broadcaster.Broadcast(domain.LifecycleStarted)
	}
	c.setState(domain.StateRunning)
	c.logger.Info().Str("origin", origin).Int("sources", len(c.deps.Sources)).Msg("service started")
	return nil
}

// stopLocked requires c.opMu and a running service.
func (c *lifecycleController) stopLocked(byUser bool) {
	c.mu.Lock()
	c.stoppedByUser = byUser
	if byUser {
		c.setStateLocked(domain.StateStoppingByUser)
	} else {
		c.setStateLocked(domain.StateStoppingBySystem)
	}
	mgr, cancel := c.manager, c.cancelSources
	c.manager, c.cancelSources = nil, nil
	c.runGen++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.sourcesWG.Wait()
	if mgr != nil {
		mgr.Stop()
	}
	if c.deps.Broadcaster != nil {
		c.deps.Broadcaster.Broadcast(domain.LifecycleStopped)
	}
	if byUser {
		c.persistServiceEnabled(false)
	}

	c.setState(domain.StateStopped)
	c.logger.Info().Bool("byUser", byUser).Msg("service stopped")
}

func (c *lifecycleController) runSource(ctx context.Context, gen uint64, mgr *core.Manager, src domain.SignalSource) {
	defer c.sourcesWG.Done()

	name := src.Name()
	err := src.Run(ctx, func(sig domain.RawSignal) {
		c.route(name, mgr, sig)
	})
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("exited")
	}
	c.logger.Error().Err(err).Str("source", name).Msg("signal source died")
	// stopLocked waits for this goroutine, so termination must not run inline
	go c.terminate(gen, fmt.Errorf("signal source %s: %w", name, err))
}

// route runs on source goroutines; lifecycle commands are handed off so a
// source never blocks on the controller.
func (c *lifecycleController) route(source string, mgr *core.Manager, sig domain.RawSignal) {
	ev, ok := core.Normalize(sig)
	if !ok {
		metrics.RecordDroppedSignal(source)
		c.logger.Trace().Str("source", source).Str("action", sig.Action).Msg("signal dropped")
		return
	}
	if cmd, ok := lifecycleCommand(ev); ok {
		go func() {
			if err := c.runCommand(cmd); err != nil {
				c.logger.Info().Err(err).Str("command", string(cmd)).Msg("lifecycle command")
			}
		}()
		return
	}
	mgr.Post(ev)
}

func (c *lifecycleController) Signal(sig domain.RawSignal) error {
	ev, ok := core.Normalize(sig)
	if !ok {
		metrics.RecordDroppedSignal("api")
		return fmt.Errorf("%w: %q", domain.ErrUnknownSignal, sig.Action)
	}
	return c.Dispatch(ev)
}

func (c *lifecycleController) Dispatch(ev core.Event) error {
	if cmd, ok := lifecycleCommand(ev); ok {
		return c.runCommand(cmd)
	}
	c.mu.Lock()
	mgr := c.manager
	c.mu.Unlock()
	if mgr == nil {
		return domain.ErrNotRunning
	}
	return mgr.Dispatch(ev)
}

func (c *lifecycleController) UpdateConfig(fields map[string]any) error {
	c.mu.Lock()
	mgr := c.manager
	c.mu.Unlock()
	if mgr != nil {
		return mgr.Dispatch(core.Event{Type: core.EventUserCommand, Data: core.UserCommandData{
			Command: core.CommandUpdateConfig,
			Fields:  fields,
		}})
	}

	current, err := c.deps.Repo.Load()
	if err != nil {
		return err
	}
	settings, unknown, err := config.FromMap(current, fields)
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownKey, strings.Join(unknown, ", "))
	}
	if settings, err = config.Normalize(settings); err != nil {
		return err
	}
	return c.deps.Repo.Save(settings)
}

func (c *lifecycleController) Settings() (domain.Settings, error) {
	c.mu.Lock()
	mgr := c.manager
	c.mu.Unlock()
	if mgr != nil {
		return mgr.Snapshot().Settings, nil
	}
	return c.deps.Repo.Load()
}

func (c *lifecycleController) runCommand(cmd core.Command) error {
	switch cmd {
	case core.CommandStart:
		return c.Start()
	case core.CommandStop:
		return c.Stop(true)
	case core.CommandToggle:
		return c.Toggle()
	default:
		return fmt.Errorf("not a lifecycle command: %s", cmd)
	}
}

func (c *lifecycleController) Status() Status {
	c.mu.Lock()
	s := Status{
		State:           c.state,
		RestartPending:  c.restartTimer != nil,
		Restarts:        c.restarts,
		LastTermination: c.lastTermination,
	}
	mgr := c.manager
	c.mu.Unlock()

	if mgr != nil {
		snap := mgr.Snapshot()
		s.Worker = &snap
	}
	return s
}

func (c *lifecycleController) Close() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.closed = true
	c.cancelRestartLocked()
	running := c.state == domain.StateRunning
	c.mu.Unlock()

	if running {
		c.stopLocked(false)
	}
}

func (c *lifecycleController) readInitial(state *core.State) {
	if c.deps.Audio != nil {
		if level, err := c.deps.Audio.StreamVolume(domain.StreamMusic); err == nil && level >= 0 {
			state.Monitor.VolumeLevel = level
			state.Monitor.VolumeKnown = true
		} else if err != nil {
			c.logger.Debug().Err(err).Msg("initial volume read failed")
		}
		if connected, err := c.deps.Audio.HeadsetConnected(); err == nil {
			state.Monitor.HeadsetConnected = connected
		} else {
			c.logger.Debug().Err(err).Msg("initial headset read failed")
		}
	}
	if c.deps.Calls != nil {
		if active, err := c.deps.Calls.CallActive(); err == nil {
			state.Monitor.CallActive = active
		} else {
			c.logger.Debug().Err(err).Msg("initial call state read failed")
		}
	}
}

func (c *lifecycleController) persistServiceEnabled(enabled bool) {
	settings, err := c.deps.Repo.Load()
	if err != nil {
		c.logger.Warn().Err(err).Msg("load settings")
		return
	}
	if settings.ServiceEnabled == enabled {
		return
	}
	settings.ServiceEnabled = enabled
	if err := c.deps.Repo.Save(settings); err != nil {
		c.logger.Warn().Err(err).Msg("persist serviceEnabled")
	}
}

func (c *lifecycleController) setState(s domain.LifecycleState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(s)
}

func (c *lifecycleController) setStateLocked(s domain.LifecycleState) {
	c.state = s
	metrics.SetLifecycleState(int(s))
}

func lifecycleCommand(ev core.Event) (core.Command, bool) {
	if ev.Type != core.EventUserCommand {
		return "", false
	}
	data, ok := ev.Data.(core.UserCommandData)
	if !ok || !data.Command.IsLifecycle() {
		return "", false
	}
	return data.Command, true
}
