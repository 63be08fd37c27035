package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"volume-watcher/internal/config"
	"volume-watcher/internal/core"
	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
	"volume-watcher/internal/usecase"
)

// DefaultSignalRate bounds injected signals per client per minute.
const DefaultSignalRate = 600

// Server is a primary adapter that exposes the HTTP API, a status page and metrics.
// It depends on the use case (primary port).
type Server struct {
	usecase usecase.LifecycleUseCase
	server  *http.Server
	logger  zerolog.Logger
}

// NewServer creates the HTTP server bound to addr.
func NewServer(uc usecase.LifecycleUseCase, addr string) *Server {
	srv := &Server{usecase: uc, logger: logging.Component("http")}
	srv.server = &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Routes builds the router. It is exported for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Get("/", s.handleRoot)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Post("/commands/{name}", s.handleCommand)
		r.With(rateLimit(DefaultSignalRate, time.Minute)).Post("/signals", s.handleSignal)
	})
	return r
}

// Start blocks and serves HTTP traffic.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Volume Watcher</title>
    <style>
        body { font-family: sans-serif; max-width: 640px; margin: 50px auto; padding: 20px; }
        .info { background: #f0f0f0; padding: 15px; border-radius: 5px; margin: 20px 0; white-space: pre; }
        button { background: #007bff; color: white; border: none; padding: 10px 20px; border-radius: 5px; cursor: pointer; margin-right: 6px; }
    </style>
</head>
<body>
    <h1>Volume Watcher</h1>
    <div class="info" id="status">Loading...</div>
    <button onclick="command('toggle')">Start / Stop</button>
    <button onclick="command('mute')">Mute</button>
    <button onclick="command('dismiss-force-mute')">Dismiss force mute</button>
    <script>
        async function loadStatus() {
            const res = await fetch('/api/status');
            document.getElementById('status').textContent = JSON.stringify(await res.json(), null, 2);
        }
        async function command(name) {
            await fetch('/api/commands/' + name, {method: 'POST'});
            await loadStatus();
        }
        loadStatus();
        setInterval(loadStatus, 3000);
    </script>
</body>
</html>`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, statusToView(s.usecase.Status()))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := s.usecase.Settings()
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, config.ToMap(settings))
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if err := s.usecase.UpdateConfig(fields); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, statusToView(s.usecase.Status()))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	cmd := core.Command(chi.URLParam(r, "name"))
	var err error
	switch cmd {
	case core.CommandStart:
		err = s.usecase.Start()
	case core.CommandStop:
		err = s.usecase.Stop(true)
	case core.CommandToggle:
		err = s.usecase.Toggle()
	case core.CommandMute, core.CommandDismissForceMute:
		err = s.usecase.Dispatch(core.Event{Type: core.EventUserCommand, Data: core.UserCommandData{Command: cmd}})
	default:
		respondError(w, http.StatusNotFound, fmt.Errorf("unknown command %q", cmd))
		return
	}
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, statusToView(s.usecase.Status()))
}

type signalPayload struct {
	Action string         `json:"action"`
	Extras map[string]any `json:"extras"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req signalPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Action == "" {
		respondError(w, http.StatusBadRequest, errors.New("action is required"))
		return
	}
	if err := s.usecase.Signal(domain.RawSignal{Action: req.Action, Extras: req.Extras}); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type workerView struct {
	VolumeLevel        *int           `json:"volumeLevel"`
	OutputDevice       string         `json:"outputDevice"`
	CallActive         bool           `json:"callActive"`
	ForceMuteActive    bool           `json:"forceMuteActive"`
	ForceMuteDismissed bool           `json:"forceMuteDismissed"`
	Visible            []string       `json:"visible"`
	Alarms             []alarmView    `json:"alarms"`
	Refreshes          map[string]int `json:"refreshes"`
	Mutes              int            `json:"mutes"`
}

type alarmView struct {
	ID      string    `json:"id"`
	Trigger time.Time `json:"trigger"`
}

type statusView struct {
	State           string      `json:"state"`
	RestartPending  bool        `json:"restartPending"`
	Restarts        int         `json:"restarts"`
	LastTermination string      `json:"lastTermination,omitempty"`
	Worker          *workerView `json:"worker,omitempty"`
}

func statusToView(st usecase.Status) statusView {
	view := statusView{
		State:           st.State.String(),
		RestartPending:  st.RestartPending,
		Restarts:        st.Restarts,
		LastTermination: st.LastTermination,
	}
	snap := st.Worker
	if snap == nil {
		return view
	}

	w := &workerView{
		OutputDevice:       snap.Monitor.OutputDevice(),
		CallActive:         snap.Monitor.CallActive,
		ForceMuteActive:    snap.Monitor.ForceMuteActive,
		ForceMuteDismissed: snap.ForceMuteDismissed,
		Visible:            []string{},
		Alarms:             []alarmView{},
		Refreshes: map[string]int{
			"immediate": snap.ImmediateRefreshes,
			"trailing":  snap.TrailingRefreshes,
		},
		Mutes: snap.Mutes,
	}
	if snap.Monitor.VolumeKnown {
		level := snap.Monitor.VolumeLevel
		w.VolumeLevel = &level
	}
	if snap.Decision.OutputDeviceVisible {
		w.Visible = append(w.Visible, "output-device")
	}
	if snap.Decision.VolumeLevelVisible {
		w.Visible = append(w.Visible, "volume-level")
	}
	if snap.Decision.ForceMuteVisible {
		w.Visible = append(w.Visible, "force-mute")
	}
	for _, a := range snap.Alarms {
		w.Alarms = append(w.Alarms, alarmView{ID: string(a.ID), Trigger: a.Trigger})
	}
	view.Worker = w
	return view
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotRunning), errors.Is(err, domain.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownKey),
		errors.Is(err, domain.ErrUnknownSignal),
		errors.Is(err, domain.ErrInvalidMinute),
		errors.Is(err, domain.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Warnf("encode JSON: %v", err)
	}
}

// rateLimit limits requests per client IP and answers 429 with a JSON body.
func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", window.Seconds()))
			respondError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
		}),
	)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
