package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"volume-watcher/internal/config"
	"volume-watcher/internal/core"
	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
)

// DefaultDebounce coalesces the write/rename bursts of one save.
const DefaultDebounce = 250 * time.Millisecond

// Watcher is a signal source that reports external edits of the settings
// file as one config.changed signal per changed key.
type Watcher struct {
	repo     *FileRepository
	debounce time.Duration
	logger   zerolog.Logger
}

// NewWatcher creates a settings file watcher.
func NewWatcher(repo *FileRepository, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{repo: repo, debounce: debounce, logger: logging.Component("settings-watcher")}
}

func (w *Watcher) Name() string { return "settings" }

// Run watches the settings directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, emit func(domain.RawSignal)) error {
	target, err := filepath.Abs(w.repo.Path())
	if err != nil {
		return fmt.Errorf("resolve settings path: %w", err)
	}
	target = filepath.Clean(target)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch settings dir: %w", err)
	}

	last, err := w.repo.Load()
	if err != nil {
		w.logger.Warn().Err(err).Msg("initial settings read failed, using defaults as baseline")
		last = domain.DefaultSettings()
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("settings watcher closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					<-timerCh
				}
				timer.Reset(w.debounce)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			settings, err := w.repo.Load()
			if err != nil {
				w.logger.Warn().Err(err).Msg("reload settings")
				continue
			}
			for _, key := range config.Diff(last, settings) {
				w.logger.Debug().Str("key", key).Msg("setting changed")
				emit(core.ConfigSignal(key, settings))
			}
			last = settings
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("settings watcher closed")
			}
			w.logger.Warn().Err(err).Msg("settings watcher error")
		}
	}
}
