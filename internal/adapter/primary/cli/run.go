package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"volume-watcher/internal/adapter/primary/web"
	"volume-watcher/internal/adapter/secondary/alarm"
	"volume-watcher/internal/adapter/secondary/broadcast"
	"volume-watcher/internal/adapter/secondary/notify"
	"volume-watcher/internal/adapter/secondary/repository"
	"volume-watcher/internal/adapter/secondary/volume"
	"volume-watcher/internal/config"
	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
	"volume-watcher/internal/usecase"
)

type runOptions struct {
	addr     string
	poll     time.Duration
	lockPath string
	start    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "ウォッチャーを常駐起動（Web API + 監視）",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", defaultAddr, "HTTPサーバーのアドレス:ポート（空文字で無効）")
	cmd.Flags().DurationVar(&opts.poll, "poll", volume.DefaultPollInterval, "音量・出力先・通話状態のポーリング間隔")
	cmd.Flags().StringVar(&opts.lockPath, "lock", "", "多重起動防止ロックファイル（既定は設定ファイルと同じディレクトリ）")
	cmd.Flags().BoolVar(&opts.start, "start", false, "前回の状態に関わらず監視を開始")
	return cmd
}

func runDaemon(ctx context.Context, opts runOptions) error {
	lockPath := opts.lockPath
	if lockPath == "" {
		lockPath = config.DefaultLockPath(cfgPath)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("volume-watcher is already running (lock %s held by another process)", lockPath)
	}
	defer func() { _ = fileLock.Unlock() }()

	repo, err := repository.NewFileRepository(cfgPath)
	if err != nil {
		return err
	}

	deps, closeDeps := platformDeps(repo, opts.poll)
	defer closeDeps()

	uc, err := usecase.NewLifecycleController(deps)
	if err != nil {
		return err
	}
	defer uc.Close()

	if opts.start {
		if err := uc.Start(); err != nil {
			return err
		}
	} else if started, err := uc.StartIfEnabled(); err != nil {
		logging.Errorf("auto-start failed: %v", err)
	} else if started {
		logging.Infof("watcher resumed from previous session")
	}

	g, ctx := errgroup.WithContext(ctx)
	if opts.addr != "" {
		srv := web.NewServer(uc, opts.addr)
		fmt.Printf("Volume Watcher API running at http://%s\n", opts.addr)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		fmt.Println("Shutting down...")
		return nil
	})
	return g.Wait()
}

// platformDeps wires the desktop adapters, falling back to in-process ones
// when the sound server or the session bus is unreachable.
func platformDeps(repo *repository.FileRepository, poll time.Duration) (usecase.Deps, func()) {
	var closers []func()
	deps := usecase.Deps{
		Repo:        repo,
		Alarms:      alarm.NewTimerAlarms(domain.RealClock{}),
		Broadcaster: broadcast.NewHub(),
		Clock:       domain.RealClock{},
	}

	if pulse, err := volume.NewPulseDevice(); err == nil {
		deps.Audio, deps.Calls = pulse, pulse
		deps.Sources = append(deps.Sources, volume.NewPoller(pulse, pulse, poll))
		closers = append(closers, pulse.Close)
	} else {
		logging.Warnf("sound server unavailable, using in-memory device: %v", err)
		device := volume.NewMemoryDevice(0)
		deps.Audio, deps.Calls = device, device
		deps.Sources = append(deps.Sources, device)
	}

	if bus, err := notify.NewDBusSink(); err == nil {
		deps.Sink = bus
		deps.Sources = append(deps.Sources, bus)
		closers = append(closers, func() { _ = bus.Close() })
	} else {
		logging.Warnf("notification server unavailable, logging notifications: %v", err)
		deps.Sink = notify.NewLogSink()
	}

	deps.Sources = append(deps.Sources, repository.NewWatcher(repo, repository.DefaultDebounce))

	return deps, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}
