package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"volume-watcher/internal/adapter/secondary/alarm"
	"volume-watcher/internal/adapter/secondary/broadcast"
	"volume-watcher/internal/adapter/secondary/notify"
	"volume-watcher/internal/adapter/secondary/repository"
	"volume-watcher/internal/adapter/secondary/volume"
	"volume-watcher/internal/clock"
	"volume-watcher/internal/config"
	"volume-watcher/internal/core"
	"volume-watcher/internal/domain"
	"volume-watcher/internal/usecase"
)

func newSimulateCmd() *cobra.Command {
	var persist bool
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "仮想デバイスと仮想時計でウォッチャーを対話的に動かす",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if !persist {
				dir, err := os.MkdirTemp("", "volume-watcher-sim")
				if err != nil {
					return err
				}
				defer os.RemoveAll(dir)
				path = filepath.Join(dir, "settings.yaml")
			}
			repo, err := repository.NewFileRepository(path)
			if err != nil {
				return err
			}
			sim, err := newSimulator(repo, time.Now(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sim.Close()

			return runInteractiveShell("sim> ", "volume-watcher-sim.history", sim.help, sim.Exec)
		},
	}
	cmd.Flags().BoolVar(&persist, "persist", false, "--config の設定ファイルを読み書きする（既定は一時ファイル）")
	return cmd
}

// simulator drives a lifecycle controller with an in-memory device and a
// manual clock, so debounce, alarms and restarts can be stepped by hand.
type simulator struct {
	out    io.Writer
	clock  *clock.MockClock
	device *volume.MemoryDevice
	sink   *notify.LogSink
	hub    *broadcast.Hub
	uc     usecase.LifecycleUseCase
}

func newSimulator(repo domain.SettingsRepository, now time.Time, out io.Writer) (*simulator, error) {
	s := &simulator{
		out:    out,
		clock:  clock.NewMockClock(now),
		device: volume.NewMemoryDevice(5),
		sink:   notify.NewLogSink(),
		hub:    broadcast.NewHub(),
	}
	uc, err := usecase.NewLifecycleController(usecase.Deps{
		Repo:        repo,
		Audio:       s.device,
		Calls:       s.device,
		Sink:        s.sink,
		Alarms:      alarm.NewTimerAlarms(s.clock),
		Broadcaster: s.hub,
		Sources:     []domain.SignalSource{s.device},
		Clock:       s.clock,
	})
	if err != nil {
		return nil, err
	}
	s.uc = uc
	return s, nil
}

func (s *simulator) Close() {
	s.uc.Close()
}

// Exec runs one simulator command.
func (s *simulator) Exec(tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	args := tokens[1:]
	switch tokens[0] {
	case "start":
		return s.uc.Start()
	case "stop":
		return s.uc.Stop(true)
	case "toggle":
		return s.uc.Toggle()
	case "kill":
		reason := "killed"
		if len(args) > 0 {
			reason = strings.Join(args, " ")
		}
		s.uc.Terminate(errors.New(reason))
		return nil
	case "crash":
		s.device.Fail(errors.New("device connection lost"))
		return nil
	case "volume":
		level, err := oneInt(args)
		if err != nil {
			return err
		}
		s.device.SetVolume(level)
		return nil
	case "headset":
		on, err := onOff(args)
		if err != nil {
			return err
		}
		s.device.SetHeadset(on)
		return nil
	case "call":
		on, err := onOff(args)
		if err != nil {
			return err
		}
		s.device.SetCall(on)
		return nil
	case "mute":
		return s.uc.Dispatch(userCommand(core.CommandMute))
	case "dismiss":
		return s.uc.Dispatch(userCommand(core.CommandDismissForceMute))
	case "set":
		fields, err := parseAssignments(args)
		if err != nil {
			return err
		}
		return s.uc.UpdateConfig(fields)
	case "advance":
		if len(args) != 1 {
			return errors.New("usage: advance DURATION")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return err
		}
		s.clock.Advance(d)
		return nil
	case "at":
		if len(args) != 1 {
			return errors.New("usage: at HH:MM")
		}
		minute, err := config.ParseMinute(args[0])
		if err != nil {
			return err
		}
		s.clock.Set(domain.NewForceMuteService().NextTrigger(s.clock.Now(), minute))
		return nil
	case "status":
		s.printStatus()
		return nil
	case "notifications":
		for _, n := range s.sink.Visible() {
			fmt.Fprintf(s.out, "  #%d %-14s %s\n", n.ID, n.Title, n.Text)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q (help で一覧)", tokens[0])
	}
}

func (s *simulator) printStatus() {
	st := s.uc.Status()
	fmt.Fprintf(s.out, "clock:    %s\n", s.clock.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(s.out, "service:  %s restarts=%d pending=%t\n", st.State, st.Restarts, st.RestartPending)
	if st.LastTermination != "" {
		fmt.Fprintf(s.out, "last termination: %s\n", st.LastTermination)
	}
	if st.Worker == nil {
		return
	}
	m := st.Worker.Monitor
	level := "unknown"
	if m.VolumeKnown {
		level = strconv.Itoa(m.VolumeLevel)
	}
	fmt.Fprintf(s.out, "volume:   %s output=%s call=%t\n", level, m.OutputDevice(), m.CallActive)
	fmt.Fprintf(s.out, "force:    active=%t dismissed=%t mutes=%d\n", m.ForceMuteActive, st.Worker.ForceMuteDismissed, st.Worker.Mutes)
	fmt.Fprintf(s.out, "refresh:  immediate=%d trailing=%d\n", st.Worker.ImmediateRefreshes, st.Worker.TrailingRefreshes)
	for _, a := range st.Worker.Alarms {
		fmt.Fprintf(s.out, "alarm:    %-18s %s\n", a.ID, a.Trigger.Format("2006-01-02 15:04"))
	}
}

func (s *simulator) help() {
	fmt.Fprintln(s.out, `シミュレータのコマンド:
  start | stop | toggle       # 監視の開始/停止
  kill [理由]                 # 異常終了（3秒後に自動再起動）
  crash                       # 仮想デバイスの切断（異常終了扱い）
  volume N                    # メディア音量を変更（負数で読み取り不可）
  headset on|off              # ヘッドセットの接続/切断
  call on|off                 # 通話の開始/終了
  mute | dismiss              # 即時ミュート / 強制ミュート通知を閉じる
  set key=value ...           # 設定を変更
  advance 1s                  # 仮想時計を進める
  at 22:00                    # 次の指定時刻まで仮想時計を進める
  status | notifications      # 状態 / 表示中の通知
  log -vv                     # ログ出力を詳細化
  exit / quit                 # 終了`)
}

func userCommand(cmd core.Command) core.Event {
	return core.Event{Type: core.EventUserCommand, Data: core.UserCommandData{Command: cmd}}
}

func oneInt(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("expected one number")
	}
	return strconv.Atoi(args[0])
}

func onOff(args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("expected on or off")
	}
	switch args[0] {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", args[0])
}
