package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"volume-watcher/internal/adapter/secondary/repository"
	"volume-watcher/internal/config"
	"volume-watcher/internal/domain"
	"volume-watcher/internal/logging"
)

const defaultAddr = "127.0.0.1:7070"

var (
	cfgPath   string
	verbosity int
	server    string
)

// NewRootCmd creates the root CLI command.
// This is the primary adapter that translates CLI inputs to use case calls.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "volume-watcher",
		Short:        "メディア音量・出力先・通話状態を監視し通知とミュートを行う常駐ツール",
		Long:         "音量と出力デバイスの常駐通知、時間帯による強制ミュート、異常終了時の自動再起動を備えたウォッチャー",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "設定ファイルのパス")
	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "ロギングを詳細化 (-v, -vv, ... 最大4回)")
	cmd.PersistentFlags().StringVar(&server, "server", "http://"+defaultAddr, "稼働中のウォッチャーのURL")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.SetVerbosity(verbosity)
	}

	cmd.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newRemoteCommandCmd("start", "監視を開始"),
		newRemoteCommandCmd("stop", "監視を停止（自動再起動もしない）"),
		newRemoteCommandCmd("toggle", "監視の開始/停止を切り替え"),
		newRemoteCommandCmd("mute", "メディア音量を今すぐミュート"),
		newRemoteCommandCmd("dismiss-force-mute", "強制ミュート通知を次の開始時刻まで閉じる"),
		newConfigCmd(),
		newScheduleCmd(),
		newSimulateCmd(),
		newShellCmd(),
	)

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "稼働中のウォッチャーの状態(JSON)を表示",
		RunE: func(cmd *cobra.Command, args []string) error {
			return callServer(cmd.OutOrStdout(), http.MethodGet, "/api/status", nil)
		},
	}
}

func newRemoteCommandCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return callServer(cmd.OutOrStdout(), http.MethodPost, "/api/commands/"+name, nil)
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "設定の取得・更新を行うサブコマンド",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd(), newConfigKeysCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "現在の設定(JSON)を表示",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repository.NewFileRepository(cfgPath)
			if err != nil {
				return err
			}
			settings, err := repo.Load()
			if err != nil {
				return err
			}
			display := config.ToMap(settings)
			display[config.KeyForceMuteFrom] = config.FormatMinute(settings.ForceMute.WindowStartMinute)
			display[config.KeyForceMuteTo] = config.FormatMinute(settings.ForceMute.WindowEndMinute)

			out, _ := json.MarshalIndent(display, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set key=value [key=value...]",
		Short:   "設定を書き換え（稼働中のウォッチャーはファイル変更を検知して反映）",
		Example: "  volume-watcher config set forceMute.enabled=true forceMute.fromMinute=22:00 forceMute.toMinute=06:30",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseAssignments(args)
			if err != nil {
				return err
			}
			repo, err := repository.NewFileRepository(cfgPath)
			if err != nil {
				return err
			}
			settings, err := applyFields(repo, fields)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "保存しました: %s\n", repo.Path())
			printSchedule(cmd.OutOrStdout(), settings.ForceMute, time.Now())
			return nil
		},
	}
}

func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "設定キーの一覧を表示",
		Run: func(cmd *cobra.Command, args []string) {
			for _, key := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
		},
	}
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "強制ミュートの時間帯と次のアラーム時刻を表示",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repository.NewFileRepository(cfgPath)
			if err != nil {
				return err
			}
			settings, err := repo.Load()
			if err != nil {
				return err
			}
			printSchedule(cmd.OutOrStdout(), settings.ForceMute, time.Now())
			return nil
		},
	}
}

// parseAssignments turns key=value arguments into a field map.
func parseAssignments(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("key=value の形式で指定してください: %q", arg)
		}
		fields[key] = value
	}
	return fields, nil
}

func applyFields(repo domain.SettingsRepository, fields map[string]any) (domain.Settings, error) {
	current, err := repo.Load()
	if err != nil {
		return domain.Settings{}, err
	}
	settings, unknown, err := config.FromMap(current, fields)
	if err != nil {
		return domain.Settings{}, err
	}
	if len(unknown) > 0 {
		return domain.Settings{}, fmt.Errorf("%w: %s", domain.ErrUnknownKey, strings.Join(unknown, ", "))
	}
	if settings, err = config.Normalize(settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, repo.Save(settings)
}

func printSchedule(w io.Writer, schedule domain.ForceMuteSchedule, now time.Time) {
	svc := domain.NewForceMuteService()
	fmt.Fprintf(w, "force mute: enabled=%t mode=%s window=%s-%s active=%t\n",
		schedule.Enabled,
		schedule.Mode,
		config.FormatMinute(schedule.WindowStartMinute),
		config.FormatMinute(schedule.WindowEndMinute),
		svc.ActiveAt(schedule, now),
	)
	for _, alarm := range svc.WindowAlarms(schedule, now) {
		fmt.Fprintf(w, "  %-18s %s\n", alarm.ID, alarm.Trigger.Format("2006-01-02 15:04"))
	}
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// callServer sends a request to a running watcher and prints the JSON reply.
func callServer(w io.Writer, method, path string, body io.Reader) error {
	req, err := http.NewRequest(method, strings.TrimRight(server, "/")+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ウォッチャーに接続できません (%s): %w", server, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if msg, ok := payload["error"].(string); ok {
			return errors.New(msg)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	out, _ := json.MarshalIndent(payload, "", "  ")
	fmt.Fprintln(w, string(out))
	return nil
}
