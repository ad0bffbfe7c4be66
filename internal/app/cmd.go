package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitoshi/profiletracker/internal/config"
	"github.com/hitoshi/profiletracker/internal/model"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は定期再取り込みワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandTrack はプロフィールを1件登録して取り込むことを示す。
	CommandTrack Command = "track"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドが省略された場合はserveとして起動する。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// NewRootCommand はprofiletrackerのルートコマンドを生成する。
// ログとコマンド出力はwに書き込む。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "profiletracker",
		Short:         "Competitive programming profile tracker",
		Long:          "LeetCode / CodeChef / CodeForces のプロフィール統計を取り込み、最新値を提供する。",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initAndRun(w, CommandServe, runServe)
		},
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		newServeCmd(w),
		newWorkerCmd(w),
		newMigrateCmd(w),
		newTrackCmd(w),
		newHealthcheckCmd(),
	)

	return root
}

// initAndRun は設定とロガーを初期化してからfnを実行する。
func initAndRun(w io.Writer, command Command, fn func(cfg *config.Config, log *slog.Logger) error) error {
	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(command)),
		slog.String("port", cfg.ServerPort),
	)

	return fn(cfg, log)
}

func newServeCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandServe),
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initAndRun(w, CommandServe, runServe)
		},
	}
}

func newWorkerCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandWorker),
		Short: "Periodically re-ingest every tracked profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initAndRun(w, CommandWorker, runWorker)
		},
	}
}

func newMigrateCmd(w io.Writer) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       string(CommandMigrate) + " [up|down|version]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(migrateUp), string(migrateDown), string(migrateVersion)},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := migrateUp
			if len(args) == 1 {
				direction = migrateDirection(args[0])
			}
			return initAndRun(w, CommandMigrate, func(cfg *config.Config, log *slog.Logger) error {
				return runMigrate(cfg, log, direction, steps, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back with down (0 = all)")
	return cmd
}

func newTrackCmd(w io.Writer) *cobra.Command {
	var urls model.ProfileURLs
	cmd := &cobra.Command{
		Use:   string(CommandTrack),
		Short: "Register profile URLs and ingest their stats once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if urls.IsEmpty() {
				return fmt.Errorf("at least one of --leetcode, --codechef, --codeforces is required")
			}
			return initAndRun(w, CommandTrack, func(cfg *config.Config, log *slog.Logger) error {
				return runTrack(cmd.Context(), cfg, log, urls, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&urls.LeetCodeURL, "leetcode", "", "LeetCode profile URL")
	cmd.Flags().StringVar(&urls.CodeChefURL, "codechef", "", "CodeChef profile URL")
	cmd.Flags().StringVar(&urls.CodeForcesURL, "codeforces", "", "CodeForces profile URL")
	return cmd
}

// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
func newHealthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = "8080"
			}
			return runHealthcheck(port)
		},
	}
}
