package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/profiletracker/internal/config"
	"github.com/hitoshi/profiletracker/internal/database"
	"github.com/hitoshi/profiletracker/internal/handler"
	"github.com/hitoshi/profiletracker/internal/ingest"
	"github.com/hitoshi/profiletracker/internal/logger"
	"github.com/hitoshi/profiletracker/internal/metrics"
	"github.com/hitoshi/profiletracker/internal/middleware"
	"github.com/hitoshi/profiletracker/internal/model"
	"github.com/hitoshi/profiletracker/internal/platform"
	"github.com/hitoshi/profiletracker/internal/platform/codechef"
	"github.com/hitoshi/profiletracker/internal/platform/codeforces"
	"github.com/hitoshi/profiletracker/internal/platform/leetcode"
	"github.com/hitoshi/profiletracker/internal/repository"
	"github.com/hitoshi/profiletracker/internal/security"
	"github.com/hitoshi/profiletracker/internal/worker/refresh"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを再構成する
	log := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, log, nil
}

// services は取り込みと参照に必要な依存関係をまとめたもの。
type services struct {
	profileRepo *repository.PostgresProfileRepo
	tracker     *ingest.Tracker
	statsReader *ingest.StatsReader
}

// buildServices はDB接続と設定から、アダプタ・オーケストレータ・サービス層を組み立てる。
// mcには上流ステータスと取り込み結果を記録するコレクタを渡す。
func buildServices(cfg *config.Config, db *sql.DB, mc metrics.MetricsCollector, log *slog.Logger) (*services, error) {
	// 1. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	statsRepo := repository.NewPostgresStatsRepo(db)

	// 2. 上流クライアントとアダプタの初期化
	factory, err := newClientFactory(cfg)
	if err != nil {
		return nil, err
	}
	adapters := newAdapters(cfg, factory, mc, log)

	// 3. ドメインサービスの初期化
	orchestrator := ingest.NewOrchestrator(adapters, statsRepo, mc, log, ingest.Config{
		AdapterTimeout: cfg.AdapterTimeout,
		BatchTimeout:   cfg.IngestTimeout,
	})

	return &services{
		profileRepo: profileRepo,
		tracker:     ingest.NewTracker(profileRepo, orchestrator, log),
		statsReader: ingest.NewStatsReader(profileRepo, statsRepo),
	}, nil
}

// newClientFactory は上流向けHTTPクライアントの生成方法を決定する。
// ALLOW_PRIVATE_UPSTREAMSが無効の場合、設定された上流URLを起動時に検証し、
// 接続先IPをsafeurlで検査するクライアントを使用する。
func newClientFactory(cfg *config.Config) (platform.HTTPClientFactory, error) {
	if cfg.AllowPrivateUpstreams {
		return platform.PlainClientFactory{}, nil
	}

	guard := security.NewUpstreamGuard()
	for _, upstream := range cfg.Upstreams() {
		if err := guard.ValidateUpstream(upstream); err != nil {
			return nil, fmt.Errorf("invalid upstream configuration: %w", err)
		}
	}
	return guard, nil
}

// clientConfigFor はプラットフォームごとの上流クライアント設定を返す。
// CodeForcesのみCODEFORCES_FETCH_MAX_SIZEを上限とする。
func clientConfigFor(cfg *config.Config, p model.Platform, observer platform.StatusObserver) platform.ClientConfig {
	maxBodySize := cfg.FetchMaxSize
	if p == model.PlatformCodeForces {
		maxBodySize = cfg.CodeForcesFetchMaxSize
	}
	return platform.ClientConfig{
		Platform:    p,
		Timeout:     cfg.AdapterTimeout,
		UserAgent:   cfg.UserAgent,
		MaxBodySize: maxBodySize,
		Observer:    observer,
	}
}

// newAdapters はLeetCode、CodeChef、CodeForcesの3アダプタを生成する。
func newAdapters(cfg *config.Config, factory platform.HTTPClientFactory, observer platform.StatusObserver, log *slog.Logger) []platform.Adapter {
	client := func(p model.Platform) platform.ClientConfig {
		return clientConfigFor(cfg, p, observer)
	}

	return []platform.Adapter{
		leetcode.NewAdapter(
			platform.NewClient(factory, client(model.PlatformLeetCode)),
			leetcode.Config{Endpoint: cfg.LeetCodeEndpoint, Timeout: cfg.AdapterTimeout},
			log,
		),
		codechef.NewAdapter(
			platform.NewClient(factory, client(model.PlatformCodeChef)),
			codechef.Config{BaseURL: cfg.CodeChefBaseURL, Timeout: cfg.AdapterTimeout},
			log,
		),
		codeforces.NewAdapter(
			platform.NewClient(factory, client(model.PlatformCodeForces)),
			codeforces.Config{APIBase: cfg.CodeForcesAPIBase, Timeout: cfg.AdapterTimeout},
			security.NewTextSanitizer(),
			log,
		),
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config, log *slog.Logger) error {
	// 1. DB接続
	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established")

	// 2. メトリクスとサービスの初期化
	reg := prometheus.NewRegistry()
	mc := metrics.NewCollector(reg)

	svc, err := buildServices(cfg, db, mc, log)
	if err != nil {
		return err
	}

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitTrack), log)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Tracker:           svc.tracker,
		StatsReader:       svc.statsReader,
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(reg),
	})

	// 4. HTTPサーバーの起動
	// 取り込みは最大でINGEST_TIMEOUTかかるため、WriteTimeoutはそれより長くする。
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.IngestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	log.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、追跡中プロフィールの再取り込みスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config, log *slog.Logger) error {
	// 1. DB接続
	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("database connection established (worker)")

	// 2. サービスの初期化
	svc, err := buildServices(cfg, db, metrics.NopCollector{}, log)
	if err != nil {
		return err
	}

	// 3. スケジューラの初期化
	scheduler := refresh.NewScheduler(svc.profileRepo, svc.tracker, log, refresh.Config{
		MaxConcurrency:    cfg.RefreshMaxConcurrent,
		ProfilesPerMinute: cfg.RefreshPerMinute,
	})

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			log.Info("shutting down worker...")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("worker starting",
		slog.Duration("refresh_interval", cfg.RefreshInterval),
		slog.Int("max_concurrent", cfg.RefreshMaxConcurrent),
		slog.Int("profiles_per_minute", cfg.RefreshPerMinute),
	)

	// 再取り込みスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.RefreshInterval)

	log.Info("worker stopped gracefully")
	return nil
}

// migrateDirection はmigrateサブコマンドの動作を表す。
type migrateDirection string

const (
	migrateUp      migrateDirection = "up"
	migrateDown    migrateDirection = "down"
	migrateVersion migrateDirection = "version"
)

// runMigrate はデータベースマイグレーションを実行する。
// upはすべての未適用マイグレーションを適用し、downはstepsの数だけ戻す。
func runMigrate(cfg *config.Config, log *slog.Logger, direction migrateDirection, steps int, out io.Writer) error {
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.String("direction", string(direction)),
	)

	switch direction {
	case migrateUp:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case migrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	case migrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		fmt.Fprintf(out, "version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate direction: %q", direction)
	}

	log.Info("database migrations completed successfully")
	return nil
}

// trackOutput はtrackサブコマンドの出力形式。
type trackOutput struct {
	UserID    string                    `json:"user_id"`
	Created   bool                      `json:"created"`
	Status    model.IngestStatus        `json:"status"`
	Platforms map[model.Platform]string `json:"platforms"`
}

// runTrack はHTTPサーバーを介さずにプロフィールを1件登録・取り込みし、結果をJSONで出力する。
func runTrack(ctx context.Context, cfg *config.Config, log *slog.Logger, urls model.ProfileURLs, out io.Writer) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := buildServices(cfg, db, metrics.NopCollector{}, log)
	if err != nil {
		return err
	}

	res, err := svc.tracker.TrackProfiles(ctx, urls)
	if err != nil {
		return fmt.Errorf("track failed: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(trackOutput{
		UserID:    res.UserID,
		Created:   res.Created,
		Status:    res.Result.Status,
		Platforms: res.Result.Platforms,
	})
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
