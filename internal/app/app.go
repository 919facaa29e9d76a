// Package app はアプリケーションの初期化・依存関係のワイヤリング・起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hitoshi/catalyst/internal/broker"
	"github.com/hitoshi/catalyst/internal/config"
	"github.com/hitoshi/catalyst/internal/credential"
	"github.com/hitoshi/catalyst/internal/database"
	"github.com/hitoshi/catalyst/internal/handler"
	"github.com/hitoshi/catalyst/internal/library"
	"github.com/hitoshi/catalyst/internal/logger"
	"github.com/hitoshi/catalyst/internal/metrics"
	"github.com/hitoshi/catalyst/internal/middleware"
	"github.com/hitoshi/catalyst/internal/repository"
	"github.com/hitoshi/catalyst/internal/security"
	"github.com/hitoshi/catalyst/internal/session"
	"github.com/hitoshi/catalyst/internal/steam"
	"github.com/hitoshi/catalyst/internal/worker/cleanup"
)

// pendingStateSweepInterval は期限切れstateを掃除する間隔。
const pendingStateSweepInterval = time.Minute

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSweep:
		return runSweep(cfg)
	default:
		return runServe(cfg)
	}
}

// Components はワイヤリング済みの依存関係。
type Components struct {
	DB          *sql.DB
	Registry    *prometheus.Registry
	Metrics     *metrics.Collector
	Accounts    *credential.Store
	Sessions    *session.Manager
	Syncer      *library.Syncer
	States      *broker.PendingStateStore
	Broker      *broker.Broker
	RateLimiter *middleware.RateLimiter
	Handler     http.Handler
}

// Build は設定とDB接続から全コンポーネントを構築する。
// 返されたComponentsのRateLimiterは呼び出し側でStopすること。
func Build(cfg *config.Config, db *sql.DB, backend database.Backend) *Components {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. リポジトリ
	repos := repository.New(db, backend)

	// 3. 認証サービス
	accounts := credential.NewStore(repos.Accounts, credential.NewPasswordHasher(credential.DefaultBcryptCost))
	sessions := session.NewManager(repos.Sessions, accounts, collector, session.Config{TTL: cfg.SessionTTL()})

	// 4. Steamクライアント（全呼び出しにタイムアウトを設定する）
	steamHTTP := &http.Client{Timeout: cfg.SteamHTTPTimeout}
	openID := steam.NewOpenIDClient(steamHTTP, slog.Default(), cfg.SteamOpenIDEndpoint)
	webAPI := steam.NewWebAPIClient(steamHTTP, slog.Default(), cfg.SteamWebAPIEndpoint, cfg.SteamAPIKey)
	if !webAPI.HasAPIKey() {
		slog.Warn("STEAM_API_KEY is not set; steam library sync is disabled")
	}

	// 5. ライブラリ同期とブローカー
	syncer := library.NewSyncer(repos.Games, webAPI, security.NewTextSanitizer(), collector)
	states := broker.NewPendingStateStore()
	linking := broker.NewRepositoryTransactor(repos, accounts, sessions)
	b := broker.New(openID, linking, syncer, states, collector, broker.Config{
		BaseURL:  cfg.BaseURL,
		StateTTL: cfg.SteamStateTTL,
	})

	// 6. ルーター（req/min → req/sec に変換）
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		AuthRate:        rate.Limit(float64(cfg.RateLimitAuth) / 60.0),
		AuthBurst:       cfg.RateLimitAuth,
		SyncRate:        rate.Limit(float64(cfg.RateLimitSync) / 60.0),
		SyncBurst:       cfg.RateLimitSync,
		CleanupInterval: 5 * time.Minute,
	})

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		Metrics:            collector,
		MetricsHandler:     metrics.Handler(registry),
		Health:             db,
		SessionValidator:   sessions,
		RateLimiter:        rl,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Accounts:           accounts,
		Sessions:           sessions,
		Federated:          b,
		AuthConfig: handler.AuthHandlerConfig{
			Cookie: handler.CookieConfig{
				Name:   cfg.SessionCookieName,
				Domain: cfg.CookieDomain,
				Secure: cfg.SecureCookie(),
				MaxAge: cfg.CookieMaxAge(),
			},
			FrontendURL:              cfg.FrontendURL,
			AllowAnonymousSteamStart: cfg.SteamAllowAnonymousStart,
		},
		Library: syncer,
	})

	return &Components{
		DB:          db,
		Registry:    registry,
		Metrics:     collector,
		Accounts:    accounts,
		Sessions:    sessions,
		Syncer:      syncer,
		States:      states,
		Broker:      b,
		RateLimiter: rl,
		Handler:     router,
	}
}

// openDatabase はDB接続を開いて疎通を確認する。
// SQLiteの場合はデスクトップ単体運用のため起動時にマイグレーションも適用する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, database.Backend, error) {
	backend, err := database.DetectBackend(cfg.DatabaseURL)
	if err != nil {
		return nil, "", err
	}
	if backend == database.BackendSQLite {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, "", fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
	}

	db, _, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established", slog.String("backend", string(backend)))
	return db, backend, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr(), err)
	}
	return serve(ctx, cfg, ln)
}

// serve はlnでHTTPサーバーを起動し、セッション掃除とstate掃除をバックグラウンドで実行する。
// ctxがキャンセルされるとすべて停止して戻る。
func serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	db, backend, err := openDatabase(ctx, cfg)
	if err != nil {
		ln.Close()
		return err
	}
	defer db.Close()

	c := Build(cfg, db, backend)
	defer c.RateLimiter.Stop()

	server := &http.Server{
		Handler:      c.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SteamHTTPTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	sweepJob := cleanup.NewSessionSweepJob(c.Sessions, slog.Default())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweepJob.Start(gctx, cfg.SessionSweepInterval)
		return nil
	})
	g.Go(func() error {
		c.States.Run(gctx, pendingStateSweepInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runSweep は期限切れセッションを1回削除して終了する。
func runSweep(cfg *config.Config) error {
	ctx := context.Background()
	db, backend, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repos := repository.New(db, backend)
	accounts := credential.NewStore(repos.Accounts, credential.NewPasswordHasher(credential.DefaultBcryptCost))
	sessions := session.NewManager(repos.Sessions, accounts, nil, session.Config{TTL: cfg.SessionTTL()})

	_, err = cleanup.NewSessionSweepJob(sessions, slog.Default()).Run(ctx)
	return err
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
