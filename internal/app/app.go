// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/articlecms/internal/article"
	"github.com/hitoshi/articlecms/internal/auth"
	"github.com/hitoshi/articlecms/internal/config"
	"github.com/hitoshi/articlecms/internal/database"
	"github.com/hitoshi/articlecms/internal/handler"
	"github.com/hitoshi/articlecms/internal/logger"
	"github.com/hitoshi/articlecms/internal/metrics"
	"github.com/hitoshi/articlecms/internal/middleware"
	"github.com/hitoshi/articlecms/internal/repository"
	"github.com/hitoshi/articlecms/internal/security"
	"github.com/hitoshi/articlecms/internal/storage"
	"github.com/hitoshi/articlecms/internal/user"
)

// sessionCleanupInterval は期限切れセッション削除の実行間隔。
const sessionCleanupInterval = time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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
	default:
		return runServe(cfg)
	}
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. IdPの初期化（OIDCディスカバリを伴う）
	discoveryCtx, cancelDiscovery := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelDiscovery()

	provider, err := auth.NewMicrosoftProvider(discoveryCtx, auth.MicrosoftConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Authority:    cfg.Authority,
		RedirectURL:  cfg.RedirectURL(),
		Scopes:       cfg.Scopes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	// 5. ドメインサービスの初期化
	passwords := auth.NewPasswords()
	directory := user.NewService(userRepo, passwords, user.Config{
		DemoLogin: cfg.DemoMode,
	})
	if cfg.DemoMode {
		slog.Warn("demo login mode is enabled; do not use in production")
	}

	stateTracker := auth.NewStateTracker(sessionRepo)
	authService := auth.NewService(provider, directory, sessionRepo, stateTracker, collector)

	sanitizer := security.NewArticleSanitizer()
	articleService := article.NewService(articleRepo, sanitizer, collector)

	// 6. 画像ストレージの初期化（設定されている場合のみ）
	var images storage.ImageStore
	if cfg.BlobConfigured() {
		store, err := storage.NewAzureBlobStore(storage.AzureBlobConfig{
			Account:   cfg.BlobAccount,
			Container: cfg.BlobContainer,
			Key:       cfg.BlobKey,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize blob storage: %w", err)
		}
		images = store
		slog.Info("blob storage configured",
			slog.String("account", cfg.BlobAccount),
			slog.String("container", cfg.BlobContainer),
		)
	} else {
		slog.Info("blob storage not configured; image uploads are disabled")
	}

	// 7. レンダラーの初期化
	renderer, err := handler.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to initialize renderer: %w", err)
	}

	// 8. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitLogin))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionStore: sessionRepo,
		SessionConfig: middleware.SessionConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			TTL:          cfg.SessionTTL(),
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),

		AuthService:    authService,
		ArticleService: articleService,

		Renderer: renderer,
		Cookies: handler.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},

		RedirectPath: cfg.RedirectPath,
		Images:       images,

		Metrics:  collector,
		Gatherer: registry,
		DB:       db,
	}

	router := handler.NewRouter(deps)

	// 9. 期限切れセッションの定期削除
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go runSessionCleanup(cleanupCtx, sessionRepo)

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down web server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runSessionCleanup は期限切れセッションを定期的に削除する。
// 起動直後に1回実行し、以後は一定間隔で繰り返す。
func runSessionCleanup(ctx context.Context, sessions repository.SessionRepository) {
	cleanup := func() {
		deleted, err := sessions.DeleteExpired(ctx)
		if err != nil {
			slog.Error("session cleanup failed", slog.String("error", err.Error()))
			return
		}
		if deleted > 0 {
			slog.Info("expired sessions deleted", slog.Int64("count", deleted))
		}
	}

	cleanup()

	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanup()
		}
	}
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
