package handler

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/articlecms/internal/metrics"
	"github.com/hitoshi/articlecms/internal/middleware"
	"github.com/hitoshi/articlecms/internal/storage"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionStore  middleware.SessionStore
	SessionConfig middleware.SessionConfig
	CSRFConfig    middleware.CSRFConfig
	RateLimiter   *middleware.RateLimiter
	Logger        *slog.Logger

	// サービス
	AuthService    AuthServiceInterface
	ArticleService ArticleServiceInterface

	// 描画・Cookie
	Renderer *Renderer
	Cookies  CookieConfig

	// OAuthコールバックのパス（既定は /getAToken）
	RedirectPath string

	// 画像ストレージ（未設定ならnil）
	Images storage.ImageStore

	// 監視
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	DB       *sql.DB
}

// NewRouter は全ページのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Session → CSRF
//
// ログイン関連のPOST/コールバックにはレート制限を追加する。
// /health と /metrics はセッション・CSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// typed nilをインターフェースに入れないようガードする
	var httpMetrics middleware.HTTPMetrics
	if deps.Metrics != nil {
		httpMetrics = deps.Metrics
	}
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, httpMetrics))

	// --- 運用エンドポイント（セッション不要） ---
	r.Get("/health", newHealthHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Renderer, deps.Cookies)
	articleHandler := NewArticleHandler(deps.ArticleService, deps.AuthService, deps.Images, deps.Renderer, deps.Cookies)

	// --- ページルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionStore, deps.SessionConfig))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/", articleHandler.Index)

		// ログインフロー（レート制限付き）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.LoginMiddleware())

			r.Get("/login", authHandler.ShowLogin)
			r.Post("/login", authHandler.LoginLocal)
			r.Get("/login-microsoft", authHandler.LoginMicrosoft)
			r.Get(deps.RedirectPath, authHandler.Callback)
		})

		r.Post("/logout", authHandler.Logout)

		// 記事作成（要ログイン）
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuthenticated)

			r.Get("/create", articleHandler.CreateForm)
			r.Post("/create", articleHandler.Create)
		})
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
