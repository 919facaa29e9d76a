package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hitoshi/catalyst/internal/metrics"
	"github.com/hitoshi/catalyst/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector
	// MetricsHandler は /metrics で公開するハンドラー。nilならマウントしない。
	MetricsHandler http.Handler
	Health         HealthChecker

	// ミドルウェア依存
	SessionValidator   middleware.SessionValidator
	RateLimiter        *middleware.RateLimiter
	CORSAllowedOrigins []string

	// 認証
	Accounts   AccountService
	Sessions   SessionService
	Federated  FederatedLogin
	AuthConfig AuthHandlerConfig

	// ライブラリ
	Library LibraryService
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS
//
// 認証ルート（/auth/*）にはクライアントIP単位、同期にはアカウント単位のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookieName := deps.AuthConfig.Cookie.Name

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if len(deps.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	requireSession := middleware.NewSessionMiddleware(deps.SessionValidator, cookieName)
	optionalSession := middleware.NewOptionalSessionMiddleware(deps.SessionValidator, cookieName)

	authHandler := NewAuthHandler(deps.Accounts, deps.Sessions, deps.Federated, deps.Metrics, deps.AuthConfig)
	libraryHandler := NewLibraryHandler(deps.Library)

	// --- 認証不要のルート ---
	if deps.Health != nil {
		r.Get("/health", NewHealthHandler(deps.Health))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.With(requireSession).Post("/logout", authHandler.Logout)
		r.With(requireSession).Get("/session", authHandler.Session)

		// Steamログイン。開始はログイン済みなら連携、未ログインなら設定次第で新規作成
		r.With(optionalSession).Get("/steam/start", authHandler.SteamStart)
		r.Get("/steam/callback", authHandler.SteamCallback)
	})

	// --- 認証が必要なルート ---
	r.Route("/library", func(r chi.Router) {
		r.Use(requireSession)

		r.Get("/", libraryHandler.List)
		r.Get("/steam", libraryHandler.SteamStatus)
		r.With(deps.RateLimiter.SyncMiddleware()).Post("/steam/sync", libraryHandler.SyncSteam)
	})

	return r
}
