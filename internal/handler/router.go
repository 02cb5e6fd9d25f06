package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/signman/internal/metrics"
	"github.com/hitoshi/signman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	ConfigService      ConfigServiceInterface
	TransactionService TransactionServiceInterface
	TokenCreator       SigningTokenCreator

	// メトリクス公開用。nilの場合は/metricsを登録しない
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを
// 構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → RateLimit(General)
//
// ベンダーAPI呼び出しを伴う変更系ルートには追加でMutationレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	configHandler := NewConfigHandler(deps.ConfigService)
	txHandler := NewTransactionHandler(deps.TransactionService, deps.TokenCreator)

	// ヘルスチェックとメトリクスはレート制限の外に置く
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 接続設定
		r.Route("/api/config", func(r chi.Router) {
			r.Get("/", configHandler.GetConfig)
			r.Put("/", configHandler.UpdateConfig)
			r.Delete("/", configHandler.ResetConfig)
		})

		// コールバック登録
		r.With(deps.RateLimiter.MutationMiddleware()).Post("/api/callbacks", txHandler.RegisterCallbacks)

		// トランザクション管理
		r.Route("/api/transactions", func(r chi.Router) {
			r.Get("/", txHandler.ListTransactions)
			r.With(deps.RateLimiter.MutationMiddleware()).Post("/", txHandler.CreateTransaction)
			r.Delete("/", txHandler.ResetTransactions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", txHandler.GetTransaction)
				r.Get("/signing-url", txHandler.GetSigningURL)
				r.Get("/audit", txHandler.GetAuditReport)

				// ベンダーへの変更を伴う操作
				r.Group(func(r chi.Router) {
					r.Use(deps.RateLimiter.MutationMiddleware())
					r.Post("/send", txHandler.SendTransaction)
					r.Post("/cancel", txHandler.CancelTransaction)
					r.Post("/refresh", txHandler.RefreshTransactionStatus)
					r.Post("/resend", txHandler.ResendNotification)
					r.Post("/signers", txHandler.AddSigner)
					r.Post("/documents", txHandler.AddDocument)
					r.Post("/fields", txHandler.AddSignatureField)
					r.Post("/signer-token", txHandler.CreateSignerToken)
					r.Post("/sender-token", txHandler.CreateSenderToken)
				})
			})
		})
	})

	return r
}
