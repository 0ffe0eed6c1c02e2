package handler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/projectelevate-biz/tag-sub001/pkg/authz"
	"github.com/projectelevate-biz/tag-sub001/pkg/billing"
	"github.com/projectelevate-biz/tag-sub001/pkg/config"
	"github.com/projectelevate-biz/tag-sub001/pkg/consultants"
	"github.com/projectelevate-biz/tag-sub001/pkg/credits"
	"github.com/projectelevate-biz/tag-sub001/pkg/database"
	"github.com/projectelevate-biz/tag-sub001/pkg/engagements"
	"github.com/projectelevate-biz/tag-sub001/pkg/handlers"
	customMiddleware "github.com/projectelevate-biz/tag-sub001/pkg/middleware"
	"github.com/projectelevate-biz/tag-sub001/pkg/orgcontext"
	"github.com/projectelevate-biz/tag-sub001/pkg/payouts"
	"github.com/projectelevate-biz/tag-sub001/pkg/reconcile"
	"github.com/projectelevate-biz/tag-sub001/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// App holds the wired services behind the router
type App struct {
	Config *config.Config
	DB     database.DatabaseInterface
	Router *chi.Mux

	payouts *payouts.Queue
}

var (
	cachedApp *App
	appErr    error
	appOnce   sync.Once
)

// Handler 是Vercel函数的入口点
// 这个函数实现了"单体路由模式"，将所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	cfg := config.GetCached()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	appOnce.Do(func() {
		config.ConfigureLogging(cfg)
		db, err := database.GetDatabase(context.Background(), database.DatabaseConfig{
			UseLocalDB:  cfg.UseLocalDB,
			PostgresDSN: cfg.PostgresDSN,
			Debug:       cfg.Debug,
		})
		if err != nil {
			appErr = err
			return
		}
		cachedApp, appErr = NewApp(cfg, db)
	})
	if appErr != nil {
		log.Error().Err(appErr).Msg("application init failed")
		utils.WriteInternalServerErrorResponse(w, "Service unavailable")
		return
	}

	cachedApp.Router.ServeHTTP(w, r)
}

// NewApp wires every service onto db and starts the payout workers.
// Providers whose credentials are absent stay unconfigured and their
// operations answer NOT_IMPLEMENTED.
func NewApp(cfg *config.Config, db database.DatabaseInterface) (*App, error) {
	var (
		stripeLinker   billing.PortalLinker
		dodoLinker     billing.PortalLinker
		checkouts      billing.CheckoutCreator
		connectAccts   billing.ConnectAccounts
		transfers      billing.Transferer
		paypalCanceler billing.SubscriptionCanceller
	)

	if cfg.StripeSecretKey != "" {
		sc, err := billing.NewStripeClient(billing.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			Currency:  cfg.StripeCurrency,
			BaseURL:   cfg.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		stripeLinker, checkouts, connectAccts, transfers = sc, sc, sc, sc
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set; stripe operations are disabled")
	}
	if cfg.DodoAPIKey != "" {
		dodoLinker = billing.NewDodoClient(cfg.DodoAPIKey, cfg.DodoAPIBase)
	}
	if cfg.PaypalClientID != "" && cfg.PaypalClientSecret != "" {
		paypalCanceler = billing.NewPaypalClient(billing.PaypalConfig{
			ClientID:     cfg.PaypalClientID,
			ClientSecret: cfg.PaypalClientSecret,
			APIBase:      cfg.PaypalAPIBase,
		})
	}

	gate := authz.NewGate(db, cfg.SuperAdminEmails)
	loader := orgcontext.NewLoader(db)
	ledger := credits.NewLedger(db)
	profiles := consultants.NewService(db, gate)

	dispatcher := payouts.NewDispatcher(db, transfers, gate, cfg.StripeCurrency)
	queue := payouts.NewQueue(dispatcher, payouts.QueueConfig{
		Workers: cfg.PayoutWorkers,
		Size:    cfg.PayoutQueueSize,
	})
	queue.Start()

	sessions := customMiddleware.NewSessionResolver(
		utils.NewJWTService(cfg.JWTSecret, cfg.SessionTTL), cfg.SessionCookieName, db)

	portal := billing.NewPortalService(stripeLinker, dodoLinker)
	subscriptions := billing.NewSubscriptionService(db, gate, paypalCanceler)
	connect := billing.NewConnectService(db, connectAccts)
	checkout := billing.NewCheckoutService(db, gate, checkouts)
	engagementSvc := engagements.NewService(db, gate, cfg.CommissionBps, cfg.StripeCurrency)
	reconciler := reconcile.NewReconciler(cfg.StripeWebhookSecret, db, queue)

	h := routeHandlers{
		me:          handlers.NewMeHandler(db, gate, sessions),
		orgs:        handlers.NewOrgsHandler(db, loader, gate, ledger, portal, subscriptions),
		consultants: handlers.NewConsultantHandler(profiles, connect),
		engagements: handlers.NewEngagementsHandler(loader, engagementSvc, checkout),
		superAdmin:  handlers.NewSuperAdminHandler(db, gate, ledger, profiles, dispatcher),
		webhooks:    handlers.NewWebhookHandler(reconciler),
	}

	router := chi.NewRouter()
	setupMiddleware(router, cfg, sessions)
	setupRoutes(router, cfg, db, h)

	return &App{Config: cfg, DB: db, Router: router, payouts: queue}, nil
}

// Shutdown drains queued payouts, then closes the database
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.payouts.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("payout queue did not drain before shutdown deadline")
	}
	return a.DB.Close()
}

type routeHandlers struct {
	me          *handlers.MeHandler
	orgs        *handlers.OrgsHandler
	consultants *handlers.ConsultantHandler
	engagements *handlers.EngagementsHandler
	superAdmin  *handlers.SuperAdminHandler
	webhooks    *handlers.WebhookHandler
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config, sessions *customMiddleware.SessionResolver) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Recovery(cfg))
	// 会话解析放在日志之前，日志可以带上用户
	router.Use(customMiddleware.Session(sessions))
	router.Use(customMiddleware.RequestLogger())

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	router.Use(middleware.Timeout(25 * time.Second))
	router.Use(customMiddleware.MaxBodySize(1 << 20))

	// 压缩中间件
	router.Use(middleware.Compress(5))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface, h routeHandlers) {
	// 健康检查端点
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := db.HealthCheck(r.Context()); err != nil {
			log.Error().Err(err).Msg("database health check failed")
			utils.WriteErrorResponseWithCode(w, http.StatusServiceUnavailable, "UNHEALTHY", "database unavailable", "")
			return
		}
		utils.WriteSuccessResponse(w, status)
	})

	// 数据库连接池状态端点（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, database.GetConnectionStats())
		})
	}

	router.Route("/api", func(r chi.Router) {
		r.Route("/app", func(r chi.Router) {
			r.Get("/me", h.me.GetMe)
			r.Patch("/me", h.me.UpdateMe)

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", h.orgs.ListOrganizations)
				r.Post("/", h.orgs.CreateOrganization)

				r.Route("/current", func(r chi.Router) {
					r.Get("/", h.orgs.GetCurrent)
					r.Post("/", h.orgs.SwitchCurrent)

					r.Get("/members", h.orgs.ListMembers)
					r.Post("/members", h.orgs.AddMember)
					r.Patch("/members/{userId}", h.orgs.UpdateMemberRole)
					r.Delete("/members/{userId}", h.orgs.RemoveMember)

					r.Get("/credits", h.orgs.GetCredits)
					r.Post("/credits/spend", h.orgs.SpendCredits)

					r.Get("/billing-portal", h.orgs.BillingPortal)

					r.Get("/paypal", h.orgs.ListPaypalContexts)
					r.Post("/paypal", h.orgs.CreatePaypalContext)
					r.Post("/paypal/{contextId}/cancel", h.orgs.CancelPaypalSubscription)
				})
			})

			r.Route("/consultant", func(r chi.Router) {
				r.Get("/profile", h.consultants.GetProfile)
				r.Put("/profile", h.consultants.SaveProfile)
				r.Post("/profile/submit", h.consultants.Submit)
				r.Post("/connect", h.consultants.Connect)
			})

			r.Get("/engagements", h.engagements.List)
			r.Post("/engagements", h.engagements.Create)
			r.Post("/engagements/{id}/invoices", h.engagements.CreateInvoice)
			r.Post("/invoices/{id}/checkout", h.engagements.Checkout)
		})

		r.Route("/super-admin", func(r chi.Router) {
			r.Get("/organizations/{id}/credits", h.superAdmin.GetOrganizationCredits)
			r.Post("/organizations/{id}/credits", h.superAdmin.AdjustOrganizationCredits)
			r.Get("/consultants", h.superAdmin.ListConsultants)
			r.Post("/consultants/{id}/approve", h.superAdmin.ApproveConsultant)
			r.Post("/consultants/{id}/reject", h.superAdmin.RejectConsultant)
			r.Post("/payouts", h.superAdmin.ManualPayout)
		})

		// Webhook路由（不需要会话，但需要验证签名）
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/stripe-rebound", h.webhooks.HandleStripe)
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
