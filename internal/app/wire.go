package app

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/auth"
	"github.com/palpitai/platform/internal/guard"
	"github.com/palpitai/platform/internal/handler"
	adminhandler "github.com/palpitai/platform/internal/handler/admin"
	"github.com/palpitai/platform/internal/infra"
	"github.com/palpitai/platform/internal/ledger"
	"github.com/palpitai/platform/internal/policy"
	"github.com/palpitai/platform/internal/projection"
	"github.com/palpitai/platform/internal/provider"
	"github.com/palpitai/platform/internal/repository"
	"github.com/palpitai/platform/internal/service"
	"github.com/palpitai/platform/internal/settlement"
	"github.com/redis/go-redis/v9"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool    *pgxpool.Pool
	JWTMgr  *auth.JWTManager
	Logger  *slog.Logger
	Config  *infra.Config
	Metrics *infra.Metrics
	Hub     *infra.WSHub
	// Store backs the poll throttle and the stats cache. Defaults to in-memory.
	Store projection.Store
	// Redis is only pinged by /health; nil when disabled.
	Redis *redis.Client
}

// App is the assembled service graph plus its router.
type App struct {
	Router      chi.Router
	Auth        *service.AuthService
	Payments    *service.PaymentService
	Withdrawals *service.WithdrawalService
	Gateways    *service.GatewayService
	Rounds      *service.RoundService
	Bets        *service.BetService
	Prizes      *settlement.PrizeEngine
	Reports     *service.ReportService
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	return New(deps).Router
}

// New wires repositories, engines and services, then mounts the routes.
func New(deps RouterDeps) *App {
	pool := deps.Pool
	jwtMgr := deps.JWTMgr
	logger := deps.Logger
	cfg := deps.Config
	store := deps.Store
	if store == nil {
		store = projection.NewInMemoryStore()
	}
	hub := deps.Hub
	if hub == nil {
		hub = infra.NewWSHub(cfg.WSAllowedOrigins, logger)
	}

	// Repositories
	userRepo := repository.NewUserRepository()
	walletRepo := repository.NewWalletRepository()
	txRepo := repository.NewTransactionRepository()
	outboxRepo := repository.NewOutboxRepository()
	orderRepo := repository.NewPaymentOrderRepository()
	gatewayRepo := repository.NewGatewayRepository()
	withdrawalRepo := repository.NewWithdrawalRepository()
	roundRepo := repository.NewRoundRepository()
	betRepo := repository.NewBetRepository()
	reserveRepo := repository.NewReserveFundRepository()

	// Ledger
	ledgerEngine := ledger.NewEngine(walletRepo, txRepo, outboxRepo, deps.Metrics)
	auditor := ledger.NewAuditor(walletRepo, txRepo)

	// Gateways
	factory := provider.NewFactory(provider.Options{
		Timeout:   cfg.GatewayTimeout,
		ChargeTTL: cfg.PixChargeTTL,
		Logger:    logger,
	})
	breaker := guard.NewCircuitBreaker(cfg.GatewayBreakerThreshold, cfg.GatewayBreakerReset)
	limits := policy.LimitsFromConfig(cfg)

	// Services
	gatewaySvc := service.NewGatewayService(pool, gatewayRepo, factory, breaker, deps.Metrics, logger)
	authSvc := service.NewAuthService(pool, userRepo, walletRepo, outboxRepo, jwtMgr, guard.NewLockout(pool, logger), logger)
	paymentSvc := service.NewPaymentService(service.PaymentDeps{
		Pool:           pool,
		Orders:         orderRepo,
		Users:          userRepo,
		Wallets:        walletRepo,
		Transactions:   txRepo,
		Outbox:         outboxRepo,
		Gateways:       gatewaySvc,
		Engine:         ledgerEngine,
		Limits:         limits,
		DepositLimiter: guard.NewRateLimiter(cfg.DepositRateLimit, time.Minute),
		Throttle:       guard.NewPollThrottle(store, cfg.PollMinInterval, logger),
		Notifier:       hub,
		Metrics:        deps.Metrics,
		Logger:         logger,
	})
	withdrawalSvc := service.NewWithdrawalService(pool, withdrawalRepo, walletRepo, userRepo, outboxRepo, gatewaySvc, ledgerEngine, limits, logger)
	walletSvc := service.NewWalletService(pool, walletRepo, txRepo)
	roundSvc := service.NewRoundService(pool, roundRepo, logger)
	betSvc := service.NewBetService(pool, betRepo, roundRepo, walletRepo, ledgerEngine, cfg.BetStakeCents, logger)
	prizeEngine := settlement.NewPrizeEngine(pool, roundRepo, betRepo, walletRepo, reserveRepo, outboxRepo, ledgerEngine, deps.Metrics, logger)
	reportSvc := service.NewReportService(pool, service.ReportRepos{
		Users:        userRepo,
		Wallets:      walletRepo,
		Transactions: txRepo,
		Bets:         betRepo,
		Rounds:       roundRepo,
		Withdrawals:  withdrawalRepo,
		Reserve:      reserveRepo,
	}, auditor, store, logger)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	walletHandler := handler.NewWalletHandler(walletSvc, paymentSvc, withdrawalSvc)
	betHandler := handler.NewBetHandler(betSvc)
	roundHandler := handler.NewRoundHandler(roundSvc)
	webhookHandler := handler.NewWebhookHandler(paymentSvc, logger)
	wsHandler := handler.NewWSHandler(hub, jwtMgr)

	// Admin handlers
	gatewaysAdmin := adminhandler.NewGatewaysHandler(gatewaySvc)
	withdrawalsAdmin := adminhandler.NewWithdrawalsHandler(withdrawalSvc)
	roundsAdmin := adminhandler.NewRoundsHandler(roundSvc, prizeEngine, reportSvc)
	reportsAdmin := adminhandler.NewReportsHandler(reportSvc)

	// Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(cfg.CORSAllowedOrigins))

	// Upgraded connections must not get a JSON content type.
	r.Get("/ws", wsHandler.Serve)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)

		// Public routes
		r.Get("/health", handler.HealthHandler(pool, deps.Redis))
		r.Post("/webhooks/payments", webhookHandler.HandlePaymentWebhook)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.With(auth.AuthenticateUser(jwtMgr)).Get("/me", authHandler.Me)
		})

		r.Route("/rounds", func(r chi.Router) {
			r.Get("/", roundHandler.List)
			r.Get("/active", roundHandler.Active)
			r.Get("/{id}", roundHandler.Get)
		})

		// User routes
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthenticateUser(jwtMgr))

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/me", walletHandler.GetWallet)
				r.Post("/deposit", walletHandler.Deposit)
				r.Get("/payment-status/{orderId}", walletHandler.PaymentStatus)
				r.Post("/withdraw", walletHandler.Withdraw)
			})

			r.Route("/bets", func(r chi.Router) {
				r.Post("/", betHandler.PlaceBet)
				r.Get("/me", betHandler.MyBets)
				r.Get("/{id}", betHandler.GetBet)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.AuthenticateAdmin(jwtMgr))
			r.Use(auth.RequireRole(auth.AdminRoles()...))

			r.Route("/gateways", func(r chi.Router) {
				r.Get("/", gatewaysAdmin.List)
				r.Post("/", gatewaysAdmin.Create)
				r.Get("/{id}", gatewaysAdmin.Get)
				r.Put("/{id}", gatewaysAdmin.Update)
				r.Delete("/{id}", gatewaysAdmin.Delete)
				r.Post("/{id}/activate", gatewaysAdmin.Activate)
				r.Post("/{id}/deactivate", gatewaysAdmin.Deactivate)
			})

			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/", withdrawalsAdmin.List)
				r.Post("/{id}/approve", withdrawalsAdmin.Approve)
				r.Post("/{id}/reject", withdrawalsAdmin.Reject)
				r.Post("/{id}/retry-payout", withdrawalsAdmin.RetryPayout)
				r.Post("/{id}/recover", withdrawalsAdmin.Recover)
				r.Get("/{id}/payout-status", withdrawalsAdmin.PayoutStatus)
			})

			r.Post("/rounds", roundsAdmin.Create)
			r.Put("/matches/{id}/result", roundsAdmin.SetMatchResult)

			r.Route("/prizes/{roundId}", func(r chi.Router) {
				r.Post("/calculate", roundsAdmin.CalculateHits)
				r.Post("/distribute", roundsAdmin.Distribute)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/stats", reportsAdmin.Stats)
				r.Get("/users", reportsAdmin.Users)
				r.Get("/transactions", reportsAdmin.Transactions)
				r.Get("/audit/{userId}", reportsAdmin.Audit)
			})
		})
	})

	return &App{
		Router:      r,
		Auth:        authSvc,
		Payments:    paymentSvc,
		Withdrawals: withdrawalSvc,
		Gateways:    gatewaySvc,
		Rounds:      roundSvc,
		Bets:        betSvc,
		Prizes:      prizeEngine,
		Reports:     reportSvc,
	}
}
