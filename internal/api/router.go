package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/nexbit/backoffice/internal/api/handler"
	"github.com/nexbit/backoffice/internal/api/middleware"
	"github.com/nexbit/backoffice/internal/api/spec"
	"github.com/nexbit/backoffice/internal/config"
	"github.com/nexbit/backoffice/internal/idempotency"
	"github.com/nexbit/backoffice/internal/notifier"
	"github.com/nexbit/backoffice/internal/repository"
	"github.com/nexbit/backoffice/internal/service"
	"github.com/nexbit/backoffice/internal/twofa"
)

type Router struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *pgxpool.Pool
	repo     *repository.Repository
	engine   *service.StatusEngine
	idem     *idempotency.Store
	redis    redis.Cmdable
	codes    *twofa.Store
	notifier notifier.Notifier
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	repo *repository.Repository,
	engine *service.StatusEngine,
	idem *idempotency.Store,
	redisClient redis.Cmdable,
	codes *twofa.Store,
	n notifier.Notifier,
) *Router {
	return &Router{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		repo:     repo,
		engine:   engine,
		idem:     idem,
		redis:    redisClient,
		codes:    codes,
		notifier: n,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	authHandler := handler.NewAuthHandler(api.repo, api.codes, api.notifier)
	membersHandler := handler.NewMembersHandler(api.repo, api.engine)
	movementsHandler := handler.NewMovementsHandler(api.repo, api.engine, api.notifier)
	adminsHandler := handler.NewAdminsHandler(api.repo)
	settingsHandler := handler.NewSettingsHandler(api.repo, api.engine)
	monitorHandler := handler.NewMonitorHandler(api.repo, api.engine)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Operational endpoints
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/api/login", authHandler.Login)
		r.Post("/api/request-2fa", authHandler.RequestTwoFA)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/api/me", authHandler.Me)
		r.Post("/api/logout", authHandler.Logout)

		r.Get("/api/members", membersHandler.List)
		r.Post("/api/members", membersHandler.Create)
		r.Get("/api/members/{id}", membersHandler.Get)
		r.Delete("/api/members/{id}", membersHandler.Delete)
		r.Post("/api/members/{id}/adjust", membersHandler.Adjust)

		r.Get("/api/movements", movementsHandler.List)
		r.Get("/api/deposits", movementsHandler.ListDeposits)
		r.Get("/api/withdrawals", movementsHandler.ListWithdrawals)

		idem := middleware.IdempotencyMiddleware(api.idem, api.logger)
		r.With(idem).Post("/api/deposits", movementsHandler.CreateDeposit)
		r.With(idem).Post("/api/withdrawals", movementsHandler.CreateWithdrawal)

		r.Post("/api/movements/{kind}/{id}/status", movementsHandler.SetStatus)

		r.Get("/api/monitor", monitorHandler.Snapshot)

		r.Get("/api/settings", settingsHandler.List)
		r.Post("/api/settings", settingsHandler.Update)

		// Super admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSuper)
			r.Get("/api/admins", adminsHandler.List)
			r.Post("/api/admins", adminsHandler.Create)
			r.Delete("/api/admins/{id}", adminsHandler.Delete)
		})
	})

	return r
}
