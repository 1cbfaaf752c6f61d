package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexbit/backoffice/internal/api"
	"github.com/nexbit/backoffice/internal/api/middleware"
	"github.com/nexbit/backoffice/internal/config"
	"github.com/nexbit/backoffice/internal/db"
	"github.com/nexbit/backoffice/internal/idempotency"
	"github.com/nexbit/backoffice/internal/models"
	"github.com/nexbit/backoffice/internal/notifier"
	"github.com/nexbit/backoffice/internal/observability"
	"github.com/nexbit/backoffice/internal/repository"
	"github.com/nexbit/backoffice/internal/service"
	"github.com/nexbit/backoffice/internal/twofa"
	"github.com/nexbit/backoffice/internal/worker"
)

// Run bootstraps the HTTP server and monitor worker, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	repo := repository.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	if err := seedDefaultAdmin(ctx, repo, logger); err != nil {
		return fmt.Errorf("seed default admin: %w", err)
	}

	redisClient, err := db.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var redisCmd redis.Cmdable
	if redisClient != nil {
		defer redisClient.Close()
		redisCmd = redisClient
	}

	idemStore := idempotency.NewStore(redisCmd, pool, cfg.IdempotencyTTL)
	codes := twofa.NewStore(redisCmd)
	notify := newNotifier(cfg, logger)

	policy := loadPolicy(ctx, repo, cfg, logger)
	engine := service.NewStatusEngine(repo, notify, policy).
		WithBatchSize(cfg.SweepBatchSize)

	monitor := worker.NewMonitorWorker(engine).WithInterval(cfg.SweepInterval)
	stopWorker := monitor.Run(ctx)
	logger.Info("monitor worker started",
		zap.Duration("interval", cfg.SweepInterval),
		zap.Int32("batch", cfg.SweepBatchSize))

	router := api.NewRouter(cfg, logger, pool, repo, engine, idemStore, redisCmd, codes, notify)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping monitor worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// seedDefaultAdmin creates a super admin on an empty install so operators
// can log in at all. The generated password is printed once to the log.
func seedDefaultAdmin(ctx context.Context, repo *repository.Repository, logger *zap.Logger) error {
	count, err := repo.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &models.Admin{
		Username:     "admin",
		PasswordHash: string(hash),
		IsSuper:      true,
	}
	if err := repo.CreateAdmin(ctx, admin); err != nil {
		return err
	}
	logger.Warn("seeded default super admin, change this password immediately",
		zap.String("username", admin.Username),
		zap.String("password", password))
	return nil
}

// loadPolicy builds the sweep policy from config defaults overlaid with any
// persisted settings rows, so operator overrides survive restarts.
func loadPolicy(ctx context.Context, repo *repository.Repository, cfg *config.Config, logger *zap.Logger) service.Policy {
	policy := service.Policy{
		DepositGrace:      cfg.DepositGrace,
		WithdrawalTimeout: cfg.WithdrawalTimeout,
		AnomalyThreshold:  cfg.AnomalyThreshold,
		AnomalyWindow:     cfg.AnomalyWindow,
	}

	settings, err := repo.ListSettings(ctx)
	if err != nil {
		logger.Warn("load persisted settings failed, using config defaults", zap.Error(err))
		return policy
	}
	for _, s := range settings {
		switch s.Key {
		case "deposit_grace":
			if d, err := time.ParseDuration(s.Value); err == nil && d >= 0 {
				policy.DepositGrace = d
			}
		case "withdrawal_timeout":
			if d, err := time.ParseDuration(s.Value); err == nil && d > 0 {
				policy.WithdrawalTimeout = d
			}
		case "anomaly_threshold":
			if n, err := strconv.Atoi(s.Value); err == nil && n >= 0 {
				policy.AnomalyThreshold = n
			}
		case "anomaly_window":
			if d, err := time.ParseDuration(s.Value); err == nil && d >= 0 {
				policy.AnomalyWindow = d
			}
		}
	}
	return policy
}

func newNotifier(cfg *config.Config, logger *zap.Logger) notifier.Notifier {
	routes := map[notifier.Channel]notifier.Route{
		notifier.ChannelAdmin:  {BotToken: cfg.AdminBotToken, ChatID: cfg.AdminChatID},
		notifier.ChannelMarket: {BotToken: cfg.MarketBotToken, ChatID: cfg.MarketChatID},
	}
	if cfg.AdminBotToken == "" && cfg.MarketBotToken == "" {
		logger.Info("no telegram credentials configured, notifications go to the log")
		return notifier.Log{}
	}
	return notifier.NewTelegram(routes).WithAPIBase(cfg.TelegramAPIBase)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
