package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/simonpricept/client-billing/internal/api"
	"github.com/simonpricept/client-billing/internal/core/service"
	"github.com/simonpricept/client-billing/internal/core/token"
	"github.com/simonpricept/client-billing/internal/infrastructure/config"
	mongodb "github.com/simonpricept/client-billing/internal/infrastructure/db/mongo"
	redisdb "github.com/simonpricept/client-billing/internal/infrastructure/db/redis"
	"github.com/simonpricept/client-billing/internal/infrastructure/email"
	"github.com/simonpricept/client-billing/internal/infrastructure/gateway"
	"github.com/simonpricept/client-billing/internal/infrastructure/queue"
	"github.com/simonpricept/client-billing/pkg/logger"
)

const (
	staffSessionTTL = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Persistence ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	clientRepo := mongodb.NewClientRepository(db)
	userRepo := mongodb.NewUserRepository(db)
	if err := clientRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("client index creation failed")
	}
	if err := userRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("user index creation failed")
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() { _ = rdb.Close() }()

	// --- External collaborators ---
	stripeGateway := gateway.NewStripeGateway(cfg.Gateway, logger.Component("gateway"))
	tokens := token.NewService(cfg.TokenSecret, logger.Component("token"))
	notifier := email.NewSMTPNotifier(cfg.SMTP, tokens, cfg.FrontendURL, logger.Component("email"))

	// --- Core services ---
	lifecycle := service.NewLifecycle(clientRepo, logger.Component("lifecycle"))
	onboardingSvc := service.NewOnboardingService(clientRepo, stripeGateway, notifier, tokens, lifecycle, logger.Component("onboarding"))
	clientSvc := service.NewClientService(clientRepo, stripeGateway, notifier, tokens, lifecycle, cfg.FrontendURL+"/billing", logger.Component("clients"))
	dedup := redisdb.NewEventDedup(rdb)
	reconcileSvc := service.NewReconcileService(clientRepo, stripeGateway, dedup, lifecycle, logger.Component("reconcile"))
	importSvc := service.NewImportService(clientRepo, stripeGateway, notifier, logger.Component("import"))
	authSvc := service.NewAuthService(userRepo, cfg.JWTSecret, staffSessionTTL)

	// Webhook events are processed off the request path, sharded per customer.
	dispatcher := queue.NewDispatcher(0, reconcileSvc, logger.Component("dispatcher"))
	dispatcher.Start()

	e := api.NewRouter(api.Deps{
		Onboarding: onboardingSvc,
		Clients:    clientSvc,
		Imports:    importSvc,
		Reconcile:  reconcileSvc,
		Auth:       authSvc,
		Dispatcher: dispatcher,
		DB:         db,
		Redis:      rdb,
		JWTSecret:  cfg.JWTSecret,
		Log:        log,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting billing API")
		if err := e.Start(":" + cfg.Port); err != nil {
			log.Info().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	// Drain queued webhook events before closing connections.
	dispatcher.Stop()
}
