package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/simonpricept/client-billing/internal/api/handler"
	"github.com/simonpricept/client-billing/internal/api/middleware"
	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

// Deps carries everything the router needs. Services are constructed in
// main and injected here so the transport layer stays free of wiring.
type Deps struct {
	Onboarding ports.OnboardingService
	Clients    ports.ClientService
	Imports    ports.ImportService
	Reconcile  ports.ReconcileService
	Auth       ports.AuthService
	Dispatcher handler.EventDispatcher

	DB    *mongo.Database
	Redis *redis.Client

	JWTSecret string
	Log       zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("billing"))

	e.GET("/metrics", echoprometheus.NewHandler())

	// --- Handlers ---
	onboardingHandler := handler.NewOnboardingHandler(deps.Onboarding)
	clientHandler := handler.NewClientHandler(deps.Clients, deps.Reconcile)
	importHandler := handler.NewImportHandler(deps.Imports)
	webhookHandler := handler.NewWebhookHandler(deps.Dispatcher)
	authHandler := handler.NewAuthHandler(deps.Auth)

	authMiddleware := middleware.Auth(deps.JWTSecret)
	staffOnly := middleware.RBAC(domain.RoleAdmin, domain.RoleStaff)
	adminOnly := middleware.RBAC(domain.RoleAdmin)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.GET("/auth/me", authHandler.Me, authMiddleware)

	// --- Public onboarding flow (the signed token is the credential) ---
	onboarding := e.Group("/v1/onboarding")
	onboarding.POST("/validate", onboardingHandler.ValidateToken)
	onboarding.POST("/setup-intent", onboardingHandler.CreateSetupIntent)
	onboarding.POST("/complete", onboardingHandler.Complete)

	// --- Gateway webhooks (verified upstream, processed asynchronously) ---
	e.POST("/v1/webhooks/gateway", webhookHandler.Receive)

	// --- Admin API ---
	admin := e.Group("/v1/admin", authMiddleware, staffOnly)
	admin.GET("/clients", clientHandler.List)
	admin.GET("/clients/stats", clientHandler.Stats)
	admin.GET("/clients/:email", clientHandler.Get)
	admin.POST("/clients/invite", clientHandler.Invite)
	admin.POST("/clients/:email/resend", clientHandler.Resend)
	admin.POST("/clients/:email/cancel", clientHandler.Cancel)
	admin.POST("/clients/:email/portal", clientHandler.Portal)
	admin.POST("/clients/:email/sync", clientHandler.Sync)

	imports := e.Group("/v1/admin/imports", authMiddleware, adminOnly)
	imports.POST("/review", importHandler.Review)
	imports.POST("/commit", importHandler.Commit)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.DB, deps.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	return e
}
