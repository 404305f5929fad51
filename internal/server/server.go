package server

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ironlog/ironlog/internal/config"
	"github.com/ironlog/ironlog/internal/domain"
	"github.com/ironlog/ironlog/internal/handler"
	"github.com/ironlog/ironlog/internal/middleware"
	"github.com/ironlog/ironlog/internal/service"
	"github.com/ironlog/ironlog/internal/telemetry"
)

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config       *config.Config
	MongoDB      *mongo.Database
	RedisClient  *redis.Client
	AuthClient   service.FirebaseAuthClient
	Snapshots    domain.SnapshotStore
	Queue        domain.MutationQueue
	Channel      domain.SessionChannel
	Connectivity domain.Connectivity
	History      domain.HistoryStore
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) (*fiber.App, *service.EngineManager) {
	// Initialize services
	analyzer := service.NewProgressionAnalyzer()
	engines := service.NewEngineManager(service.EngineDeps{
		Store:         deps.Snapshots,
		Queue:         deps.Queue,
		Channel:       deps.Channel,
		Conn:          deps.Connectivity,
		History:       deps.History,
		Analyzer:      analyzer,
		TimerInterval: deps.Config.Sync.TimerInterval,
		DrainInterval: deps.Config.Sync.DrainInterval,
		StaleAfter:    deps.Config.Badger.StaleThreshold,
	})
	historyService := service.NewHistoryService(
		deps.History,
		deps.Snapshots,
		deps.Queue,
		deps.Connectivity,
		analyzer,
	)
	authService := service.NewAuthService(deps.AuthClient, deps.Config.JWT.Secret, deps.Config.JWT.AccessTTL)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService, historyService, engines, deps.Snapshots)
	sessionHandler := handler.NewSessionHandler(engines, historyService, deps.Connectivity)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "IronLog Sync API",
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(telemetry.FiberMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "ironlog-sync",
			"online":  deps.Connectivity.Online(),
		})
	})

	// API v1 routes
	v1 := app.Group("/v1")

	// Auth endpoints (public)
	auth := v1.Group("/auth")
	auth.Post("/login", authHandler.Login)

	// Everything below carries a user identity.
	authed := v1.Group("")
	authed.Use(middleware.VerifyIronLogToken(deps.Config.JWT.Secret))
	if deps.RedisClient != nil {
		// Offline clients retry mutations hard on reconnect; replay the
		// cached response instead of mutating twice.
		authed.Use(middleware.IdempotencyMiddleware(deps.RedisClient, 10*time.Minute))
	}

	authed.Post("/auth/logout", authHandler.Logout)

	session := authed.Group("/session")
	session.Get("/", sessionHandler.GetSession)
	session.Post("/start", sessionHandler.StartWorkout)
	session.Patch("/exercises/:index", sessionHandler.UpdateExercise)
	session.Post("/exercises", sessionHandler.AddExercise)
	session.Put("/exercises/order", sessionHandler.ReorderExercises)
	session.Post("/end", sessionHandler.EndWorkout)
	session.Get("/status", sessionHandler.Status)

	authed.Get("/logs", sessionHandler.ListLogs)
	authed.Post("/logs", sessionHandler.SaveLog)
	authed.Get("/recommendations", sessionHandler.Recommendations)

	return app, engines
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	log.Printf("Error: %v", err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
