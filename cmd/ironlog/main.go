package main

import (
	"context"
	"encoding/base64"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"golang.org/x/sync/errgroup"

	"github.com/ironlog/ironlog/internal/config"
	"github.com/ironlog/ironlog/internal/middleware"
	"github.com/ironlog/ironlog/internal/repository"
	"github.com/ironlog/ironlog/internal/server"
	"github.com/ironlog/ironlog/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Starting IronLog Sync Service...")

	ctx := context.Background()

	// Grafana Cloud requires Basic auth with instanceId:apiToken base64 encoded
	authString := cfg.OTEL.InstanceID + ":" + cfg.OTEL.Token
	authEncoded := base64.StdEncoding.EncodeToString([]byte(authString))

	otelProvider, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: cfg.OTEL.ServiceVersion,
		Environment:    cfg.OTEL.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
		OTLPHeaders: map[string]string{
			"Authorization": "Basic " + authEncoded,
		},
		Enabled: cfg.OTEL.Enabled,
	})
	if err != nil {
		log.Printf("Warning: Failed to initialize OpenTelemetry: %v", err)
	}
	if otelProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			otelProvider.Shutdown(shutdownCtx)
		}()
	}

	// Initialize Firebase
	firebaseApp, err := middleware.InitFirebase(
		cfg.Firebase.ProjectID,
		cfg.Firebase.PrivateKey,
		cfg.Firebase.ClientEmail,
	)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to get Firebase Auth client: %v", err)
	}
	log.Println("✓ Firebase initialized")

	// Connect to MongoDB with OpenTelemetry instrumentation
	ctxMongo, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoOpts := options.Client().ApplyURI(cfg.MongoDB.URI)
	if cfg.OTEL.Enabled {
		mongoOpts.SetMonitor(otelmongo.NewMonitor())
	}

	mongoClient, err := mongo.Connect(ctxMongo, mongoOpts)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	if err := mongoClient.Ping(ctxMongo, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	log.Println("✓ MongoDB connected")

	mongoDB := mongoClient.Database(cfg.MongoDB.Database)

	// Connect to Redis. No fatal on ping failure: the whole point of the
	// engine is surviving an unreachable remote store. The probe reports
	// offline and queued mutations drain once Redis comes back.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis unreachable at startup, starting offline: %v", err)
	} else {
		log.Println("✓ Redis connected")
	}

	// Open the local snapshot store
	badgerOpts := badger.DefaultOptions(cfg.Badger.Dir).WithLogger(nil)
	if cfg.Badger.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer db.Close()
	log.Println("✓ Local store opened")

	snapshots := repository.NewBadgerSnapshotStore(db)
	queue := repository.NewBadgerMutationQueue(db)
	channel := repository.NewRedisSessionChannel(redisClient)
	probe := repository.NewRedisConnectivityProbe(redisClient, cfg.Sync.ConnProbeInterval, cfg.Sync.ConnProbeTimeout)
	history := repository.NewMongoHistoryStore(mongoDB)

	// Drop bundles whose last sync is past the staleness threshold. Queued
	// mutations are never purged.
	if purged, err := snapshots.PurgeStale(ctx, cfg.Badger.StaleThreshold); err != nil {
		log.Printf("Warning: stale bundle purge failed: %v", err)
	} else if purged > 0 {
		log.Printf("Purged %d stale bundles", purged)
	}

	app, engines := server.NewApp(server.AppDependencies{
		Config:       cfg,
		MongoDB:      mongoDB,
		RedisClient:  redisClient,
		AuthClient:   authClient,
		Snapshots:    snapshots,
		Queue:        queue,
		Channel:      channel,
		Connectivity: probe,
		History:      history,
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		probe.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Printf("🚀 Server starting on port %s", cfg.Server.Port)
		return app.Listen(":" + cfg.Server.Port)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down gracefully...")
		engines.Shutdown()
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
