package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/ttsstream/internal/artifact"
	"github.com/makeasinger/ttsstream/internal/audio"
	"github.com/makeasinger/ttsstream/internal/blob"
	"github.com/makeasinger/ttsstream/internal/config"
	"github.com/makeasinger/ttsstream/internal/handler"
	"github.com/makeasinger/ttsstream/internal/job"
	"github.com/makeasinger/ttsstream/internal/metrics"
	"github.com/makeasinger/ttsstream/internal/middleware"
	"github.com/makeasinger/ttsstream/internal/model"
	"github.com/makeasinger/ttsstream/internal/process"
	"github.com/makeasinger/ttsstream/internal/store"
	ws "github.com/makeasinger/ttsstream/internal/websocket"
	"github.com/makeasinger/ttsstream/internal/worker"
	"github.com/makeasinger/ttsstream/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Upload and artifact roots
	if err := artifact.EnsureDirs(cfg.Storage.UploadDir, cfg.Storage.ArtifactDir); err != nil {
		log.Fatalf("Failed to create storage directories: %v", err)
	}
	artifacts, err := artifact.NewStore(cfg.Storage.ArtifactDir)
	if err != nil {
		log.Fatalf("Failed to open artifact store: %v", err)
	}
	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open upload store: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	redisOK := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available, job records and artifact expiry disabled: %v", err)
		redisOK = false
	}

	// Initialize Asynq client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Metrics
	meters, metricsHandler, shutdownMetrics, err := metrics.Setup()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// External tools
	synthTool, err := process.ParseTool(cfg.Synthesis.Command)
	if err != nil {
		log.Fatalf("Invalid synthesis command: %v", err)
	}
	concatTool, err := process.ParseTool(cfg.Concat.Command)
	if err != nil {
		log.Fatalf("Invalid concat command: %v", err)
	}
	for _, t := range []process.Tool{synthTool, concatTool} {
		if !t.Available() {
			log.Printf("Warning: %s not found in PATH; jobs will fail until it is installed", t.Name)
		}
	}
	pool := process.NewPool(process.NewExecRunner(), cfg.Process.MaxConcurrent)

	// Job pipeline
	jobStore := store.NewJobStore(redisClient)
	opts := job.Options{
		Synthesizer:  audio.NewSynthesizer(synthTool, pool),
		Concatenator: audio.NewConcatenator(concatTool, pool),
		Artifacts:    artifacts,
		Blobs:        blobs,
		Metrics:      meters,
		Parallelism:  cfg.Synthesis.Parallelism,
		Timeout:      cfg.Jobs.Timeout,
	}
	if redisOK {
		opts.Recorder = jobStore
		opts.Expiry = worker.NewExpiryScheduler(asynqClient, cfg.Artifacts.Retention)
	}
	orchestrator := job.NewOrchestrator(opts)

	// Initialize WebSocket hub
	hub := ws.NewHub(orchestrator, model.NewValidator(), ws.SessionOptions{
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
		ClientTimeout:     cfg.Session.ClientTimeout,
		OutboundBuffer:    cfg.Session.OutboundBuffer,
		CancelJobsOnClose: cfg.Jobs.CancelOnDisconnect,
		Uploads:           blobs,
	}, meters)
	go hub.Run()

	// Initialize handlers
	downloadHandler := handler.NewDownloadHandler(artifacts)
	uploadHandler := handler.NewUploadHandler(blobs)
	jobHandler := handler.NewJobHandler(jobStore)
	healthHandler := handler.NewHealthHandler(hub, synthTool, concatTool)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.Auth.Enabled)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: response.FromFiberError,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", healthHandler.Health)
	if metricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}

	// Artifact retrieval
	app.Get("/download/:jobId/:filename", downloadHandler.Artifact)

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())
	api.Post("/upload/:fileId", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), uploadHandler.Source)
	api.Get("/jobs/:jobId", jobHandler.Status)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, authMiddleware.Authenticate())

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c)
	}))

	// Start Asynq worker server
	var workerServer *asynq.Server
	if redisOK {
		workerServer = startWorkerServer(redisOpt, artifacts)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Shutdown(shutdownCtx); err != nil {
			log.Printf("Hub shutdown error: %v", err)
		}
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if workerServer != nil {
			workerServer.Shutdown()
		}
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Metrics shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func newBlobStore(cfg *config.Config) (blob.Store, error) {
	if cfg.Storage.Backend == "r2" {
		log.Printf("Using R2 bucket %s for uploads", cfg.R2.BucketName)
		return blob.NewR2Store(&cfg.R2)
	}
	return blob.NewLocalStore(cfg.Storage.UploadDir)
}

func startWorkerServer(redisOpt asynq.RedisClientOpt, artifacts *artifact.Store) *asynq.Server {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				worker.QueueMaintenance: 1,
			},
		},
	)

	expiryWorker := worker.NewExpiryWorker(artifacts)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeArtifactExpire, expiryWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
		return nil
	}
	return srv
}
