package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/reelrender/internal/api"
	"github.com/bobarin/reelrender/internal/config"
	"github.com/bobarin/reelrender/internal/db"
	"github.com/bobarin/reelrender/internal/queue"
	"github.com/bobarin/reelrender/internal/storage"
	"github.com/bobarin/reelrender/internal/worker"
)

func main() {
	log.Println("Starting ReelRender API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureSchema(startupCtx); err != nil {
		startupCancel()
		log.Fatalf("Failed to apply schema: %v", err)
	}
	if cfg.WorkerEnabled {
		// Jobs left running by a previous process will never finish
		if _, err := database.MarkInterruptedJobs(startupCtx); err != nil {
			log.Printf("WARNING: Failed to mark interrupted jobs: %v", err)
		}
	}
	startupCancel()

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	renderer := worker.NewRendererFromConfig(&cfg.Render)
	log.Printf("Renderer: %dx%d @ %d fps, canvas %s, work dir %s",
		cfg.Render.Width, cfg.Render.Height, cfg.Render.FPS, cfg.Render.KenBurnsCanvas, cfg.Render.WorkDir)

	var syncRenderer api.SyncRenderer
	if cfg.SyncRenderEnabled {
		syncRenderer = renderer
		log.Println("Synchronous rendering enabled on /v1/renders/sync")
	}

	// Create API handler
	handler := api.NewHandler(database, q, stor, syncRenderer, cfg.MaxConcurrentJobs)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		w := worker.New(database, q, stor, renderer)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
