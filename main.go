package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photoframe/internal/database"
	"photoframe/internal/geocode"
	"photoframe/internal/handlers"
	"photoframe/internal/logging"
	"photoframe/internal/media"
	"photoframe/internal/middleware"
	"photoframe/internal/pipeline"
	"photoframe/internal/queue"
	"photoframe/internal/settings"
	"photoframe/internal/startup"
	"photoframe/internal/storage"
	"photoframe/internal/workers"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()
	ctx := context.Background()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Refresh database gauges periodically
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		for range ticker.C {
			db.UpdateDBMetrics()
		}
	}()

	// Initialize storage: prefer the active stored configuration, fall
	// back to the local bootstrap provider from the environment.
	store := settings.New(db)
	storageCfg := config.BootstrapStorageConfig()
	var configID int64
	fromStore := false
	if stored, err := store.ActiveConfig(ctx); err != nil {
		logging.Warn("Failed to load stored storage config: %v", err)
	} else if stored != nil {
		storageCfg = stored.Config
		configID = stored.ID
		fromStore = true
	}

	storageManager, err := storage.NewManager(storageCfg, store, configID)
	if err != nil {
		startup.LogFatal("Failed to initialize storage: %v", err)
	}
	storageManager.On(storage.EventProviderChanged, func(e storage.Event) {
		logging.Info("Storage provider switched from %q to %q", e.OldProvider, e.Provider)
	})
	startup.LogStorageInit(storageManager.Kind(), fromStore)

	// Initialize image processing
	if err := media.InitVips(); err != nil {
		logging.Warn("libvips initialization failed: %v", err)
	}
	defer media.ShutdownVips()
	startup.LogImageProcessingInit(media.IsVipsAvailable())

	// Initialize pipeline and queue workers
	geocoder := geocode.NewClient(config.GeocodeBaseURL)
	processor := pipeline.New(db, storageManager, geocoder)

	workerCount := workers.ForMixed(config.WorkerLimit)
	startup.LogQueueInit(workerCount, config.PollInterval)

	registry := queue.NewRegistry()
	manager := queue.NewManager(db, processor, queue.Options{
		PollInterval: config.PollInterval,
		Workers:      workerCount,
	})
	registry.Register("pipeline", manager)
	manager.Start(ctx)

	// Initialize handlers
	h := handlers.New(db, manager, storageManager)

	// Setup router
	router := setupRouter(h, config)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)

	// Apply metrics middleware
	meteredHandler := middleware.Metrics(middleware.DefaultMetricsConfig())(loggedHandler)

	// Apply compression middleware
	compressionConfig := middleware.DefaultCompressionConfig()
	handler := middleware.Compression(compressionConfig)(meteredHandler)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, registry)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Queue API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/queue/tasks", h.EnqueueTask).Methods("POST")
	api.HandleFunc("/queue/tasks/{id:[0-9]+}", h.GetTask).Methods("GET")
	api.HandleFunc("/queue/stats", h.QueueStats).Methods("GET")
	api.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Image proxy, the target of local-provider public URLs
	r.HandleFunc("/image/{key:.*}", h.ServeImage).Methods("GET", "HEAD")

	// Prometheus metrics
	if config.MetricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	return r
}

func handleShutdown(srv *http.Server, registry *queue.Registry) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping queue workers")
	registry.StopAll()
	startup.LogShutdownStepComplete("Queue workers stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
