// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onnwee/sitesentinel/internal/agent"
	"github.com/onnwee/sitesentinel/internal/api"
	"github.com/onnwee/sitesentinel/internal/auth"
	"github.com/onnwee/sitesentinel/internal/config"
	"github.com/onnwee/sitesentinel/internal/evidence"
	"github.com/onnwee/sitesentinel/internal/health"
	"github.com/onnwee/sitesentinel/internal/ledger"
	"github.com/onnwee/sitesentinel/internal/middleware"
	"github.com/onnwee/sitesentinel/internal/orchestrator"
	"github.com/onnwee/sitesentinel/internal/pipeline"
	"github.com/onnwee/sitesentinel/internal/progress"
	"github.com/onnwee/sitesentinel/internal/rules"
	"github.com/onnwee/sitesentinel/internal/tracing"
	"github.com/onnwee/sitesentinel/internal/vision"
)

// writeTimeoutFor sizes the server write timeout around the analyze path,
// which runs the pipeline synchronously and waits on the vision API before
// the response can be written.
func writeTimeoutFor(visionTimeout time.Duration) time.Duration {
	const floor = 15 * time.Second
	if visionTimeout <= 0 {
		return floor
	}
	return visionTimeout + floor
}

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("SiteSentinel API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	// Initialize logger
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summaryAttrs := make([]any, 0, 32)
	for k, v := range cfg.LogSummary() {
		summaryAttrs = append(summaryAttrs, k, v)
	}
	logger.Info("configuration loaded", summaryAttrs...)

	// Initialize tracing
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "sitesentinel-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampling,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Ledger store: PostgreSQL when configured, in-memory otherwise
	var (
		store     ledger.Store
		dbChecker api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			cancel()
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		cancel()

		store = ledger.NewPostgresStore(db, logger)
		dbChecker = health.NewDBChecker(db)
		logger.Info("using postgres ledger store")
	} else {
		store = ledger.NewInMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory ledger store (development only)")
	}
	auditLedger := ledger.NewAuditLedger(store, logger)

	// Redis vision cache (optional)
	var (
		redisClient  *redis.Client
		redisChecker api.HealthChecker
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		redisChecker = health.NewRedisChecker(redisClient)
	}

	// Vision capability
	visionClient, err := vision.NewClient(vision.ClientConfig{
		APIKey:   cfg.VisionAPIKey,
		Endpoint: cfg.VisionEndpoint,
		Model:    cfg.VisionModel,
		Timeout:  time.Duration(cfg.VisionTimeoutSeconds) * time.Second,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create vision client", "error", err)
		os.Exit(1)
	}
	var analyzer vision.Analyzer = visionClient
	if redisClient != nil {
		analyzer = vision.NewCachedAnalyzer(visionClient, redisClient, vision.DefaultCacheTTL, logger)
		logger.Info("vision findings cache enabled")
	}

	// Metrics
	metrics := pipeline.NewMetrics()
	mwMetrics := middleware.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	if err := mwMetrics.Register(registry); err != nil {
		logger.Error("failed to register middleware metrics", "error", err)
		os.Exit(1)
	}

	// Pipeline wiring
	broadcaster := progress.NewBroadcaster()
	orch := orchestrator.New(orchestrator.Config{
		Registry: pipeline.NewRegistry(),
		Agents: []pipeline.Agent{
			agent.NewScout(analyzer),
			agent.NewGuard(rules.NewEngine()),
			agent.NewFixer(),
			agent.NewSealer(),
		},
		Ledger:   auditLedger,
		Observer: broadcaster,
		Metrics:  metrics,
		Logger:   logger,
	})

	jwtService := auth.NewJWTService(cfg.JWTSecret)

	analysisHandlers := api.NewAnalysisHandlers(orch)
	proofHandlers := api.NewProofHandlers(auditLedger)
	wsHandlers := api.NewProgressWebSocketHandlers(broadcaster)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    dbChecker,
		RedisChecker: redisChecker,
	})

	// Create HTTP server with routes
	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Rate limiting: tight per-org limit on analyze, which fans out to the
	// vision API, on top of the global limit applied to the whole server.
	rateLimitStore := middleware.NewInMemoryRateLimitStore()
	go func() {
		for range time.Tick(5 * time.Minute) {
			rateLimitStore.Cleanup()
		}
	}()
	analyzeLimiter := middleware.RateLimiter(rateLimitStore, middleware.DefaultAnalyzeLimit(), middleware.OrgKeyFunc(), mwMetrics)
	startAnalysis := analyzeLimiter(http.HandlerFunc(analysisHandlers.StartAnalysis))

	// Site routes: POST /api/sites/{siteId}/analyze, GET /api/sites/{siteId}/proofs
	mux.Handle("/api/sites/", jwtService.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/analyze"):
			startAnalysis.ServeHTTP(w, r)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/proofs"):
			proofHandlers.ListSiteProofs(w, r)
		default:
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
		}
	})))

	// Proof routes: GET /api/proofs/{runId}, GET /api/proofs/{runId}/verify
	mux.Handle("/api/proofs/", jwtService.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeBadRequest)
			api.WriteError(w, ctx, http.StatusMethodNotAllowed, api.ErrCodeBadRequest, "Method not allowed")
			return
		}
		proofHandlers.GetProof(w, r)
	})))

	// Run progress WebSocket: GET /api/runs/{runId}/events
	mux.Handle("/api/runs/", jwtService.Require(http.HandlerFunc(wsHandlers.SubscribeToRunEvents)))

	// Evidence presign route is only mounted when R2 is configured
	if cfg.R2Configured() {
		evidenceService, err := evidence.NewService(evidence.ServiceConfig{
			BucketName:      cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
			MaxSizeMB:       cfg.R2MaxUploadSizeMB,
		})
		if err != nil {
			logger.Error("failed to create evidence service", "error", err)
			os.Exit(1)
		}
		evidenceHandlers := api.NewEvidenceHandlers(evidenceService)
		mux.Handle("/api/evidence/presign", jwtService.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeBadRequest)
				api.WriteError(w, ctx, http.StatusMethodNotAllowed, api.ErrCodeBadRequest, "Method not allowed")
				return
			}
			evidenceHandlers.PresignUpload(w, r)
		})))
		logger.Info("evidence presign endpoint enabled", "bucket", cfg.R2BucketName)
	} else {
		logger.Warn("R2 not configured, evidence presign endpoint disabled")
	}

	// Apply middleware: otel -> RequestID -> Logging -> HTTP metrics ->
	// global rate limit -> CORS. Logging sits above the handlers so they can
	// push error codes and org IDs back into its response writer.
	var handler http.Handler = mux
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	handler = middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), mwMetrics)(handler)
	handler = middleware.HTTPMetrics(mwMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RequestID(handler)
	handler = otelhttp.NewHandler(handler, "http.server")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeoutFor(time.Duration(cfg.VisionTimeoutSeconds) * time.Second),
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer provider", "error", err)
	}

	logger.Info("server stopped")
}
