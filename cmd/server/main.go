package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	stockapp "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/erp/stockledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting stock ledger service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.EnableDBTracing(db.DB, cfg.Database.DBName); err != nil {
			log.Fatal("Failed to enable database tracing", zap.Error(err))
		}
	}

	idempotencyStore, err := cache.NewIdempotencyStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()
	log.Info("Idempotency store ready", zap.String("backend", cfg.Ledger.IdempotencyBackend))

	ledgerMetrics, err := telemetry.NewLedgerMetrics(log)
	if err != nil {
		log.Fatal("Failed to register ledger metrics", zap.Error(err))
	}

	// Repositories and application service
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	txScope := persistence.NewGormLedgerTransactionScope(db.DB)
	productCatalog := persistence.NewGormProductCatalog(db.DB)
	branchDirectory := persistence.NewGormBranchDirectory(db.DB)
	stockService := stockapp.NewStockService(
		ledgerRepo, txScope, productCatalog, branchDirectory,
		idempotencyStore, ledgerMetrics, log,
	).WithIdempotencyTTL(cfg.Ledger.IdempotencyTTL)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	stockHandler := handler.NewStockHandler(stockService, cfg.Ledger.ExpiryAlertWindowDays)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.Enabled {
		engine.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSOrigins
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	engine.GET("/health", healthHandler(db))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		Logger:     log,
	}))

	stockRoutes := router.NewDomainGroup("stock", "/stock")
	stockRoutes.POST("/movements", stockHandler.RecordMovement)
	stockRoutes.GET("/movements", stockHandler.ListMovements)
	stockRoutes.GET("/movements/:id", stockHandler.GetMovement)
	stockRoutes.POST("/issue", stockHandler.IssueStock)
	stockRoutes.GET("/quantity", stockHandler.GetQuantity)
	stockRoutes.GET("/positions", stockHandler.ListPositions)
	stockRoutes.GET("/valuation", stockHandler.GetValuation)
	stockRoutes.GET("/alerts/expiry", stockHandler.GetExpiryAlerts)
	stockRoutes.GET("/audit/conservation", stockHandler.GetConservationAudit)
	stockRoutes.GET("/documents/:kind/:doc_id/movements", stockHandler.ListMovementsByDocument)

	r.Register(stockRoutes)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler reports liveness of the service and its database
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
