package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/decertify/decertify/internal/certificate"
	"github.com/decertify/decertify/internal/identity"
	"github.com/decertify/decertify/internal/ledger"
	"github.com/decertify/decertify/internal/server/handler"
	"github.com/decertify/decertify/internal/users"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("server")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.base_url", "")
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.production", false)
	viper.SetDefault("database.url", "")
	viper.SetDefault("ledger.network", "polygon-amoy")
	viper.SetDefault("ledger.endpoint", "")
	viper.SetDefault("ledger.signing_key", "")
	viper.SetDefault("ledger.contract_address", "")
	viper.SetDefault("ledger.timeout", "30s")
	viper.SetDefault("identity.key_dir", "keys")
	viper.SetDefault("identity.token_ttl", "24h")
	viper.SetDefault("expiry.sweep_interval", "10m")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	production := viper.GetBool("server.production")

	// ── Database / store ─────────────────────────────────────────────────────
	var (
		certStore certificate.Store
		userRepo  users.Repo
	)
	dbURL := viper.GetString("database.url")
	if dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		certStore = certificate.NewRepository(db)
		userRepo = users.NewRepository(db)
	} else {
		if production {
			return fmt.Errorf("database.url is required in production mode")
		}
		logger.Warn("no database configured — using in-memory stores; data is lost on restart")
		certStore = certificate.NewMemoryStore()
		userRepo = users.NewMemoryRepository()
	}

	// ── Ledger client ────────────────────────────────────────────────────────
	// Production composes the bare HTTP client: ledger failures propagate.
	// Non-production wraps it in the stub fallback (or runs pure stub when no
	// endpoint is configured) so local work never blocks on connectivity.
	ledgerTimeout, _ := time.ParseDuration(viper.GetString("ledger.timeout"))
	ledgerCfg := ledger.Config{
		Network:         viper.GetString("ledger.network"),
		Endpoint:        viper.GetString("ledger.endpoint"),
		SigningKey:      viper.GetString("ledger.signing_key"),
		ContractAddress: viper.GetString("ledger.contract_address"),
		Timeout:         ledgerTimeout,
	}

	var ledgerClient ledger.Client
	switch {
	case production:
		if ledgerCfg.Endpoint == "" {
			return fmt.Errorf("ledger.endpoint is required in production mode")
		}
		ledgerClient = ledger.NewHTTPClient(ledgerCfg)
		logger.Info("ledger client: http",
			zap.String("network", ledgerCfg.Network),
			zap.String("endpoint", ledgerCfg.Endpoint),
		)
	case ledgerCfg.Endpoint != "":
		ledgerClient = ledger.NewFallback(ledger.NewHTTPClient(ledgerCfg), logger)
		logger.Warn("ledger client: http with stub fallback — records issued while the ledger is unreachable are marked unanchored")
	default:
		ledgerClient = ledger.NewFallback(nil, logger)
		logger.Warn("ledger client: stub only — no real anchoring will occur")
	}
	ledgerClient = handler.InstrumentLedger(ledgerClient)

	// ── Identity ─────────────────────────────────────────────────────────────
	key, err := identity.LoadOrCreateKey(viper.GetString("identity.key_dir"))
	if err != nil {
		return fmt.Errorf("session signing key: %w", err)
	}

	httpPort := viper.GetInt("server.port")
	baseURL := viper.GetString("server.base_url")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", httpPort)
	}
	tokenTTL, _ := time.ParseDuration(viper.GetString("identity.token_ttl"))
	tokens := identity.NewTokenIssuer(key, baseURL, tokenTTL)

	// ── Wire up layers ───────────────────────────────────────────────────────
	anchorSvc := certificate.NewAnchorService(certStore, ledgerClient, logger)
	resolver := certificate.NewVerificationResolver(certStore, ledgerClient, logger)
	userSvc := users.NewService(userRepo, logger)

	certHandler := handler.NewCertificateHandler(anchorSvc, resolver, tokens, logger)
	authHandler := handler.NewAuthHandler(userSvc, tokens, logger)

	// ── HTTP router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	rps := viper.GetInt("server.rate_limit_rps")
	if rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	certHandler.Register(v1)
	authHandler.Register(v1)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// ── Background: expire overdue certificates ──────────────────────────────
	sweepInterval, _ := time.ParseDuration(viper.GetString("expiry.sweep_interval"))
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if _, err := anchorSvc.ExpireOverdue(ctx, time.Now()); err != nil {
					logger.Warn("expiry sweep error", zap.Error(err))
				}
				cancel()
			case <-quit:
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.Int("port", httpPort), zap.Bool("production", production))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
