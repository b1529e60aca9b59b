package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dflowfolio/internal/chain"
	"dflowfolio/internal/client/dflow"
	"dflowfolio/internal/config"
	cronrunner "dflowfolio/internal/cron"
	"dflowfolio/internal/db"
	"dflowfolio/internal/handler"
	"dflowfolio/internal/logger"
	gormrepository "dflowfolio/internal/repository/gorm"
	"dflowfolio/internal/service"
)

func main() {
	cfgPath := os.Getenv("DF_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("DF_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	dflowClient := dflow.NewClient(dflow.Options{
		BaseURL:       cfg.DFlow.BaseURL,
		Timeout:       cfg.DFlow.Timeout,
		RetryCount:    cfg.DFlow.RetryCount,
		RetryWaitMin:  cfg.DFlow.RetryWaitMin,
		RetryWaitMax:  cfg.DFlow.RetryWaitMax,
		RatePerSecond: cfg.DFlow.RatePerSecond,
		RateBurst:     cfg.DFlow.RateBurst,
		Logger:        logger,
	})
	walletReader := chain.NewSolanaReader(cfg.Solana.RPCURL, cfg.Solana.Timeout)

	oracle := &service.PriceOracle{
		Repo:     store,
		Provider: dflowClient,
		Logger:   logger,
		TTL:      cfg.Oracle.TTL,
	}
	discovery := &service.DiscoveryService{
		Repo:     store,
		Wallet:   walletReader,
		Provider: dflowClient,
		Logger:   logger,
	}
	metrics := &service.MetricsEngine{
		Repo:   store,
		Prices: oracle,
		Logger: logger,
	}
	portfolio := &service.PortfolioService{Repo: store, Logger: logger}
	redemption := &service.RedemptionService{
		Repo:     store,
		Executor: dflowClient,
		Markets:  dflowClient,
		Logger:   logger,
	}
	refresh := &service.RefreshService{
		Repo:          store,
		Discovery:     discovery,
		Metrics:       metrics,
		Oracle:        oracle,
		Portfolio:     portfolio,
		Logger:        logger,
		PositionBatch: cfg.Refresh.PositionBatch,
		WalletBatch:   cfg.Refresh.WalletBatch,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	positionHandler := &handler.PositionHandler{Repo: store}
	positionHandler.Register(engine)
	portfolioHandler := &handler.PortfolioHandler{Repo: store, Portfolio: portfolio}
	portfolioHandler.Register(engine)
	refreshHandler := &handler.RefreshHandler{Refresh: refresh, Redemption: redemption}
	refreshHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		register := func(name, spec string, job func(context.Context)) {
			if _, err := cronRunner.Add(name, spec, job); err != nil {
				logger.Warn("cron register failed", zap.String("job", name), zap.Error(err))
			}
		}
		register("price_refresh", cfg.Cron.PriceRefresh, refresh.RefreshPrices)
		register("metrics_refresh", cfg.Cron.MetricsRefresh, refresh.RefreshMetrics)
		register("discovery_sweep", cfg.Cron.DiscoverySweep, refresh.SweepDiscovery)
		register("snapshot", cfg.Cron.Snapshot, refresh.SnapshotAll)
		register("cache_cleanup", cfg.Cron.CacheCleanup, refresh.CleanupPriceCache)
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if cfg.Stream.Enabled {
		streamSvc := &service.PriceStreamService{Repo: store, Logger: logger, TTL: cfg.Oracle.TTL}
		stream := dflow.NewPriceStream(dflow.PriceStreamOptions{
			URL:            cfg.Stream.URL,
			TickerProvider: store.ListActiveMarketTickers,
			Logger:         logger,
		})
		go func() {
			err := stream.Run(ctx, func(event dflow.PriceEvent, raw []byte) {
				streamSvc.HandleEvent(ctx, event, raw)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("price stream stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
