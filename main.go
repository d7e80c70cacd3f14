package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/NEDA-LABS/mintrelay/config"
	"github.com/NEDA-LABS/mintrelay/routers"
	"github.com/NEDA-LABS/mintrelay/services"
	"github.com/NEDA-LABS/mintrelay/storage"
	"github.com/NEDA-LABS/mintrelay/tasks"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	if err := config.SetupConfig(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	conf := config.ServerConfig()
	if err := conf.Validate(); err != nil {
		logger.Fatalf("%v", err)
	}

	if err := logger.Setup(logger.Options{
		Level:       conf.LogLevel,
		Environment: conf.Environment,
		SentryDSN:   conf.SentryDSN,
	}); err != nil {
		logger.Fatalf("logger setup: %v", err)
	}
	defer logger.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis
	if err := storage.InitializeRedis(ctx); err != nil {
		logger.Fatalf("Redis initialization: %v", err)
	}
	defer storage.CloseRedis()

	engine, err := services.NewEngine(ctx, config.DispatchConfig())
	if err != nil {
		logger.Fatalf("dispatch engine: %v", err)
	}
	defer engine.Close()

	// Start cron jobs
	scheduler, err := tasks.StartCronJobs(ctx, engine, conf.HealthProbeInterval)
	if err != nil {
		logger.Fatalf("cron jobs: %v", err)
	}
	defer scheduler.Stop()

	if conf.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	routers.RegisterRoutes(router, engine, conf)

	appServer := fmt.Sprintf("%s:%s", conf.Host, conf.Port)
	server := &http.Server{
		Addr:              appServer,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Server Running at :%v", appServer)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}
