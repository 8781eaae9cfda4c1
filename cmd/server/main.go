// cmd/server/main.go
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/triggerstore/internal/api"
	"github.com/andresuchdata/triggerstore/internal/config"
	"github.com/andresuchdata/triggerstore/internal/storage"
	"github.com/andresuchdata/triggerstore/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetLevel(cfg.Log.Level)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger.SetOutput(os.Stdout)
	}

	services := &api.Services{}

	var observer storage.Observer
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promObserver, err := storage.NewPrometheusObserver(cfg.Metrics.Namespace, reg)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to register metrics")
		}
		observer = promObserver
		services.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Initialize storage gateway
	gateway, err := storage.NewGatewayFromConfig(cfg, observer, logger.Component("gateway"))
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize storage gateway")
	}
	services.Gateway = gateway

	logger.Log.Info().
		Str("account", gateway.AccountName()).
		Str("authority", gateway.AccountAuthority()).
		Str("driver", cfg.Storage.Driver).
		Msg("Storage gateway ready")

	// Initialize HTTP server
	router := api.NewRouter(services, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if closer, ok := gateway.Registry().(io.Closer); ok {
		_ = closer.Close()
	}

	logger.Log.Info().Msg("Server exiting")
}
