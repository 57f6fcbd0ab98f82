package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/muilab/notigpt/internal/app"
	"github.com/muilab/notigpt/internal/config"
	"github.com/muilab/notigpt/internal/digest"
	"github.com/muilab/notigpt/internal/drawer"
	"github.com/muilab/notigpt/internal/logger"
	"github.com/muilab/notigpt/internal/notifications"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	log.Info("setting gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to initialize services", slog.String("error", err.Error()))
		os.Exit(1)
	}

	scheduler, err := a.Scheduler()
	if err != nil {
		log.Error("failed to register digest schedules", slog.String("error", err.Error()))
		a.Close()
		os.Exit(1)
	}
	scheduler.Start()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestIDMiddleware())
	router.Use(requestLogger(log))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.DB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "instance_id": logger.GetInstanceID()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		drawer.NewHandler(a.Drawer, log).RegisterRoutes(api)
		digest.NewHandler(a.Pipeline, log).RegisterRoutes(api)
		notifications.NewHandler(a.Tokens, log).RegisterRoutes(api)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})

	port := ":" + cfg.Port
	srv := &http.Server{
		Addr:              port,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("notigpt listening", slog.String("addr", port), slog.Int("schedules", scheduler.Len()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	scheduler.Stop(ctx)
	a.Close()

	log.Info("server exited")
}

// requestLogger logs one line per request with its id and latency.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}

		log.WithContext(c.Request.Context()).Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}
