package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bloomboard/config"
	"bloomboard/internal/app"
	"bloomboard/internal/handler"
	"bloomboard/internal/httpserver"
	pkgconfig "bloomboard/pkg/config"
	"bloomboard/pkg/logger"
	"bloomboard/pkg/otel"
	"bloomboard/pkg/trace"
)

func main() {
	configDir := flag.String("config", "config", "directory holding base.yaml and <env>.yaml")
	env := flag.String("env", pkgconfig.GetConfigEnv(), "config environment (development, production, ...)")
	flag.Parse()

	cfg, err := config.Load(*configDir, *env)
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log.Mode)
	defer log.Sync()

	log.Info("Starting bloomboard...",
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("storage_key", cfg.Storage.Key),
		zap.String("port", cfg.Server.Port),
		zap.Bool("mq_enabled", cfg.MQ.URL != ""),
	)

	ctx := trace.WithContext(context.Background(), trace.GenerateTraceID())

	shutdownOtel, err := otel.Init(ctx, otel.Config{
		ServiceName:    "bloomboard",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Warn("Failed to init OpenTelemetry, tracing disabled", zap.Error(err))
		shutdownOtel = func() {}
	}
	defer shutdownOtel()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to init application", zap.Error(err))
	}
	defer application.Close()

	// 每个会话只导入一次
	if application.ImportOnce(ctx, "") {
		log.Info("Startup import applied")
	}

	habitHandler := handler.NewHabitHandler(application.Store, log)
	router := httpserver.NewRouter(habitHandler, log, application.Storage, application.Publisher)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bloomboard gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("bloomboard shutdown complete")
}
