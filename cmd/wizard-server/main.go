// cmd/wizard-server/main.go
package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lendflow/internal/catalog"
	"lendflow/internal/common/camunda"
	"lendflow/internal/common/config"
	"lendflow/internal/common/database"
	"lendflow/internal/common/logger"
	"lendflow/internal/common/observability"
	"lendflow/internal/gateway"
	"lendflow/internal/resume"
	"lendflow/internal/server"
)

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting wizard server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("wizard-server", os.Getenv("JAEGER_ENDPOINT"))
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Submission gateway client ---
	gatewayClient := gateway.NewClient(
		cfg.Gateway.BaseURL,
		config.GetDuration(cfg.Gateway.Timeout),
		log,
	)
	zapLog.Info("Submission gateway client initialized",
		zap.String("baseURL", cfg.Gateway.BaseURL))

	// --- Loan-type catalog: Postgres when configured, static otherwise ---
	var catalogStore catalog.Store = catalog.NewStaticStore()
	if cfg.Database.Postgres.Host != "" {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err == nil {
			err = pg.Ping(ctx)
		}
		if err != nil {
			zapLog.Warn("postgres unavailable, serving the static loan-type catalog", zap.Error(err))
		} else {
			defer pg.Close()
			catalogStore = catalog.NewPostgresStore(pg)
			zapLog.Info("Loan-type catalog backed by PostgreSQL")
		}
	}

	// --- Resume cache: optional, best-effort ---
	var resumeStore *resume.Store
	if cfg.Database.Redis.Address != "" {
		redisClient, err := database.NewRedis(cfg.Database.Redis)
		if err == nil {
			err = redisClient.Ping(ctx)
		}
		if err != nil {
			zapLog.Warn("redis unavailable, resume cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			ttl := time.Duration(cfg.Wizard.ResumeTTL) * time.Minute
			resumeStore, err = resume.NewStore(redisClient, ttl, log)
			if err != nil {
				zapLog.Fatal("resume store init failed", zap.Error(err))
			}
			zapLog.Info("Resume cache enabled", zap.Duration("ttl", ttl))
		}
	}

	// --- Workflow engine: optional, only needed to start origination ---
	var starter server.ProcessStarter
	if cfg.Wizard.StartProcessOnSubmit {
		if cfg.Camunda.BrokerAddress == "" {
			zapLog.Fatal("wizard.start_process_on_submit requires camunda.broker_address")
		}
		camundaClient, err := camunda.NewClient(cfg.Camunda.BrokerAddress)
		if err != nil {
			zapLog.Fatal("camunda client failed", zap.Error(err))
		}
		defer camundaClient.Close()
		starter = camundaClient
		zapLog.Info("Camunda client connected",
			zap.String("broker", cfg.Camunda.BrokerAddress),
			zap.String("processId", cfg.Wizard.ProcessID))
	}

	srv := server.New(cfg.Wizard, gatewayClient, catalogStore, resumeStore, starter, log)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      srv.Handler(),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}

	go func() {
		zapLog.Info("Wizard API listening", zap.String("address", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Metrics & pprof sidecar ---
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Metrics server listening", zap.String("address", cfg.HTTP.MetricsAddress))
		if err := http.ListenAndServe(cfg.HTTP.MetricsAddress, nil); err != nil {
			zapLog.Error("metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http shutdown error", zap.Error(err))
	}

	zapLog.Info("Wizard server stopped gracefully")
}
