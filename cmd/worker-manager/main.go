// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lendflow/internal/common/camunda"
	"lendflow/internal/common/config"
	"lendflow/internal/common/database"
	"lendflow/internal/common/logger"
	"lendflow/internal/common/observability"

	clr "lendflow/internal/workers/origination/create-loan-record"
	ele "lendflow/internal/workers/origination/evaluate-loan-eligibility"
	ila "lendflow/internal/workers/origination/index-loan-application"
	vla "lendflow/internal/workers/origination/validate-loan-application"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting origination worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}
	if cfg.Camunda.BrokerAddress == "" {
		zapLog.Fatal("camunda.broker_address is required for the worker manager")
	}

	obs := observability.New("worker-manager", os.Getenv("JAEGER_ENDPOINT"))
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient zbc.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Register origination workers ---
	var workers []*camunda.CamundaWorker

	if config.IsWorkerEnabled(cfg, vla.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, vla.TaskType)
		handler, err := vla.NewHandler(
			&vla.Config{
				Timeout: config.GetDuration(wcfg.Timeout),
			},
			log,
		)
		if err != nil {
			zapLog.Fatal("failed to create validate-loan-application handler", zap.Error(err))
		}
		workers = append(workers, startWorker(zeebeClient, vla.TaskType, wcfg, handler, zapLog))
	}

	if config.IsWorkerEnabled(cfg, ele.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, ele.TaskType)
		handler := ele.NewHandler(
			&ele.Config{
				Timeout:           config.GetDuration(wcfg.Timeout),
				MinimumIncome:     cfg.Wizard.MinimumIncome,
				IncomeMultiple:    cfg.Wizard.IncomeMultiple,
				RecommendedFactor: cfg.Wizard.RecommendedFactor,
			},
			log,
		)
		workers = append(workers, startWorker(zeebeClient, ele.TaskType, wcfg, handler, zapLog))
	}

	if config.IsWorkerEnabled(cfg, clr.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, clr.TaskType)
		handler := clr.NewHandler(
			&clr.Config{
				Timeout: config.GetDuration(wcfg.Timeout),
			},
			pg, log,
		)
		workers = append(workers, startWorker(zeebeClient, clr.TaskType, wcfg, handler, zapLog))
	}

	if config.IsWorkerEnabled(cfg, ila.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, ila.TaskType)
		handler := ila.NewHandler(
			&ila.Config{
				Timeout: config.GetDuration(wcfg.Timeout),
				Index:   "loan-applications",
			},
			esClient, log,
		)
		workers = append(workers, startWorker(zeebeClient, ila.TaskType, wcfg, handler, zapLog))
	}

	zapLog.Info("All origination workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.HTTP.MetricsAddress))
		if err := http.ListenAndServe(cfg.HTTP.MetricsAddress, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	for _, w := range workers {
		w.Stop()
	}

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler camunda.JobHandler, log *zap.Logger) *camunda.CamundaWorker {
	return camunda.NewWorker(
		client,
		taskType,
		wcfg.MaxJobsActive,
		time.Duration(wcfg.Timeout)*time.Millisecond,
		handler,
		log,
	)
}
