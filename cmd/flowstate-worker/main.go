// flowstate-worker — запускает дочерние workflow из очереди child.invoke.
//
// Worker:
//   - Получает запросы на запуск из RabbitMQ
//   - Находит описание по (definitionId, version)
//   - Создаёт экземпляр, сохраняет состояние и отправляет initOptions.event
//   - Публикует callback родителю, если дочерний workflow завершён
//   - Доставляет callback незавершённым экземплярам этого процесса
//   - Отправляет им события по расписаниям из файла конфигурации
//   - Отдаёт /healthz, /metrics и HTTP API (/api/v1)
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/flowstate/internal/api"
	"github.com/shaiso/flowstate/internal/backend"
	"github.com/shaiso/flowstate/internal/child"
	"github.com/shaiso/flowstate/internal/config"
	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/mq"
	"github.com/shaiso/flowstate/internal/orchestrator"
	"github.com/shaiso/flowstate/internal/scheduler"
	"github.com/shaiso/flowstate/internal/telemetry"
	"github.com/shaiso/flowstate/internal/worker"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "flowstate-worker",
		Short:         "Run child workflows from the child.invoke queue",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	config.SetupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting flowstate-worker",
		"version", version,
		"store_backend", cfg.StoreBackend,
	)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backends, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	// RabbitMQ
	conn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL, Logger: logger})
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer conn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}

	metrics := telemetry.NewMetrics(nil)
	publisher := mq.NewPublisher(conn, logger)
	invoker := child.NewPublisher(publisher)

	orch := orchestrator.New(orchestrator.Config{Conn: conn, Logger: logger})
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Target:    orch,
		Schedules: schedules(cfg.Schedules),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	go sched.Run(ctx, cfg.ScheduleTick)

	w, err := worker.New(worker.Config{
		Conn:      conn,
		Source:    backends.Definitions,
		Store:     backends.Store,
		Callbacks: publisher,
		Tracker:   orch,
		Invoker:   invoker,
		EntityKey: cfg.EntityKey,
		Prefetch:  cfg.Prefetch,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	// HTTP mux: /healthz + /metrics + /api/v1
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if !conn.IsConnected() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte("rabbitmq disconnected"))
			return
		}
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handlerCfg := api.Config{
		Records: backends.Store,
		Invoker: invoker,
		Logger:  logger,
	}
	if backends.DefinitionRepo != nil {
		handlerCfg.Definitions = backends.DefinitionRepo
	}
	api.NewHandler(handlerCfg).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	w.Stop()
	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}

	logger.Info("flowstate-worker stopped")
	return nil
}

// schedules переводит расписания из конфигурации в scheduler.Schedule.
func schedules(configs []config.ScheduleConfig) []scheduler.Schedule {
	result := make([]scheduler.Schedule, 0, len(configs))
	for _, c := range configs {
		result = append(result, scheduler.Schedule{
			Name:         c.Name,
			DefinitionID: c.DefinitionID,
			State:        c.State,
			Event:        domain.Event{Type: c.Event},
			CronExpr:     c.Cron,
			Interval:     c.Interval,
			Timezone:     c.Timezone,
		})
	}
	return result
}
