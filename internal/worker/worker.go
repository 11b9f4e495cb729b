package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/flowstate/internal/child"
	"github.com/shaiso/flowstate/internal/engine"
	"github.com/shaiso/flowstate/internal/mq"
	"github.com/shaiso/flowstate/internal/plugin"
	"github.com/shaiso/flowstate/internal/store"
	"github.com/shaiso/flowstate/internal/telemetry"
	"github.com/shaiso/flowstate/internal/workflow"
)

const defaultPrefetch = 1

// CallbackPublisher отправляет событие дочернего workflow родителю.
// Реализуется mq.Publisher.
type CallbackPublisher interface {
	PublishChildCallback(ctx context.Context, payload mq.CallbackPayload) error
}

// Tracker принимает незавершённые дочерние workflow, чтобы им доходили
// callback их собственных детей и события scheduler. onDone выполняется,
// когда экземпляр доходит до финального состояния.
// Реализуется orchestrator.Orchestrator.
type Tracker interface {
	Track(inst *workflow.Instance, onDone func(ctx context.Context, inst *workflow.Instance) error) error
}

// Worker запускает дочерние workflow из очереди child.invoke.
type Worker struct {
	source    engine.Source
	store     store.Store
	callbacks CallbackPublisher
	tracker   Tracker
	client    *workflow.Client

	conn      *mq.Connection
	consumer  *mq.Consumer
	entityKey string
	prefetch  int

	logger  *slog.Logger
	metrics *telemetry.Metrics

	// Lifecycle
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Conn — соединение с RabbitMQ. Нужно только для Start.
	Conn *mq.Connection

	// Source — описания дочерних workflow. Обязательно.
	Source engine.Source

	// Store — хранилище {state, context}. Nil — без плагина сохранения.
	Store store.Store

	// Callbacks — публикация событий родителю. Nil — без callback.
	Callbacks CallbackPublisher

	// Tracker — реестр активных экземпляров. Nil — не регистрировать.
	Tracker Tracker

	// Invoker — запуск вложенных дочерних workflow.
	Invoker child.Invoker

	// EntityKey — ключ entityId в контексте (default: "entityId").
	EntityKey string

	// Prefetch — неподтверждённых сообщений на consumer (default: 1).
	Prefetch int

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// New создаёт новый Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Source == nil {
		return nil, ErrMissingSource
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entityKey := cfg.EntityKey
	if entityKey == "" {
		entityKey = plugin.DefaultEntityKey
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	return &Worker{
		source:    cfg.Source,
		store:     cfg.Store,
		callbacks: cfg.Callbacks,
		tracker:   cfg.Tracker,
		client: workflow.NewClient(workflow.ClientOptions{
			OnInvokeChildWorkflow: cfg.Invoker,
			Logger:                logger,
			Metrics:               cfg.Metrics,
		}),
		conn:      cfg.Conn,
		entityKey: entityKey,
		prefetch:  prefetch,
		logger:    logger,
		metrics:   cfg.Metrics,
	}, nil
}

// Start запускает consumer очереди child.invoke.
func (w *Worker) Start(ctx context.Context) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"queue", mq.QueueChildInvoke,
		"prefetch", w.prefetch,
		"persistence", w.store != nil,
	)

	w.consumer = mq.NewConsumer(w.conn, mq.ConsumerConfig{
		Queue:    mq.QueueChildInvoke,
		Handler:  w.handleChildInvoke,
		Prefetch: w.prefetch,
		Logger:   w.logger,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("child consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения обработки.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
