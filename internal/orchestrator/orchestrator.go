package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shaiso/flowstate/internal/mq"
	"github.com/shaiso/flowstate/internal/workflow"
)

const defaultPrefetch = 10

// DoneFunc вызывается один раз, когда отслеживаемый экземпляр доходит
// до финального состояния. Например, публикует callback родителю.
type DoneFunc = func(ctx context.Context, inst *workflow.Instance) error

// tracked — отслеживаемый экземпляр.
type tracked struct {
	inst   *workflow.Instance
	onDone DoneFunc
}

// Orchestrator хранит активные родительские экземпляры и доставляет им
// события из очереди child.callback.
type Orchestrator struct {
	conn     *mq.Connection
	consumer *mq.Consumer
	prefetch int

	// Active instances — runtimeID → экземпляр
	active map[string]tracked
	mu     sync.RWMutex

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Conn — соединение с RabbitMQ. Нужно только для Start.
	Conn *mq.Connection

	// Prefetch — неподтверждённых callback на consumer (default: 10).
	Prefetch int

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	return &Orchestrator{
		conn:     cfg.Conn,
		prefetch: prefetch,
		active:   make(map[string]tracked),
		logger:   logger,
	}
}

// Track регистрирует экземпляр для доставки callback и событий scheduler.
// onDone (может быть nil) выполняется в Finish.
// Экземпляр в финальном состоянии не регистрируется.
func (o *Orchestrator) Track(inst *workflow.Instance, onDone DoneFunc) error {
	if inst.Done() {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.active[inst.RuntimeID()]; exists {
		return ErrAlreadyTracked
	}
	o.active[inst.RuntimeID()] = tracked{inst: inst, onDone: onDone}
	return nil
}

// Finish снимает завершённый экземпляр с учёта и выполняет его onDone.
// Для незавершённого или уже снятого экземпляра ничего не делает,
// поэтому onDone выполняется не больше одного раза.
func (o *Orchestrator) Finish(ctx context.Context, inst *workflow.Instance) error {
	if !inst.Done() {
		return nil
	}

	o.mu.Lock()
	t, ok := o.active[inst.RuntimeID()]
	if ok && t.inst == inst {
		delete(o.active, inst.RuntimeID())
	}
	o.mu.Unlock()

	if !ok || t.inst != inst || t.onDone == nil {
		return nil
	}

	if err := t.onDone(ctx, inst); err != nil {
		o.logger.Error("completion hook failed",
			"runtime_id", inst.RuntimeID(),
			"state", inst.Snapshot().Value,
			"error", err,
		)
		return fmt.Errorf("finish %s: %w", inst.RuntimeID(), err)
	}
	return nil
}

// Untrack снимает экземпляр с учёта.
func (o *Orchestrator) Untrack(runtimeID string) {
	o.mu.Lock()
	delete(o.active, runtimeID)
	o.mu.Unlock()
}

// Lookup возвращает зарегистрированный экземпляр.
func (o *Orchestrator) Lookup(runtimeID string) (*workflow.Instance, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.active[runtimeID]
	return t.inst, ok
}

// Instances возвращает экземпляры описания, упорядоченные по runtimeId.
func (o *Orchestrator) Instances(definitionID string) []*workflow.Instance {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var result []*workflow.Instance
	for _, t := range o.active {
		if t.inst.DefinitionID() == definitionID {
			result = append(result, t.inst)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RuntimeID() < result[j].RuntimeID() })
	return result
}

// Active возвращает количество зарегистрированных экземпляров.
func (o *Orchestrator) Active() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// Start запускает consumer очереди child.callback.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.IsStopped() {
		return ErrOrchestratorStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator", "queue", mq.QueueChildCallback, "prefetch", o.prefetch)

	o.consumer = mq.NewConsumer(o.conn, mq.ConsumerConfig{
		Queue:    mq.QueueChildCallback,
		Handler:  o.handleChildCallback,
		Prefetch: o.prefetch,
		Logger:   o.logger,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("callback consumer error", "error", err)
		}
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	o.wg.Wait()

	o.logger.Info("orchestrator stopped", "active_parents", o.Active())
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}
