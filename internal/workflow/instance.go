package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/flowstate/internal/child"
	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/engine"
	"github.com/shaiso/flowstate/internal/plugin"
	"github.com/shaiso/flowstate/internal/telemetry"
)

// Outcome — результат SendEvent.
type Outcome struct {
	// From — состояние до события.
	From string

	// To — состояние после события (равно From, если перехода не было).
	To string

	// Transitioned — переход зафиксирован.
	Transitioned bool

	// Ignored — причина, по которой событие не вызвало перехода
	// (ErrUnknownTransitionEvent). Nil, если переход был.
	Ignored error

	// ChildrenInvoked — количество успешно запущенных дочерних workflow.
	ChildrenInvoked int
}

// Instance — экземпляр workflow.
//
// Вызовы SendEvent одного экземпляра выполняются строго по очереди
// в порядке вызова: каждый следующий видит полностью зафиксированный
// результат предыдущего, включая плагины и запуск дочерних workflow.
// Snapshot не ждёт выполняющихся вызовов.
type Instance struct {
	def       *engine.Definition
	runtimeID string
	pipeline  *plugin.Pipeline
	children  *child.Coordinator
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	queue ticketLock

	// mu защищает зафиксированную пару {state, context}.
	mu             sync.RWMutex
	state          string
	machineContext map[string]any
}

// DefinitionID возвращает идентификатор описания.
func (i *Instance) DefinitionID() string {
	return i.def.ID()
}

// RuntimeID возвращает идентификатор экземпляра.
func (i *Instance) RuntimeID() string {
	return i.runtimeID
}

// Definition возвращает скомпилированное описание.
func (i *Instance) Definition() *engine.Definition {
	return i.def
}

// Snapshot возвращает копию последней зафиксированной пары {state, context}.
func (i *Instance) Snapshot() domain.Snapshot {
	state, machineContext := i.committed()
	return domain.Snapshot{Value: state, Context: domain.CloneContext(machineContext)}
}

// Done проверяет, находится ли экземпляр в терминальном состоянии.
func (i *Instance) Done() bool {
	state, _ := i.committed()
	return i.def.IsFinal(state)
}

// committed возвращает зафиксированную пару без копирования.
// Map контекста после фиксации не изменяется.
func (i *Instance) committed() (string, map[string]any) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state, i.machineContext
}

// Pending возвращает количество вызовов SendEvent, которые выполняются
// или ждут своей очереди.
func (i *Instance) Pending() int {
	return int(i.queue.pending())
}

// SendEvent обрабатывает событие.
//
// Порядок: проверка терминального состояния, поиск перехода, pre-плагины,
// фиксация {state, context}, post-плагины, дочерние workflow.
// Ошибка после фиксации не откатывает переход: Outcome.Transitioned == true.
func (i *Instance) SendEvent(ctx context.Context, event domain.Event) (Outcome, error) {
	i.queue.Lock()
	defer i.queue.Unlock()

	state, machineContext := i.committed()
	current := domain.Snapshot{Value: state, Context: machineContext}
	outcome := Outcome{From: current.Value, To: current.Value}

	logger := i.eventLogger(ctx).With("event", event.Type)

	if i.def.IsFinal(current.Value) {
		return outcome, fmt.Errorf("%w: %s received %s", ErrInvalidState, current.Value, event.Type)
	}

	to, ok := i.def.Lookup(current.Value, event.Type)
	if !ok {
		logger.Debug("event ignored", "state", current.Value)
		i.metrics.IgnoredEvent(i.def.ID(), event.Type)
		outcome.Ignored = fmt.Errorf("%w: %s in state %s", ErrUnknownTransitionEvent, event.Type, current.Value)
		return outcome, nil
	}

	info := domain.EventInfo{
		Event:        event,
		From:         current.Value,
		To:           to,
		DefinitionID: i.def.ID(),
		RuntimeID:    i.runtimeID,
	}

	// Плагины и дочерние workflow получают копии: зафиксированный
	// контекст заменяется только целиком.
	if err := i.pipeline.Run(ctx, plugin.PhasePre, to, domain.CloneContext(current.Context), info); err != nil {
		return outcome, err
	}

	next := domain.MergeContext(current.Context, event.Payload)
	i.commit(to, next)
	outcome.To = to
	outcome.Transitioned = true

	logger.Debug("transition committed", "from", current.Value, "to", to)
	i.metrics.Transition(i.def.ID(), current.Value, to)

	if err := i.pipeline.Run(ctx, plugin.PhasePost, to, domain.CloneContext(next), info); err != nil {
		return outcome, err
	}

	parent := child.Parent{DefinitionID: i.def.ID(), RuntimeID: i.runtimeID}
	invoked, err := i.children.Evaluate(ctx, parent, to, domain.CloneContext(next))
	outcome.ChildrenInvoked = invoked
	if err != nil {
		return outcome, err
	}

	return outcome, nil
}

// eventLogger возвращает логгер вызова. У i.logger идентификаторы
// экземпляра уже есть, логгер из ctx получает их здесь.
func (i *Instance) eventLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(telemetry.CtxLogger).(*slog.Logger); ok {
		return telemetry.WithRuntimeID(telemetry.WithDefinitionID(l, i.def.ID()), i.runtimeID)
	}
	return i.logger
}

// commit атомично заменяет {state, context}.
func (i *Instance) commit(state string, machineContext map[string]any) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.state = state
	i.machineContext = machineContext
}

// ticketLock — мьютекс, выдающий доступ строго в порядке запроса.
//
// sync.Mutex не гарантирует FIFO, а порядок событий должен совпадать
// с порядком вызовов SendEvent.
type ticketLock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	serving uint64
}

// Lock берёт билет и ждёт своей очереди.
func (l *ticketLock) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cond == nil {
		l.cond = sync.NewCond(&l.mu)
	}

	ticket := l.next
	l.next++
	for ticket != l.serving {
		l.cond.Wait()
	}
}

// Unlock передаёт очередь следующему билету.
func (l *ticketLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.serving++
	l.cond.Broadcast()
}

// pending возвращает количество ожидающих и выполняющихся вызовов.
func (l *ticketLock) pending() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next - l.serving
}
