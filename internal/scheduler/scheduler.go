package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/workflow"
)

// ErrInvalidSchedule — некорректный Schedule.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Target — активные экземпляры. Реализуется orchestrator.Orchestrator.
type Target interface {
	Instances(definitionID string) []*workflow.Instance

	// Finish снимает завершённый экземпляр с учёта и выполняет его
	// обработчик завершения.
	Finish(ctx context.Context, inst *workflow.Instance) error
}

// Schedule — периодическое событие для экземпляров одного описания.
type Schedule struct {
	// Name — имя расписания для логов.
	Name string

	// DefinitionID — описание, экземпляры которого получают событие.
	DefinitionID string

	// State — только экземпляры в этом состоянии. Пусто — все.
	State string

	// Event — отправляемое событие.
	Event domain.Event

	// CronExpr — cron-выражение (5 полей или @every/@daily).
	CronExpr string

	// Interval — интервал, если CronExpr пуст.
	Interval time.Duration

	// Timezone — часовой пояс для CronExpr. Пусто — UTC.
	Timezone string

	// NextDueAt — время следующего срабатывания.
	NextDueAt time.Time
}

// Validate проверяет Schedule.
func (s *Schedule) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSchedule)
	}
	if s.DefinitionID == "" {
		return fmt.Errorf("%w: %s has empty definition id", ErrInvalidSchedule, s.Name)
	}
	if s.Event.Type == "" {
		return fmt.Errorf("%w: %s has empty event", ErrInvalidSchedule, s.Name)
	}
	if s.CronExpr != "" {
		return ValidateCronExpr(s.CronExpr)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("%w: %s has neither cron expression nor interval", ErrInvalidSchedule, s.Name)
	}
	return nil
}

// Scheduler — планировщик событий.
type Scheduler struct {
	target    Target
	schedules []*Schedule
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

// Config — конфигурация Scheduler.
type Config struct {
	Target    Target
	Schedules []Schedule
	Logger    *slog.Logger

	// Now — источник времени (default: time.Now).
	Now func() time.Time
}

// New валидирует расписания и вычисляет первое срабатывание каждого.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Scheduler{
		target: cfg.Target,
		now:    now,
		logger: logger,
	}

	start := now()
	for i := range cfg.Schedules {
		sched := cfg.Schedules[i]
		if err := sched.Validate(); err != nil {
			return nil, err
		}
		if sched.NextDueAt.IsZero() {
			next, err := CalculateNextDue(&sched, start)
			if err != nil {
				return nil, err
			}
			sched.NextDueAt = next
		}
		s.schedules = append(s.schedules, &sched)
	}

	return s, nil
}

// Tick отправляет события всех наступивших расписаний.
// Возвращает количество экземпляров, сменивших состояние.
//
// Ошибка одного экземпляра не блокирует обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	transitioned := 0

	for _, sched := range s.schedules {
		if sched.NextDueAt.After(now) {
			continue
		}

		transitioned += s.fire(ctx, sched)

		next, err := CalculateNextDue(sched, now)
		if err != nil {
			s.logger.Error("failed to calculate next due", "schedule", sched.Name, "error", err)
			continue
		}
		sched.NextDueAt = next
	}

	return transitioned
}

// fire отправляет событие подходящим экземплярам.
func (s *Scheduler) fire(ctx context.Context, sched *Schedule) int {
	var delivered, transitioned int

	for _, inst := range s.target.Instances(sched.DefinitionID) {
		if sched.State != "" && inst.Snapshot().Value != sched.State {
			continue
		}

		outcome, err := inst.SendEvent(ctx, sched.Event)
		if ferr := s.target.Finish(ctx, inst); ferr != nil {
			s.logger.Error("failed to finish instance",
				"schedule", sched.Name,
				"runtime_id", inst.RuntimeID(),
				"error", ferr,
			)
		}
		if err != nil {
			s.logger.Error("scheduled event failed",
				"schedule", sched.Name,
				"runtime_id", inst.RuntimeID(),
				"error", err,
			)
			continue
		}

		delivered++
		if outcome.Transitioned {
			transitioned++
		}
	}

	s.logger.Info("schedule fired",
		"schedule", sched.Name,
		"event", sched.Event.Type,
		"delivered", delivered,
		"transitioned", transitioned,
	)
	return transitioned
}

// NextDue возвращает время ближайшего срабатывания.
func (s *Scheduler) NextDue() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next time.Time
	for _, sched := range s.schedules {
		if next.IsZero() || sched.NextDueAt.Before(next) {
			next = sched.NextDueAt
		}
	}
	return next
}

// Run вызывает Tick каждые interval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
