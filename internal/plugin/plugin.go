// Package plugin реализует конвейер плагинов, выполняемых вокруг перехода.
//
// Плагин — именованное действие с фильтром по состояниям и фазой:
//   - PhasePre  — до фиксации перехода (получает текущий контекст)
//   - PhasePost — после фиксации (получает новый контекст)
//
// Плагины выполняются строго в порядке регистрации, каждый дожидается
// завершения предыдущего. Первая ошибка прерывает конвейер; уже
// выполненные плагины не откатываются.
package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/flowstate/internal/domain"
)

// Phase — фаза выполнения плагина.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// IsValid проверяет, что фаза известна.
func (p Phase) IsValid() bool {
	return p == PhasePre || p == PhasePost
}

var (
	// ErrPluginFailed — плагин вернул ошибку.
	ErrPluginFailed = errors.New("state plugin failed")

	// ErrDuplicatePlugin — два плагина с одним именем.
	ErrDuplicatePlugin = errors.New("duplicate plugin name")

	// ErrInvalidPlugin — пустое имя или неизвестная фаза.
	ErrInvalidPlugin = errors.New("invalid plugin")
)

// Plugin — расширение, выполняемое до или после перехода.
type Plugin interface {
	// Name возвращает уникальное имя плагина.
	Name() string

	// StateNames возвращает состояния, для которых выполняется плагин.
	// Пустой список — все состояния.
	StateNames() []string

	// Phase возвращает фазу выполнения.
	Phase() Phase

	// Invoke выполняет действие плагина.
	Invoke(ctx context.Context, machineContext map[string]any, info domain.EventInfo) error
}

// Func — плагин из функции.
type Func struct {
	PluginName string
	States     []string
	When       Phase
	Action     func(ctx context.Context, machineContext map[string]any, info domain.EventInfo) error
}

var _ Plugin = (*Func)(nil)

// Name возвращает имя плагина.
func (f *Func) Name() string { return f.PluginName }

// StateNames возвращает фильтр состояний.
func (f *Func) StateNames() []string { return f.States }

// Phase возвращает фазу.
func (f *Func) Phase() Phase { return f.When }

// Invoke вызывает Action.
func (f *Func) Invoke(ctx context.Context, machineContext map[string]any, info domain.EventInfo) error {
	if f.Action == nil {
		return nil
	}
	return f.Action(ctx, machineContext, info)
}

// PluginError — ошибка плагина с указанием имени и фазы.
type PluginError struct {
	Plugin string
	Phase  Phase
	Err    error
}

// Error реализует интерфейс error.
func (e *PluginError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", ErrPluginFailed, e.Plugin, e.Phase, e.Err)
}

// Unwrap возвращает исходную ошибку плагина.
func (e *PluginError) Unwrap() []error {
	return []error{ErrPluginFailed, e.Err}
}
