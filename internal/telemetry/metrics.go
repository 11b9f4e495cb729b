package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — счётчики движка workflow.
//
// Все методы безопасны для nil-получателя, поэтому компоненты
// могут работать без метрик (тесты, CLI).
type Metrics struct {
	transitions      *prometheus.CounterVec
	ignoredEvents    *prometheus.CounterVec
	pluginFailures   *prometheus.CounterVec
	childInvocations *prometheus.CounterVec
	statesEntered    *prometheus.CounterVec
}

// NewMetrics регистрирует счётчики в reg.
// Если reg == nil, используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_transitions_total",
			Help: "Committed workflow transitions",
		}, []string{"workflow", "from", "to"}),

		ignoredEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_events_ignored_total",
			Help: "Events with no transition from the current state",
		}, []string{"workflow", "event"}),

		pluginFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_plugin_failures_total",
			Help: "State plugin invocations that returned an error",
		}, []string{"plugin", "phase"}),

		childInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_child_invocations_total",
			Help: "Child workflow invocations by result",
		}, []string{"child", "status"}),

		statesEntered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_states_entered_total",
			Help: "Workflow states entered after a committed transition",
		}, []string{"workflow", "state"}),
	}
}

// Transition учитывает зафиксированный переход.
func (m *Metrics) Transition(workflow, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(workflow, from, to).Inc()
}

// IgnoredEvent учитывает событие без перехода.
func (m *Metrics) IgnoredEvent(workflow, event string) {
	if m == nil {
		return
	}
	m.ignoredEvents.WithLabelValues(workflow, event).Inc()
}

// PluginFailure учитывает ошибку плагина.
func (m *Metrics) PluginFailure(plugin, phase string) {
	if m == nil {
		return
	}
	m.pluginFailures.WithLabelValues(plugin, phase).Inc()
}

// ChildInvocation учитывает вызов дочернего workflow.
// status: "ok" или "error".
func (m *Metrics) ChildInvocation(child string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.childInvocations.WithLabelValues(child, status).Inc()
}

// StateEntered учитывает вход в состояние.
func (m *Metrics) StateEntered(workflow, state string) {
	if m == nil {
		return
	}
	m.statesEntered.WithLabelValues(workflow, state).Inc()
}
