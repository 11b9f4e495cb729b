package plugin

import (
	"context"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/telemetry"
)

// MetricsPlugin считает входы в состояния.
type MetricsPlugin struct {
	metrics *telemetry.Metrics
	states  []string
}

var _ Plugin = (*MetricsPlugin)(nil)

// NewMetricsPlugin создаёт post-плагин метрик. states — фильтр (пусто — все).
func NewMetricsPlugin(m *telemetry.Metrics, states ...string) *MetricsPlugin {
	return &MetricsPlugin{metrics: m, states: states}
}

func (p *MetricsPlugin) Name() string         { return "metrics" }
func (p *MetricsPlugin) StateNames() []string { return p.states }
func (p *MetricsPlugin) Phase() Phase         { return PhasePost }

// Invoke увеличивает счётчик flowstate_states_entered_total.
func (p *MetricsPlugin) Invoke(_ context.Context, _ map[string]any, info domain.EventInfo) error {
	p.metrics.StateEntered(info.DefinitionID, info.To)
	return nil
}
