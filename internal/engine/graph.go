package engine

import "sort"

// Node — состояние в графе переходов.
type Node struct {
	// State — имя состояния.
	State string

	// Final — true для терминального состояния.
	Final bool

	// Next — состояния, в которые ведут переходы из этого.
	Next []*Node

	// Prev — состояния, из которых есть переход в это.
	Prev []*Node
}

// Graph — граф переходов описания.
//
// Используется для диагностики: недостижимые состояния и тупики
// (нетерминальные состояния без переходов).
type Graph struct {
	// Nodes — все узлы графа (state → Node).
	Nodes map[string]*Node

	// Root — начальное состояние.
	Root *Node

	// reachable — состояния, достижимые из Root.
	reachable map[string]bool
}

// BuildGraph строит граф переходов скомпилированного описания.
func BuildGraph(def *Definition) *Graph {
	g := &Graph{
		Nodes:     make(map[string]*Node, len(def.transitions)),
		reachable: make(map[string]bool),
	}

	// Первый проход: создаём все узлы
	for _, state := range def.States() {
		g.Nodes[state] = &Node{State: state, Final: def.IsFinal(state)}
	}

	// Второй проход: связываем узлы по переходам
	for _, state := range def.States() {
		from := g.Nodes[state]
		seen := make(map[string]bool)
		for _, event := range def.Events(state) {
			target, _ := def.Lookup(state, event)
			if seen[target] {
				continue
			}
			seen[target] = true
			to := g.Nodes[target]
			from.Next = append(from.Next, to)
			to.Prev = append(to.Prev, from)
		}
	}

	g.Root = g.Nodes[def.Initial()]
	g.walk()

	return g
}

// walk обходит граф в ширину от корня и отмечает достижимые состояния.
func (g *Graph) walk() {
	if g.Root == nil {
		return
	}

	queue := []*Node{g.Root}
	g.reachable[g.Root.State] = true

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, next := range node.Next {
			if g.reachable[next.State] {
				continue
			}
			g.reachable[next.State] = true
			queue = append(queue, next)
		}
	}
}

// IsReachable проверяет, достижимо ли состояние из начального.
func (g *Graph) IsReachable(state string) bool {
	return g.reachable[state]
}

// Unreachable возвращает состояния, недостижимые из начального (отсортированы).
func (g *Graph) Unreachable() []string {
	var states []string
	for name := range g.Nodes {
		if !g.reachable[name] {
			states = append(states, name)
		}
	}
	sort.Strings(states)
	return states
}

// DeadEnds возвращает нетерминальные состояния без исходящих переходов.
// Экземпляр, попавший в такое состояние, больше не меняется, но и не завершён.
func (g *Graph) DeadEnds() []string {
	var states []string
	for name, node := range g.Nodes {
		if !node.Final && len(node.Next) == 0 {
			states = append(states, name)
		}
	}
	sort.Strings(states)
	return states
}

// Size возвращает количество состояний.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// Report — сводка по описанию для диагностики.
type Report struct {
	ID          string        `json:"id"`
	Version     int           `json:"version"`
	Initial     string        `json:"initial"`
	States      []StateReport `json:"states"`
	Unreachable []string      `json:"unreachable"`
	DeadEnds    []string      `json:"deadEnds"`
}

// StateReport — одно состояние в Report.
type StateReport struct {
	Name   string   `json:"name"`
	Final  bool     `json:"final"`
	Events []string `json:"events"`
}

// Inspect строит Report по скомпилированному описанию.
func Inspect(def *Definition) Report {
	graph := BuildGraph(def)

	report := Report{
		ID:          def.ID(),
		Version:     def.Version(),
		Initial:     def.Initial(),
		Unreachable: graph.Unreachable(),
		DeadEnds:    graph.DeadEnds(),
	}
	for _, state := range def.States() {
		report.States = append(report.States, StateReport{
			Name:   state,
			Final:  def.IsFinal(state),
			Events: def.Events(state),
		})
	}
	return report
}
