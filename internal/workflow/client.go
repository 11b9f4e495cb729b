package workflow

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/flowstate/internal/child"
	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/engine"
	"github.com/shaiso/flowstate/internal/plugin"
	"github.com/shaiso/flowstate/internal/telemetry"
)

// ClientOptions — общие параметры фабрики экземпляров.
type ClientOptions struct {
	// OnInvokeChildWorkflow — Invoker по умолчанию для дочерних workflow.
	OnInvokeChildWorkflow child.Invoker

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Extensions — расширения экземпляра.
type Extensions struct {
	// StatePlugins — плагины в порядке выполнения.
	StatePlugins []plugin.Plugin
}

// Options — параметры создания экземпляра.
//
// Описание задаётся одним из полей: Compiled, Spec или Definition
// (в порядке приоритета).
type Options struct {
	// DefinitionType — формат Definition. Пусто — "statechart-json".
	DefinitionType string

	// Definition — тело описания в формате DefinitionType.
	Definition []byte

	// Spec — уже разобранное описание.
	Spec *domain.StatechartDefinition

	// Compiled — скомпилированное описание (например, из engine.Registry).
	Compiled *engine.Definition

	// WorkflowContext — сохранённая пара {state, context} для восстановления.
	WorkflowContext *domain.WorkflowContext

	// ChildWorkflows — дочерние workflow.
	ChildWorkflows []domain.ChildWorkflowConfig

	// OnInvokeChildWorkflow переопределяет Invoker фабрики.
	OnInvokeChildWorkflow child.Invoker

	Extensions Extensions

	// RuntimeID — идентификатор экземпляра. Пусто — новый UUID.
	RuntimeID string
}

// Client создаёт экземпляры workflow.
//
// Кроме параметров по умолчанию состояния не хранит; экземпляры независимы.
type Client struct {
	invoker child.Invoker
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewClient создаёт Client.
func NewClient(opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		invoker: opts.OnInvokeChildWorkflow,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// CreateWorkflow создаёт экземпляр: новый или восстановленный из WorkflowContext.
func (c *Client) CreateWorkflow(opts Options) (*Instance, error) {
	def, err := resolveDefinition(opts)
	if err != nil {
		return nil, err
	}

	state, machineContext, err := initialState(def, opts.WorkflowContext)
	if err != nil {
		return nil, err
	}

	invoker := opts.OnInvokeChildWorkflow
	if invoker == nil {
		invoker = c.invoker
	}
	if len(opts.ChildWorkflows) > 0 {
		if invoker == nil {
			return nil, ErrMissingChildInvoker
		}
		if err := child.ValidateConfigs(opts.ChildWorkflows, def); err != nil {
			return nil, err
		}
	}

	runtimeID := opts.RuntimeID
	if runtimeID == "" {
		runtimeID = uuid.NewString()
	}

	logger := telemetry.WithRuntimeID(telemetry.WithDefinitionID(c.logger, def.ID()), runtimeID)

	pipeline, err := plugin.NewPipeline(opts.Extensions.StatePlugins,
		plugin.WithLogger(logger),
		plugin.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		def:       def,
		runtimeID: runtimeID,
		pipeline:  pipeline,
		children: child.New(child.Config{
			Configs: opts.ChildWorkflows,
			Invoker: invoker,
			Logger:  logger,
			Metrics: c.metrics,
		}),
		logger:         logger,
		metrics:        c.metrics,
		state:          state,
		machineContext: machineContext,
	}

	logger.Debug("workflow created",
		"state", state,
		"restored", opts.WorkflowContext != nil,
		"plugins", pipeline.Len(),
		"child_workflows", len(opts.ChildWorkflows),
	)

	return inst, nil
}

// resolveDefinition возвращает скомпилированное описание из Options.
func resolveDefinition(opts Options) (*engine.Definition, error) {
	switch {
	case opts.Compiled != nil:
		return opts.Compiled, nil
	case opts.Spec != nil:
		return engine.Compile(opts.Spec)
	case len(opts.Definition) > 0:
		kind := opts.DefinitionType
		if kind == "" {
			kind = domain.DefinitionTypeStatechartJSON
		}
		return engine.Load(kind, opts.Definition)
	default:
		return nil, ErrMissingDefinition
	}
}

// initialState возвращает начальную пару {state, context}.
// Пустое состояние — Initial описания, nil-контекст — контекст по умолчанию.
func initialState(def *engine.Definition, wc *domain.WorkflowContext) (string, map[string]any, error) {
	state := def.Initial()
	machineContext := def.DefaultContext()

	if wc == nil {
		return state, ensureContext(machineContext), nil
	}

	if wc.State != "" {
		if !def.HasState(wc.State) {
			return "", nil, fmt.Errorf("%w: %s in %s", ErrUnknownState, wc.State, def.ID())
		}
		state = wc.State
	}
	if wc.MachineContext != nil {
		machineContext = domain.CloneContext(wc.MachineContext)
	}

	return state, ensureContext(machineContext), nil
}

func ensureContext(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
