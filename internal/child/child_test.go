package child

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/engine"
	"github.com/shaiso/flowstate/internal/telemetry"
)

func parentDefinition() *engine.Definition {
	return engine.MustCompile(&domain.StatechartDefinition{
		ID:      "parent_machine",
		Initial: "parent_initial",
		States: map[string]domain.StateDef{
			"parent_initial": {On: map[string]string{"NEXT": "invoke_child"}},
			"invoke_child":   {On: map[string]string{"NEXT": "invoked_child"}},
			"invoked_child":  {Type: domain.StateTypeFinal},
		},
	})
}

func kybConfig(states ...string) domain.ChildWorkflowConfig {
	return domain.ChildWorkflowConfig{
		Name:              "child_machine_name_1",
		DefinitionID:      "child_machine_definition_1",
		RuntimeID:         "child_machine_runtime_1",
		DefinitionVersion: 1,
		StateNames:        states,
		ContextToCopy:     "stakeholders",
		CallbackInfo: &domain.CallbackInfo{
			Event:         "parent_initial",
			ContextToCopy: "endUser.id",
		},
		InitOptions: domain.InitOptions{
			Event:   "NEXT",
			Context: map[string]any{"type": "kyb_child"},
			State:   "child_initial",
		},
	}
}

// captured собирает metadata всех вызовов.
type captured struct {
	calls []domain.ChildWorkflowMetadata
	err   error
}

func (c *captured) InvokeChildWorkflow(_ context.Context, m domain.ChildWorkflowMetadata) error {
	c.calls = append(c.calls, m)
	return c.err
}

func TestEvaluate_InvokesOnTriggerState(t *testing.T) {
	inv := &captured{}
	c := New(Config{Configs: []domain.ChildWorkflowConfig{kybConfig("invoke_child")}, Invoker: inv})
	parent := Parent{DefinitionID: "parent_machine", RuntimeID: "p-1"}

	n, err := c.Evaluate(context.Background(), parent, "invoke_child", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || len(inv.calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d (%d calls)", n, len(inv.calls))
	}

	got := inv.calls[0]
	if got.Name != "child_machine_name_1" ||
		got.DefinitionID != "child_machine_definition_1" ||
		got.RuntimeID != "child_machine_runtime_1" ||
		got.Version != 1 {
		t.Errorf("unexpected metadata: %+v", got)
	}

	wantInit := domain.InitOptions{
		Event:   "NEXT",
		Context: map[string]any{"type": "kyb_child"},
		State:   "child_initial",
	}
	if !reflect.DeepEqual(got.InitOptions, wantInit) {
		t.Errorf("expected initOptions %+v, got %+v", wantInit, got.InitOptions)
	}
	if got.ParentRuntimeID != "p-1" || got.ParentDefinitionID != "parent_machine" {
		t.Errorf("parent ids not set: %+v", got)
	}

	// Не триггерное состояние
	n, err = c.Evaluate(context.Background(), parent, "invoked_child", map[string]any{})
	if err != nil || n != 0 {
		t.Errorf("expected no invocation, got %d, %v", n, err)
	}
	if len(inv.calls) != 1 {
		t.Errorf("expected still 1 call, got %d", len(inv.calls))
	}
}

func TestEvaluate_DeclaredOrderAndStopOnError(t *testing.T) {
	var order []string
	boom := errors.New("boom")

	first := kybConfig("invoke_child")
	first.Name = "first"
	second := kybConfig("invoke_child")
	second.Name = "second"
	third := kybConfig("invoke_child")
	third.Name = "third"

	reg := prometheus.NewRegistry()
	c := New(Config{
		Configs: []domain.ChildWorkflowConfig{first, second, third},
		Metrics: telemetry.NewMetrics(reg),
		Invoker: InvokerFunc(func(_ context.Context, m domain.ChildWorkflowMetadata) error {
			order = append(order, m.Name)
			if m.Name == "second" {
				return boom
			}
			return nil
		}),
	})

	n, err := c.Evaluate(context.Background(), Parent{}, "invoke_child", nil)
	if n != 1 {
		t.Errorf("expected 1 successful invocation, got %d", n)
	}
	if !errors.Is(err, ErrInvocationFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrInvocationFailed wrapping boom, got %v", err)
	}

	var ie *InvocationError
	if !errors.As(err, &ie) || ie.Name != "second" || ie.State != "invoke_child" {
		t.Errorf("unexpected invocation error: %+v", ie)
	}
	if want := []string{"first", "second"}; !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}

	if got, err := testutil.GatherAndCount(reg, "flowstate_child_invocations_total"); err != nil || got != 2 {
		t.Errorf("expected 2 series (ok, error), got %d (%v)", got, err)
	}
}

func TestEvaluate_NoInvoker(t *testing.T) {
	c := New(Config{Configs: []domain.ChildWorkflowConfig{kybConfig("invoke_child")}})
	n, err := c.Evaluate(context.Background(), Parent{}, "invoke_child", nil)
	if n != 0 || err != nil {
		t.Errorf("expected no-op, got %d, %v", n, err)
	}

	var nilCoordinator *Coordinator
	if n, err := nilCoordinator.Evaluate(context.Background(), Parent{}, "x", nil); n != 0 || err != nil {
		t.Errorf("nil coordinator should be a no-op")
	}
}

func TestBuildMetadata_ContextToCopy(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		parent  map[string]any
		wantCtx map[string]any
	}{
		{
			name:    "missing path adds nothing",
			path:    "stakeholders",
			parent:  map[string]any{},
			wantCtx: map[string]any{"type": "kyb_child"},
		},
		{
			name: "map merges with copied keys winning",
			path: "company",
			parent: map[string]any{
				"company": map[string]any{"type": "override", "name": "Acme"},
			},
			wantCtx: map[string]any{"type": "override", "name": "Acme"},
		},
		{
			name:    "scalar stored under last segment",
			path:    "endUser.id",
			parent:  map[string]any{"endUser": map[string]any{"id": "u-1"}},
			wantCtx: map[string]any{"type": "kyb_child", "id": "u-1"},
		},
		{
			name:    "list stored under its name",
			path:    "stakeholders",
			parent:  map[string]any{"stakeholders": []any{"a", "b"}},
			wantCtx: map[string]any{"type": "kyb_child", "stakeholders": []any{"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := kybConfig("invoke_child")
			cfg.ContextToCopy = tt.path

			m := BuildMetadata(&cfg, Parent{}, tt.parent)
			if !reflect.DeepEqual(m.InitOptions.Context, tt.wantCtx) {
				t.Errorf("expected %v, got %v", tt.wantCtx, m.InitOptions.Context)
			}
		})
	}
}

func TestBuildMetadata_DoesNotShareState(t *testing.T) {
	cfg := kybConfig("invoke_child")
	cfg.DefinitionVersion = 0

	m := BuildMetadata(&cfg, Parent{}, nil)
	if m.Version != 1 {
		t.Errorf("expected default version 1, got %d", m.Version)
	}

	m.InitOptions.Context["type"] = "changed"
	m.CallbackInfo.Event = "changed"

	if cfg.InitOptions.Context["type"] != "kyb_child" {
		t.Error("config context was modified through metadata")
	}
	if cfg.CallbackInfo.Event != "parent_initial" {
		t.Error("config callbackInfo was modified through metadata")
	}
}

func TestValidateConfigs(t *testing.T) {
	def := parentDefinition()

	noName := kybConfig("invoke_child")
	noName.Name = ""
	noDef := kybConfig("invoke_child")
	noDef.DefinitionID = ""
	badCallback := kybConfig("invoke_child")
	badCallback.CallbackInfo = &domain.CallbackInfo{}

	tests := []struct {
		name    string
		configs []domain.ChildWorkflowConfig
		wantErr bool
	}{
		{"valid", []domain.ChildWorkflowConfig{kybConfig("invoke_child", "invoked_child")}, false},
		{"empty list", nil, false},
		{"empty name", []domain.ChildWorkflowConfig{noName}, true},
		{"empty definition id", []domain.ChildWorkflowConfig{noDef}, true},
		{"no state names", []domain.ChildWorkflowConfig{kybConfig()}, true},
		{"unknown state", []domain.ChildWorkflowConfig{kybConfig("nowhere")}, true},
		{"duplicate name", []domain.ChildWorkflowConfig{kybConfig("invoke_child"), kybConfig("invoked_child")}, true},
		{"callback without event", []domain.ChildWorkflowConfig{badCallback}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfigs(tt.configs, def)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateConfigs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

type fakeSender struct {
	sent []domain.ChildWorkflowMetadata
}

func (f *fakeSender) PublishChildInvoke(_ context.Context, m domain.ChildWorkflowMetadata) error {
	f.sent = append(f.sent, m)
	return nil
}

func TestPublisher(t *testing.T) {
	sender := &fakeSender{}
	c := New(Config{
		Configs: []domain.ChildWorkflowConfig{kybConfig("invoke_child")},
		Invoker: NewPublisher(sender),
	})

	if _, err := c.Evaluate(context.Background(), Parent{RuntimeID: "p-1"}, "invoke_child", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].ParentRuntimeID != "p-1" {
		t.Errorf("unexpected published metadata: %+v", sender.sent)
	}
}

func TestCallbackEvent(t *testing.T) {
	metadata := domain.ChildWorkflowMetadata{
		CallbackInfo: &domain.CallbackInfo{Event: "parent_initial", ContextToCopy: "endUser.id"},
	}
	snapshot := domain.Snapshot{
		Value:   "child_final",
		Context: map[string]any{"endUser": map[string]any{"id": "u-1"}},
	}

	event, ok := CallbackEvent(metadata, snapshot)
	if !ok {
		t.Fatal("expected callback event")
	}
	if event.Type != "parent_initial" {
		t.Errorf("unexpected type %s", event.Type)
	}
	if !reflect.DeepEqual(event.Payload, map[string]any{"id": "u-1"}) {
		t.Errorf("unexpected payload %v", event.Payload)
	}

	// Путь отсутствует: событие без payload
	event, ok = CallbackEvent(metadata, domain.Snapshot{})
	if !ok || event.Payload != nil {
		t.Errorf("expected event without payload, got %+v", event)
	}

	// Без callbackInfo
	if _, ok := CallbackEvent(domain.ChildWorkflowMetadata{}, snapshot); ok {
		t.Error("expected no callback event")
	}
}
