package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/engine"
	"github.com/shaiso/flowstate/internal/mq"
	"github.com/shaiso/flowstate/internal/store/memory"
	"github.com/shaiso/flowstate/internal/telemetry"
	"github.com/shaiso/flowstate/internal/workflow"
)

// fakeCallbacks записывает опубликованные callback.
type fakeCallbacks struct {
	payloads []mq.CallbackPayload
	err      error
}

func (f *fakeCallbacks) PublishChildCallback(_ context.Context, payload mq.CallbackPayload) error {
	f.payloads = append(f.payloads, payload)
	return f.err
}

func kybSpec() *domain.StatechartDefinition {
	return &domain.StatechartDefinition{
		ID:      "kyb",
		Initial: "child_initial",
		Context: map[string]any{"type": "default"},
		States: map[string]domain.StateDef{
			"child_initial": {On: map[string]string{"NEXT": "review"}},
			"review":        {On: map[string]string{"APPROVE": "approved"}},
			"approved":      {Type: domain.StateTypeFinal},
		},
	}
}

func newRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	r := engine.NewRegistry()
	r.Register(engine.MustCompile(kybSpec()))
	return r
}

func metadata() domain.ChildWorkflowMetadata {
	return domain.ChildWorkflowMetadata{
		Name:               "kyb_child",
		DefinitionID:       "kyb",
		RuntimeID:          "kyb-runtime-1",
		Version:            1,
		ParentDefinitionID: "onboarding",
		ParentRuntimeID:    "parent-1",
		InitOptions: domain.InitOptions{
			Event:   "NEXT",
			Context: map[string]any{"type": "kyb_child", "entityId": "e-1"},
			State:   "child_initial",
		},
		CallbackInfo: &domain.CallbackInfo{Event: "KYB_DONE", ContextToCopy: "type"},
	}
}

func TestNew_RequiresSource(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrMissingSource) {
		t.Errorf("expected ErrMissingSource, got %v", err)
	}
}

func TestRunChild_StartsAndPersists(t *testing.T) {
	st := memory.New()
	w, err := New(Config{Source: newRegistry(t), Store: st})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := w.RunChild(context.Background(), metadata())
	if err != nil {
		t.Fatalf("run child: %v", err)
	}

	if res.Snapshot.Value != "review" {
		t.Errorf("expected review, got %s", res.Snapshot.Value)
	}
	if res.Snapshot.Context["type"] != "kyb_child" {
		t.Errorf("init context not applied: %v", res.Snapshot.Context)
	}
	if !res.Outcome.Transitioned || res.Outcome.From != "child_initial" {
		t.Errorf("unexpected outcome %+v", res.Outcome)
	}
	if !res.Persisted {
		t.Fatal("expected persistence plugin")
	}
	// Не финальное состояние — callback не отправляется
	if res.CallbackSent {
		t.Error("callback sent before final state")
	}

	rec, err := st.Get(context.Background(), "kyb-runtime-1", "e-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.State != "review" {
		t.Errorf("expected persisted review, got %s", rec.State)
	}
}

func TestRunChild_RestoredState(t *testing.T) {
	w, _ := New(Config{Source: newRegistry(t)})

	md := metadata()
	md.InitOptions.State = "review"
	md.InitOptions.Event = "APPROVE"

	cb := &fakeCallbacks{}
	w.callbacks = cb

	res, err := w.RunChild(context.Background(), md)
	if err != nil {
		t.Fatalf("run child: %v", err)
	}
	if res.Snapshot.Value != "approved" {
		t.Fatalf("expected approved, got %s", res.Snapshot.Value)
	}
	if res.Persisted {
		t.Error("no store configured, persistence must be off")
	}
	if !res.CallbackSent || len(cb.payloads) != 1 {
		t.Fatalf("expected one callback, got %d", len(cb.payloads))
	}

	got := cb.payloads[0]
	if got.ParentRuntimeID != "parent-1" || got.ChildName != "kyb_child" || got.ChildRuntimeID != "kyb-runtime-1" {
		t.Errorf("unexpected callback %+v", got)
	}
	if got.Event.Type != "KYB_DONE" || got.Event.Payload["type"] != "kyb_child" {
		t.Errorf("unexpected callback event %+v", got.Event)
	}
}

func TestRunChild_NoEvent(t *testing.T) {
	w, _ := New(Config{Source: newRegistry(t)})

	md := metadata()
	md.InitOptions = domain.InitOptions{}

	res, err := w.RunChild(context.Background(), md)
	if err != nil {
		t.Fatalf("run child: %v", err)
	}
	if res.Snapshot.Value != "child_initial" {
		t.Errorf("expected initial state, got %s", res.Snapshot.Value)
	}
	// Контекст по умолчанию из описания
	if res.Snapshot.Context["type"] != "default" {
		t.Errorf("expected default context, got %v", res.Snapshot.Context)
	}
}

func TestRunChild_SkipsPersistenceWithoutEntity(t *testing.T) {
	st := memory.New()
	w, _ := New(Config{Source: newRegistry(t), Store: st})

	md := metadata()
	md.InitOptions.Context = map[string]any{"type": "kyb_child"}

	res, err := w.RunChild(context.Background(), md)
	if err != nil {
		t.Fatalf("run child: %v", err)
	}
	if res.Persisted {
		t.Error("persistence must be skipped without entity id")
	}
}

func TestRunChild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.ChildWorkflowMetadata)
		wantErr error
	}{
		{
			name:    "empty definition id",
			mutate:  func(m *domain.ChildWorkflowMetadata) { m.DefinitionID = "" },
			wantErr: ErrInvalidMetadata,
		},
		{
			name:    "unknown definition",
			mutate:  func(m *domain.ChildWorkflowMetadata) { m.DefinitionID = "missing" },
			wantErr: engine.ErrDefinitionNotFound,
		},
		{
			name:    "unknown version",
			mutate:  func(m *domain.ChildWorkflowMetadata) { m.Version = 7 },
			wantErr: engine.ErrDefinitionNotFound,
		},
	}

	w, _ := New(Config{Source: newRegistry(t)})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := metadata()
			tt.mutate(&md)
			if _, err := w.RunChild(context.Background(), md); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	md := metadata()
	md.InitOptions.State = "nowhere"
	if _, err := w.RunChild(context.Background(), md); err == nil {
		t.Error("expected error for unknown init state")
	}
}

func TestRunChild_CallbackError(t *testing.T) {
	w, _ := New(Config{
		Source:    newRegistry(t),
		Callbacks: &fakeCallbacks{err: errors.New("channel closed")},
	})

	md := metadata()
	md.InitOptions.State = "review"
	md.InitOptions.Event = "APPROVE"

	if _, err := w.RunChild(context.Background(), md); err == nil {
		t.Error("expected callback publish error")
	}
}

func TestHandleChildInvoke(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	w, _ := New(Config{Source: newRegistry(t), Metrics: metrics})

	msg := mq.NewMessage(mq.MessageTypeChildInvoke, metadata())
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded mq.Message
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if err := w.handleChildInvoke(context.Background(), &mq.Delivery{Message: decoded}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if n, err := testutil.GatherAndCount(reg, "flowstate_states_entered_total"); err != nil || n != 1 {
		t.Errorf("expected one entered-state series, got %d (%v)", n, err)
	}

	bad := mq.NewMessage(mq.MessageTypeChildInvoke, map[string]any{"name": "x"})
	body, _ = json.Marshal(bad)
	_ = json.Unmarshal(body, &decoded)
	if err := w.handleChildInvoke(context.Background(), &mq.Delivery{Message: decoded}); !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("expected ErrInvalidMetadata, got %v", err)
	}
}

func TestStop(t *testing.T) {
	w, _ := New(Config{Source: newRegistry(t)})
	w.Stop()

	if !w.IsStopped() {
		t.Error("expected stopped")
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("expected ErrWorkerStopped, got %v", err)
	}
}

// fakeTracker записывает зарегистрированные экземпляры.
type fakeTracker struct {
	instances []*workflow.Instance
	hooks     []func(context.Context, *workflow.Instance) error
	err       error
}

func (f *fakeTracker) Track(inst *workflow.Instance, onDone func(context.Context, *workflow.Instance) error) error {
	f.instances = append(f.instances, inst)
	f.hooks = append(f.hooks, onDone)
	return f.err
}

func TestRunChild_TracksUnfinished(t *testing.T) {
	tracker := &fakeTracker{}
	w, err := New(Config{Source: newRegistry(t), Tracker: tracker})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := w.RunChild(context.Background(), metadata())
	if err != nil {
		t.Fatalf("run child: %v", err)
	}
	if !res.Tracked || len(tracker.instances) != 1 {
		t.Fatalf("expected child to be tracked, got %+v", res)
	}
	if got := tracker.instances[0].RuntimeID(); got != "kyb-runtime-1" {
		t.Errorf("unexpected runtime id %s", got)
	}

	// Завершённый дочерний workflow не регистрируется
	md := metadata()
	md.InitOptions.State = "review"
	md.InitOptions.Event = "APPROVE"
	res, err = w.RunChild(context.Background(), md)
	if err != nil {
		t.Fatalf("run child: %v", err)
	}
	if res.Tracked || len(tracker.instances) != 1 {
		t.Errorf("finished child should not be tracked")
	}

	tracker.err = errors.New("already tracked")
	if _, err := w.RunChild(context.Background(), metadata()); err == nil {
		t.Error("expected tracker error")
	}
}

func TestRunChild_CallbackAfterTrackedChildFinishes(t *testing.T) {
	tracker := &fakeTracker{}
	cb := &fakeCallbacks{}
	w, err := New(Config{Source: newRegistry(t), Tracker: tracker, Callbacks: cb})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := w.RunChild(context.Background(), metadata())
	if err != nil {
		t.Fatalf("run child: %v", err)
	}
	if !res.Tracked || res.CallbackSent || len(cb.payloads) != 0 {
		t.Fatalf("running child must be tracked without callback, got %+v", res)
	}

	inst := tracker.instances[0]
	if _, err := inst.SendEvent(context.Background(), domain.Event{Type: "APPROVE"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := tracker.hooks[0](context.Background(), inst); err != nil {
		t.Fatalf("on done: %v", err)
	}

	if len(cb.payloads) != 1 {
		t.Fatalf("expected callback after finish, got %d", len(cb.payloads))
	}
	p := cb.payloads[0]
	if p.ParentRuntimeID != "parent-1" || p.ChildRuntimeID != "kyb-runtime-1" || p.Event.Type != "KYB_DONE" {
		t.Errorf("unexpected callback %+v", p)
	}
	if p.Event.Payload["type"] != "kyb_child" {
		t.Errorf("expected copied context, got %v", p.Event.Payload)
	}
}
