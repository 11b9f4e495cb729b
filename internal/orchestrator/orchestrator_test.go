package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shaiso/flowstate/internal/child"
	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/engine"
	"github.com/shaiso/flowstate/internal/mq"
	"github.com/shaiso/flowstate/internal/worker"
	"github.com/shaiso/flowstate/internal/workflow"
)

func onboardingSpec() *domain.StatechartDefinition {
	return &domain.StatechartDefinition{
		ID:      "onboarding",
		Initial: "start",
		Context: map[string]any{},
		States: map[string]domain.StateDef{
			"start":       {On: map[string]string{"SUBMIT": "kyb_pending"}},
			"kyb_pending": {On: map[string]string{"KYB_DONE": "verified"}},
			"verified":    {Type: domain.StateTypeFinal},
		},
	}
}

func kybSpec() *domain.StatechartDefinition {
	return &domain.StatechartDefinition{
		ID:      "kyb",
		Initial: "child_initial",
		Context: map[string]any{},
		States: map[string]domain.StateDef{
			"child_initial": {On: map[string]string{"NEXT": "passed"}},
			"passed":        {Type: domain.StateTypeFinal},
		},
	}
}

// recorder собирает callback, опубликованные воркером.
type recorder struct {
	payloads []mq.CallbackPayload
}

func (r *recorder) PublishChildCallback(_ context.Context, p mq.CallbackPayload) error {
	r.payloads = append(r.payloads, p)
	return nil
}

func newParent(t *testing.T, invoker child.Invoker) *workflow.Instance {
	t.Helper()
	inst, err := workflow.NewClient(workflow.ClientOptions{}).CreateWorkflow(workflow.Options{
		Spec:      onboardingSpec(),
		RuntimeID: "parent-1",
		ChildWorkflows: []domain.ChildWorkflowConfig{{
			Name:          "kyb_child",
			DefinitionID:  "kyb",
			RuntimeID:     "kyb-1",
			StateNames:    []string{"kyb_pending"},
			ContextToCopy: "company",
			CallbackInfo:  &domain.CallbackInfo{Event: "KYB_DONE", ContextToCopy: "name"},
			InitOptions:   domain.InitOptions{Event: "NEXT"},
		}},
		OnInvokeChildWorkflow: invoker,
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	return inst
}

func TestRoundTrip_ParentChildCallback(t *testing.T) {
	registry := engine.NewRegistry()
	registry.Register(engine.MustCompile(kybSpec()))

	cb := &recorder{}
	w, err := worker.New(worker.Config{Source: registry, Callbacks: cb})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	var invoked []domain.ChildWorkflowMetadata
	parent := newParent(t, child.InvokerFunc(func(_ context.Context, m domain.ChildWorkflowMetadata) error {
		invoked = append(invoked, m)
		return nil
	}))

	o := New(Config{})
	if err := o.Track(parent, nil); err != nil {
		t.Fatalf("track: %v", err)
	}

	ctx := context.Background()
	if _, err := parent.SendEvent(ctx, domain.Event{
		Type:    "SUBMIT",
		Payload: map[string]any{"company": map[string]any{"name": "Acme"}},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(invoked) != 1 {
		t.Fatalf("expected one child invocation, got %d", len(invoked))
	}

	// Транспорт: child.invoke → worker
	res, err := w.RunChild(ctx, invoked[0])
	if err != nil {
		t.Fatalf("run child: %v", err)
	}
	if res.Snapshot.Value != "passed" || !res.CallbackSent {
		t.Fatalf("unexpected child result %+v", res)
	}

	// Транспорт: child.callback → orchestrator
	outcome, err := o.DeliverCallback(ctx, cb.payloads[0])
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !outcome.Transitioned || outcome.To != "verified" {
		t.Errorf("unexpected outcome %+v", outcome)
	}

	snap := parent.Snapshot()
	if snap.Context["name"] != "Acme" {
		t.Errorf("callback payload not merged: %v", snap.Context)
	}
	if o.Active() != 0 {
		t.Error("finished parent must be untracked")
	}
}

func TestRoundTrip_TrackedChildCallback(t *testing.T) {
	// Дочерний workflow не завершается на initOptions.event
	registry := engine.NewRegistry()
	registry.Register(engine.MustCompile(&domain.StatechartDefinition{
		ID:      "kyb",
		Initial: "child_initial",
		States: map[string]domain.StateDef{
			"child_initial": {On: map[string]string{"NEXT": "review"}},
			"review":        {On: map[string]string{"APPROVE": "approved"}},
			"approved":      {Type: domain.StateTypeFinal},
		},
	}))

	cb := &recorder{}
	o := New(Config{})
	w, err := worker.New(worker.Config{Source: registry, Callbacks: cb, Tracker: o})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	var invoked []domain.ChildWorkflowMetadata
	parent := newParent(t, child.InvokerFunc(func(_ context.Context, m domain.ChildWorkflowMetadata) error {
		invoked = append(invoked, m)
		return nil
	}))
	if err := o.Track(parent, nil); err != nil {
		t.Fatalf("track: %v", err)
	}

	ctx := context.Background()
	if _, err := parent.SendEvent(ctx, domain.Event{
		Type:    "SUBMIT",
		Payload: map[string]any{"company": map[string]any{"name": "Acme"}},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	res, err := w.RunChild(ctx, invoked[0])
	if err != nil {
		t.Fatalf("run child: %v", err)
	}
	if res.Snapshot.Value != "review" || !res.Tracked || len(cb.payloads) != 0 {
		t.Fatalf("unexpected child result %+v", res)
	}
	if o.Active() != 2 {
		t.Fatalf("expected parent and child tracked, got %d", o.Active())
	}

	// Событие для дочернего workflow доводит его до финального состояния
	if _, err := o.DeliverCallback(ctx, mq.CallbackPayload{
		ParentDefinitionID: "kyb",
		ParentRuntimeID:    "kyb-1",
		Event:              domain.Event{Type: "APPROVE"},
	}); err != nil {
		t.Fatalf("approve child: %v", err)
	}
	if len(cb.payloads) != 1 {
		t.Fatalf("expected callback to parent, got %d", len(cb.payloads))
	}
	if p := cb.payloads[0]; p.ParentRuntimeID != "parent-1" || p.Event.Type != "KYB_DONE" {
		t.Errorf("unexpected callback %+v", p)
	}

	outcome, err := o.DeliverCallback(ctx, cb.payloads[0])
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if outcome.To != "verified" || parent.Snapshot().Context["name"] != "Acme" {
		t.Errorf("unexpected parent %+v %v", outcome, parent.Snapshot())
	}
	if o.Active() != 0 {
		t.Errorf("expected nothing tracked, got %d", o.Active())
	}
}

func TestFinish(t *testing.T) {
	o := New(Config{})
	parent := newParent(t, child.InvokerFunc(func(context.Context, domain.ChildWorkflowMetadata) error { return nil }))

	calls := 0
	hookErr := errors.New("broker down")
	_ = o.Track(parent, func(context.Context, *workflow.Instance) error {
		calls++
		return hookErr
	})

	ctx := context.Background()

	// Незавершённый экземпляр остаётся на учёте
	if err := o.Finish(ctx, parent); err != nil || calls != 0 || o.Active() != 1 {
		t.Fatalf("running instance must stay tracked: %v, calls=%d", err, calls)
	}

	_, _ = parent.SendEvent(ctx, domain.Event{Type: "SUBMIT"})
	_, _ = parent.SendEvent(ctx, domain.Event{Type: "KYB_DONE"})

	if err := o.Finish(ctx, parent); !errors.Is(err, hookErr) {
		t.Errorf("expected hook error, got %v", err)
	}
	if err := o.Finish(ctx, parent); err != nil {
		t.Errorf("second finish must be a no-op, got %v", err)
	}
	if calls != 1 || o.Active() != 0 {
		t.Errorf("expected one hook call and no tracked instances, got calls=%d active=%d", calls, o.Active())
	}
}

func TestDeliverCallback_Errors(t *testing.T) {
	parent := newParent(t, child.InvokerFunc(func(context.Context, domain.ChildWorkflowMetadata) error { return nil }))
	o := New(Config{})
	_ = o.Track(parent, nil)

	tests := []struct {
		name    string
		payload mq.CallbackPayload
		wantErr error
	}{
		{
			name:    "unknown parent",
			payload: mq.CallbackPayload{ParentRuntimeID: "nope", Event: domain.Event{Type: "KYB_DONE"}},
			wantErr: ErrParentNotActive,
		},
		{
			name:    "definition mismatch",
			payload: mq.CallbackPayload{ParentRuntimeID: "parent-1", ParentDefinitionID: "other", Event: domain.Event{Type: "KYB_DONE"}},
			wantErr: ErrParentMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.DeliverCallback(context.Background(), tt.payload); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// Событие, неизвестное в текущем состоянии, не меняет родителя
	outcome, err := o.DeliverCallback(context.Background(), mq.CallbackPayload{
		ParentRuntimeID: "parent-1",
		Event:           domain.Event{Type: "KYB_DONE"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Transitioned || !errors.Is(outcome.Ignored, workflow.ErrUnknownTransitionEvent) {
		t.Errorf("expected ignored event, got %+v", outcome)
	}
	if o.Active() != 1 {
		t.Error("parent must stay tracked")
	}
}

func TestTrack(t *testing.T) {
	o := New(Config{})
	parent := newParent(t, child.InvokerFunc(func(context.Context, domain.ChildWorkflowMetadata) error { return nil }))

	if err := o.Track(parent, nil); err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := o.Track(parent, nil); !errors.Is(err, ErrAlreadyTracked) {
		t.Errorf("expected ErrAlreadyTracked, got %v", err)
	}
	if got, ok := o.Lookup("parent-1"); !ok || got != parent {
		t.Error("lookup failed")
	}

	o.Untrack("parent-1")
	if o.Active() != 0 {
		t.Error("expected no active parents")
	}
}

func TestHandleChildCallback_Ack(t *testing.T) {
	o := New(Config{})

	// Неизвестный родитель подтверждается без ошибки
	msg := mq.NewMessage(mq.MessageTypeChildCallback, mq.CallbackPayload{
		ParentRuntimeID: "elsewhere",
		Event:           domain.Event{Type: "DONE"},
	})
	body, _ := json.Marshal(msg)
	var decoded mq.Message
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if err := o.handleChildCallback(context.Background(), &mq.Delivery{Message: decoded}); err != nil {
		t.Errorf("expected ack, got %v", err)
	}
}

func TestStop(t *testing.T) {
	o := New(Config{})
	o.Stop()
	if !o.IsStopped() {
		t.Error("expected stopped")
	}
	if err := o.Start(context.Background()); !errors.Is(err, ErrOrchestratorStopped) {
		t.Errorf("expected ErrOrchestratorStopped, got %v", err)
	}
}
