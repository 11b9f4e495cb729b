package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/flowstate/internal/mq"
	"github.com/shaiso/flowstate/internal/workflow"
)

// handleChildCallback обрабатывает сообщение из очереди child.callback.
func (o *Orchestrator) handleChildCallback(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.CallbackPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse child.callback payload", "error", err)
		return err
	}

	o.logger.Debug("received child.callback",
		"parent_runtime_id", payload.ParentRuntimeID,
		"child", payload.ChildName,
		"event", payload.Event.Type,
	)

	if _, err := o.DeliverCallback(ctx, payload); err != nil {
		// Родитель в другом процессе, уже завершён или не тот — ack
		if errors.Is(err, ErrParentNotActive) ||
			errors.Is(err, ErrParentMismatch) ||
			errors.Is(err, workflow.ErrInvalidState) {
			o.logger.Warn("callback dropped",
				"parent_runtime_id", payload.ParentRuntimeID,
				"child", payload.ChildName,
				"reason", err,
			)
			return nil
		}
		o.logger.Error("failed to deliver callback",
			"parent_runtime_id", payload.ParentRuntimeID,
			"child", payload.ChildName,
			"error", err,
		)
		return err
	}
	return nil
}

// DeliverCallback отправляет событие дочернего workflow родителю.
// Родитель, дошедший до финального состояния, завершается через Finish.
func (o *Orchestrator) DeliverCallback(ctx context.Context, payload mq.CallbackPayload) (workflow.Outcome, error) {
	parent, ok := o.Lookup(payload.ParentRuntimeID)
	if !ok {
		return workflow.Outcome{}, fmt.Errorf("%w: %s", ErrParentNotActive, payload.ParentRuntimeID)
	}
	if payload.ParentDefinitionID != "" && payload.ParentDefinitionID != parent.DefinitionID() {
		return workflow.Outcome{}, fmt.Errorf("%w: %s is %s, callback for %s",
			ErrParentMismatch, payload.ParentRuntimeID, parent.DefinitionID(), payload.ParentDefinitionID)
	}

	outcome, err := parent.SendEvent(ctx, payload.Event)
	if ferr := o.Finish(ctx, parent); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		return outcome, err
	}

	o.logger.Info("callback delivered",
		"parent_runtime_id", parent.RuntimeID(),
		"child", payload.ChildName,
		"event", payload.Event.Type,
		"state", outcome.To,
		"transitioned", outcome.Transitioned,
	)
	return outcome, nil
}
