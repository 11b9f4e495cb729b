package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/flowstate/internal/child"
	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/mq"
	"github.com/shaiso/flowstate/internal/plugin"
	"github.com/shaiso/flowstate/internal/telemetry"
	"github.com/shaiso/flowstate/internal/workflow"
)

// Result — итог запуска дочернего workflow.
type Result struct {
	// Snapshot — состояние после initOptions.event (или начальное).
	Snapshot domain.Snapshot

	// Outcome — результат initOptions.event; нулевой, если событие не задано.
	Outcome workflow.Outcome

	// Persisted — подключён ли плагин сохранения.
	Persisted bool

	// CallbackSent — опубликовано ли событие родителю.
	CallbackSent bool

	// Tracked — передан ли экземпляр в Tracker. Callback такого
	// экземпляра публикуется при его завершении.
	Tracked bool
}

// handleChildInvoke обрабатывает сообщение из очереди child.invoke.
func (w *Worker) handleChildInvoke(ctx context.Context, delivery *mq.Delivery) error {
	metadata, err := mq.ParsePayload[domain.ChildWorkflowMetadata](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse child.invoke payload", "error", err)
		return err
	}

	w.logger.Debug("received child.invoke",
		"name", metadata.Name,
		"definition_id", metadata.DefinitionID,
		"runtime_id", metadata.RuntimeID,
		"parent_runtime_id", metadata.ParentRuntimeID,
	)

	if _, err := w.RunChild(ctx, metadata); err != nil {
		w.logger.Error("failed to run child workflow",
			"name", metadata.Name,
			"definition_id", metadata.DefinitionID,
			"error", err,
		)
		return err
	}
	return nil
}

// RunChild создаёт и запускает дочерний workflow по metadata.
func (w *Worker) RunChild(ctx context.Context, metadata domain.ChildWorkflowMetadata) (*Result, error) {
	if metadata.DefinitionID == "" {
		return nil, fmt.Errorf("%w: definitionId is empty", ErrInvalidMetadata)
	}

	def, err := w.source.GetDefinition(ctx, metadata.DefinitionID, metadata.Version)
	if err != nil {
		return nil, fmt.Errorf("resolve definition: %w", err)
	}

	machineContext := metadata.InitOptions.Context
	if machineContext == nil {
		machineContext = def.DefaultContext()
	}

	var plugins []plugin.Plugin
	persisted := false
	if w.store != nil {
		if _, err := plugin.EntityID(machineContext, w.entityKey); err == nil {
			plugins = append(plugins, plugin.NewPersistence(plugin.PersistenceConfig{
				Store:     w.store,
				EntityKey: w.entityKey,
				Logger:    w.logger,
			}))
			persisted = true
		} else {
			w.logger.Warn("child context has no entity id, persistence skipped",
				"definition_id", metadata.DefinitionID,
				"entity_key", w.entityKey,
			)
		}
	}
	if w.metrics != nil {
		plugins = append(plugins, plugin.NewMetricsPlugin(w.metrics))
	}

	inst, err := w.client.CreateWorkflow(workflow.Options{
		Compiled:  def,
		RuntimeID: metadata.RuntimeID,
		WorkflowContext: &domain.WorkflowContext{
			MachineContext: machineContext,
			State:          metadata.InitOptions.State,
		},
		Extensions: workflow.Extensions{StatePlugins: plugins},
	})
	if err != nil {
		return nil, fmt.Errorf("create child: %w", err)
	}

	logger := telemetry.WithRuntimeID(telemetry.WithDefinitionID(w.logger, def.ID()), inst.RuntimeID())
	result := &Result{Persisted: persisted}

	if event := metadata.InitOptions.Event; event != "" {
		outcome, err := inst.SendEvent(ctx, domain.Event{Type: event})
		if err != nil {
			return nil, fmt.Errorf("send %s: %w", event, err)
		}
		result.Outcome = outcome
		if outcome.Ignored != nil {
			logger.Warn("init event ignored", "event", event, "state", outcome.From)
		}
	}

	result.Snapshot = inst.Snapshot()

	if inst.Done() {
		sent, err := w.sendCallback(ctx, metadata, inst)
		if err != nil {
			return nil, err
		}
		result.CallbackSent = sent
	} else if w.tracker != nil {
		// callback родителю уйдёт, когда экземпляр завершится позже
		onDone := func(ctx context.Context, inst *workflow.Instance) error {
			sent, err := w.sendCallback(ctx, metadata, inst)
			if sent {
				logger.Info("child workflow finished", "name", metadata.Name, "state", inst.Snapshot().Value)
			}
			return err
		}
		if err := w.tracker.Track(inst, onDone); err != nil {
			return nil, fmt.Errorf("track child: %w", err)
		}
		result.Tracked = true
	}

	logger.Info("child workflow started",
		"name", metadata.Name,
		"state", result.Snapshot.Value,
		"done", inst.Done(),
		"callback", result.CallbackSent,
	)
	return result, nil
}

// sendCallback публикует событие родителю, если задан callbackInfo.
func (w *Worker) sendCallback(ctx context.Context, metadata domain.ChildWorkflowMetadata, inst *workflow.Instance) (bool, error) {
	if w.callbacks == nil {
		return false, nil
	}

	event, ok := child.CallbackEvent(metadata, inst.Snapshot())
	if !ok {
		return false, nil
	}

	err := w.callbacks.PublishChildCallback(ctx, mq.CallbackPayload{
		ParentDefinitionID: metadata.ParentDefinitionID,
		ParentRuntimeID:    metadata.ParentRuntimeID,
		ChildName:          metadata.Name,
		ChildRuntimeID:     inst.RuntimeID(),
		Event:              event,
	})
	if err != nil {
		return false, fmt.Errorf("publish callback: %w", err)
	}
	return true, nil
}
