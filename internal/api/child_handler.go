package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/telemetry"
)

// InvokeChild передаёт запуск дочернего workflow Invoker'у.
// Пустой runtimeId заменяется новым UUID, версия <= 0 — на 1.
// POST /api/v1/children
func (h *Handler) InvokeChild(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context(), h.logger)
	if h.invoker == nil {
		Unavailable(w, "child invoker is not configured")
		return
	}

	var metadata domain.ChildWorkflowMetadata
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&metadata); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if metadata.Name == "" || metadata.DefinitionID == "" {
		BadRequest(w, "name and definitionId are required")
		return
	}
	if metadata.RuntimeID == "" {
		metadata.RuntimeID = uuid.NewString()
	}
	if metadata.Version <= 0 {
		metadata.Version = 1
	}

	if err := h.invoker.InvokeChildWorkflow(r.Context(), metadata); err != nil {
		InternalError(w, logger, err)
		return
	}

	logger.Info("child workflow invoked",
		"name", metadata.Name,
		"definition_id", metadata.DefinitionID,
		"runtime_id", metadata.RuntimeID,
	)
	Accepted(w, InvokeChildResponse{
		Name:         metadata.Name,
		DefinitionID: metadata.DefinitionID,
		RuntimeID:    metadata.RuntimeID,
		Version:      metadata.Version,
	})
}
