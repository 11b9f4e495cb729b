package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shaiso/flowstate/internal/store"
	"github.com/shaiso/flowstate/internal/telemetry"
)

// ListRecords возвращает записи всех workflow сущности.
// Запись, исчезнувшая между Find и Get, пропускается.
// GET /api/v1/records/{entityId}
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context(), h.logger)
	if h.records == nil {
		Unavailable(w, "record store is not configured")
		return
	}

	entityID := r.PathValue("entityId")
	ids, err := h.records.Find(r.Context(), entityID)
	if HandleError(w, logger, err) {
		return
	}

	result := make([]RecordResponse, 0, len(ids))
	for _, id := range ids {
		rec, err := h.records.Get(r.Context(), id, entityID)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("record vanished while listing", "workflow_id", id, "entity_id", entityID)
			continue
		}
		if err != nil {
			HandleError(w, logger, fmt.Errorf("get %s: %w", id, err))
			return
		}
		result = append(result, RecordFromDomain(id, entityID, rec))
	}

	List(w, result, len(result))
}

// GetRecord возвращает запись экземпляра.
// GET /api/v1/records/{entityId}/{workflowId}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context(), h.logger)
	if h.records == nil {
		Unavailable(w, "record store is not configured")
		return
	}

	entityID := r.PathValue("entityId")
	workflowID := r.PathValue("workflowId")

	rec, err := h.records.Get(r.Context(), workflowID, entityID)
	if HandleError(w, logger, err) {
		return
	}

	Success(w, RecordFromDomain(workflowID, entityID, rec))
}
