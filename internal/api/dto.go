package api

import (
	"time"

	"github.com/shaiso/flowstate/internal/domain"
)

// DefinitionResponse — сохранённое описание.
type DefinitionResponse struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// VersionsResponse — версии описания.
type VersionsResponse struct {
	ID       string `json:"id"`
	Versions []int  `json:"versions"`
}

// RecordResponse — сохранённая запись экземпляра.
type RecordResponse struct {
	WorkflowID string         `json:"workflowId"`
	EntityID   string         `json:"entityId"`
	State      string         `json:"state"`
	Context    map[string]any `json:"context"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// RecordFromDomain конвертирует domain.PersistenceRecord в RecordResponse.
// Ключи берутся из запроса: не все хранилища заполняют их в записи.
func RecordFromDomain(workflowID, entityID string, r *domain.PersistenceRecord) RecordResponse {
	return RecordResponse{
		WorkflowID: workflowID,
		EntityID:   entityID,
		State:      r.State,
		Context:    r.Context,
		UpdatedAt:  r.UpdatedAt,
	}
}

// InvokeChildResponse — принятый запуск дочернего workflow.
type InvokeChildResponse struct {
	Name         string `json:"name"`
	DefinitionID string `json:"definitionId"`
	RuntimeID    string `json:"runtimeId"`
	Version      int    `json:"version"`
}
