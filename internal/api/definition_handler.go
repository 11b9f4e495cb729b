package api

import (
	"io"
	"net/http"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/engine"
	"github.com/shaiso/flowstate/internal/telemetry"
)

// maxBodySize — предел тела запроса.
const maxBodySize = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		BadRequest(w, "invalid request body")
		return nil, false
	}
	return body, true
}

// CreateDefinition валидирует и сохраняет версию описания.
// POST /api/v1/definitions
func (h *Handler) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context(), h.logger)
	if h.definitions == nil {
		Unavailable(w, "definition storage is not configured")
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	spec, err := engine.ParseJSON(body)
	if HandleError(w, logger, err) {
		return
	}

	if HandleError(w, logger, h.definitions.Save(r.Context(), spec)) {
		return
	}

	logger.Info("definition stored", "definition_id", spec.ID, "version", spec.EffectiveVersion())
	Created(w, DefinitionResponse{ID: spec.ID, Version: spec.EffectiveVersion()})
}

// ValidateDefinition компилирует описание и возвращает engine.Report.
// POST /api/v1/definitions/validate
func (h *Handler) ValidateDefinition(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context(), h.logger)

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	def, err := engine.Load(domain.DefinitionTypeStatechartJSON, body)
	if HandleError(w, logger, err) {
		return
	}

	Success(w, engine.Inspect(def))
}

// ListDefinitionVersions возвращает сохранённые версии описания.
// GET /api/v1/definitions/{id}/versions
func (h *Handler) ListDefinitionVersions(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context(), h.logger)
	if h.definitions == nil {
		Unavailable(w, "definition storage is not configured")
		return
	}

	id := r.PathValue("id")
	versions, err := h.definitions.ListVersions(r.Context(), id)
	if HandleError(w, logger, err) {
		return
	}
	if len(versions) == 0 {
		NotFound(w, "definition not found")
		return
	}

	Success(w, VersionsResponse{ID: id, Versions: versions})
}
