package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		RequestID(),
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Definitions
	mux.Handle("POST /api/v1/definitions", chain(http.HandlerFunc(h.CreateDefinition)))
	mux.Handle("POST /api/v1/definitions/validate", chain(http.HandlerFunc(h.ValidateDefinition)))
	mux.Handle("GET /api/v1/definitions/{id}/versions", chain(http.HandlerFunc(h.ListDefinitionVersions)))

	// Records
	mux.Handle("GET /api/v1/records/{entityId}", chain(http.HandlerFunc(h.ListRecords)))
	mux.Handle("GET /api/v1/records/{entityId}/{workflowId}", chain(http.HandlerFunc(h.GetRecord)))

	// Children
	mux.Handle("POST /api/v1/children", chain(http.HandlerFunc(h.InvokeChild)))
}
