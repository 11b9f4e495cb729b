package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/flowstate/internal/child"
	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/store"
)

// DefinitionStore — хранилище версий описаний. Реализуется repo.DefinitionRepo.
type DefinitionStore interface {
	Save(ctx context.Context, spec *domain.StatechartDefinition) error
	ListVersions(ctx context.Context, id string) ([]int, error)
}

// Handler — главный обработчик API с зависимостями.
//
// Любая зависимость может быть nil: соответствующие маршруты отвечают 503.
type Handler struct {
	definitions DefinitionStore
	records     store.Store
	invoker     child.Invoker
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Definitions DefinitionStore
	Records     store.Store
	Invoker     child.Invoker
	Logger      *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		definitions: cfg.Definitions,
		records:     cfg.Records,
		invoker:     cfg.Invoker,
		logger:      logger,
	}
}
