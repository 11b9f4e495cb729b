package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/shaiso/flowstate/internal/domain"
)

// Source — откуда берутся скомпилированные описания.
//
// Реализации: Registry (в памяти), repo.DefinitionRepo (PostgreSQL),
// CachedSource (кэш поверх любой другой реализации).
type Source interface {
	GetDefinition(ctx context.Context, id string, version int) (*Definition, error)
}

// Registry — реестр описаний workflow.
//
// Позволяет регистрировать и получать описания по (id, version).
// Потокобезопасен.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
	}
}

// Register регистрирует описание в реестре.
// Если описание с таким id и версией уже существует, оно будет перезаписано.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[definitionKey(def.ID(), def.Version())] = def
}

// LoadDir компилирует и регистрирует все *.json из каталога.
// Возвращает количество загруженных описаний; первая ошибка прерывает загрузку.
func (r *Registry) LoadDir(dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("list definitions: %w", err)
	}
	sort.Strings(files)

	for i, file := range files {
		body, err := os.ReadFile(file)
		if err != nil {
			return i, fmt.Errorf("read %s: %w", file, err)
		}
		def, err := Load(domain.DefinitionTypeStatechartJSON, body)
		if err != nil {
			return i, fmt.Errorf("load %s: %w", filepath.Base(file), err)
		}
		r.Register(def)
	}
	return len(files), nil
}

// GetDefinition возвращает описание по id и версии.
// Возвращает ErrDefinitionNotFound, если описание не найдено.
func (r *Registry) GetDefinition(_ context.Context, id string, version int) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.definitions[definitionKey(id, version)]
	if !exists {
		return nil, fmt.Errorf("%w: %s v%d", ErrDefinitionNotFound, id, version)
	}

	return def, nil
}

// Keys возвращает список ключей всех зарегистрированных описаний.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.definitions))
	for k := range r.definitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count возвращает количество зарегистрированных описаний.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.definitions)
}

// CachedSource — кэш описаний поверх другого Source.
//
// Описания неизменяемы, поэтому кэш только ограничивает время жизни записи,
// чтобы не держать в памяти давно не используемые версии.
type CachedSource struct {
	next  Source
	cache *gocache.Cache
}

// NewCachedSource создаёт кэш с указанным временем жизни записи.
func NewCachedSource(next Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// GetDefinition возвращает описание из кэша или загружает его из next.
func (c *CachedSource) GetDefinition(ctx context.Context, id string, version int) (*Definition, error) {
	key := definitionKey(id, version)
	if v, found := c.cache.Get(key); found {
		return v.(*Definition), nil
	}

	def, err := c.next.GetDefinition(ctx, id, version)
	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(key, def)
	return def, nil
}

// definitionKey формирует ключ "id@version".
func definitionKey(id string, version int) string {
	if version <= 0 {
		version = 1
	}
	return fmt.Sprintf("%s@%d", id, version)
}
