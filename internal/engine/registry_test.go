package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/flowstate/internal/domain"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	v1 := MustCompile(toggleSpec())
	spec2 := toggleSpec()
	spec2.Version = 2
	v2 := MustCompile(spec2)

	r.Register(v1)
	r.Register(v2)

	if r.Count() != 2 {
		t.Fatalf("expected 2 definitions, got %d", r.Count())
	}

	got, err := r.GetDefinition(context.Background(), "toggle", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != v2 {
		t.Error("expected version 2")
	}

	// Версия 0 трактуется как 1
	got, err = r.GetDefinition(context.Background(), "toggle", 0)
	if err != nil || got != v1 {
		t.Errorf("expected version 1 for version 0, got %v (%v)", got, err)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.GetDefinition(context.Background(), "missing", 1)
	if !errors.Is(err, ErrDefinitionNotFound) {
		t.Errorf("expected ErrDefinitionNotFound, got %v", err)
	}
}

// countingSource считает обращения к нижележащему источнику.
type countingSource struct {
	calls int
	def   *Definition
}

func (s *countingSource) GetDefinition(_ context.Context, id string, version int) (*Definition, error) {
	s.calls++
	if id != s.def.ID() {
		return nil, ErrDefinitionNotFound
	}
	return s.def, nil
}

func TestCachedSource(t *testing.T) {
	src := &countingSource{def: MustCompile(&domain.StatechartDefinition{
		ID:      "child_machine",
		Initial: "child_initial",
		States: map[string]domain.StateDef{
			"child_initial": {On: map[string]string{"NEXT": "child_final"}},
			"child_final":   {Type: "final"},
		},
	})}
	cached := NewCachedSource(src, time.Minute)

	for i := 0; i < 3; i++ {
		def, err := cached.GetDefinition(context.Background(), "child_machine", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if def.ID() != "child_machine" {
			t.Errorf("unexpected definition %s", def.ID())
		}
	}
	if src.calls != 1 {
		t.Errorf("expected 1 call to source, got %d", src.calls)
	}

	// Ошибки не кэшируются
	for i := 0; i < 2; i++ {
		if _, err := cached.GetDefinition(context.Background(), "missing", 1); err == nil {
			t.Error("expected error")
		}
	}
	if src.calls != 3 {
		t.Errorf("expected 3 calls to source, got %d", src.calls)
	}
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"toggle.json": `{"id":"toggle","initial":"inactive","states":{"inactive":{"on":{"TOGGLE":"active"}},"active":{"on":{"TOGGLE":"inactive"}}}}`,
		"door.json":   `{"id":"door","version":2,"initial":"closed","states":{"closed":{"on":{"OPEN":"open"}},"open":{"type":"final"}}}`,
		"notes.txt":   "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	r := NewRegistry()
	n, err := r.LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if n != 2 || r.Count() != 2 {
		t.Fatalf("expected 2 definitions, got %d/%d", n, r.Count())
	}
	if _, err := r.GetDefinition(context.Background(), "door", 2); err != nil {
		t.Errorf("door v2 not registered: %v", err)
	}

	bad := filepath.Join(dir, "zz_bad.json")
	if err := os.WriteFile(bad, []byte(`{"id":"bad","initial":"x","states":{}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewRegistry().LoadDir(dir); err == nil {
		t.Error("expected error for invalid definition")
	}
}
