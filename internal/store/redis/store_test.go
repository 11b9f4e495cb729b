package redis

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/shaiso/flowstate/internal/domain"
	"github.com/shaiso/flowstate/internal/store"
)

// newStore поднимает Redis в процессе теста.
func newStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, opts...), mr
}

func TestEntityKey(t *testing.T) {
	if got := entityKey("e-1"); got != "flowstate:entity:e-1" {
		t.Errorf("unexpected entity key %s", got)
	}
}

func TestPut_EmptyKeyRejectedBeforeRedis(t *testing.T) {
	// client == nil: Put должен вернуть ошибку до обращения к Redis
	s := New(nil)

	err := s.Put(context.Background(), "", "e", &domain.PersistenceRecord{})
	if !errors.Is(err, store.ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}

func TestPutGet(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	err := s.Put(ctx, "wf-1", "e-1", &domain.PersistenceRecord{
		State:   "active",
		Context: map[string]any{"entityId": "e-1", "n": 1},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	rec, err := s.Get(ctx, "wf-1", "e-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.WorkflowID != "wf-1" || rec.EntityID != "e-1" || rec.State != "active" {
		t.Errorf("unexpected record %+v", rec)
	}
	// JSON возвращает числа как float64
	if rec.Context["n"] != float64(1) || rec.UpdatedAt.IsZero() {
		t.Errorf("unexpected context or timestamp %+v", rec)
	}

	if _, err := s.Get(ctx, "wf-2", "e-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown workflow, got %v", err)
	}
	if _, err := s.Get(ctx, "wf-1", "e-2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown entity, got %v", err)
	}
}

func TestPut_LastWriteWins(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "wf-1", "e-1", &domain.PersistenceRecord{State: "inactive"})
	if err := s.Put(ctx, "wf-1", "e-1", &domain.PersistenceRecord{State: "active"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	rec, err := s.Get(ctx, "wf-1", "e-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != "active" {
		t.Errorf("expected last write to win, got %s", rec.State)
	}

	ids, _ := s.Find(ctx, "e-1")
	if len(ids) != 1 {
		t.Errorf("overwrite should not duplicate the index, got %v", ids)
	}
}

func TestFind(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	for _, wf := range []string{"wf-c", "wf-a", "wf-b"} {
		if err := s.Put(ctx, wf, "e-1", &domain.PersistenceRecord{State: "s"}); err != nil {
			t.Fatalf("put %s: %v", wf, err)
		}
	}
	_ = s.Put(ctx, "wf-x", "e-2", &domain.PersistenceRecord{State: "s"})

	ids, err := s.Find(ctx, "e-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := []string{"wf-a", "wf-b", "wf-c"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("expected %v, got %v", want, ids)
	}

	ids, err = s.Find(ctx, "unknown")
	if err != nil || len(ids) != 0 {
		t.Errorf("expected empty result, got %v (%v)", ids, err)
	}
}

func TestPut_IdsWithSeparator(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "c", "a:b", &domain.PersistenceRecord{State: "first"})
	_ = s.Put(ctx, "b:c", "a", &domain.PersistenceRecord{State: "second"})

	first, err := s.Get(ctx, "c", "a:b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := s.Get(ctx, "b:c", "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.State != "first" || second.State != "second" {
		t.Errorf("records overwrote each other: %s, %s", first.State, second.State)
	}
}

func TestPut_TTL(t *testing.T) {
	s, mr := newStore(t, WithTTL(time.Minute))
	ctx := context.Background()

	_ = s.Put(ctx, "wf-1", "e-1", &domain.PersistenceRecord{State: "a"})
	mr.FastForward(40 * time.Second)

	// Put продлевает срок жизни всех записей сущности
	_ = s.Put(ctx, "wf-2", "e-1", &domain.PersistenceRecord{State: "b"})
	mr.FastForward(40 * time.Second)

	if ids, _ := s.Find(ctx, "e-1"); len(ids) != 2 {
		t.Fatalf("expected both records alive, got %v", ids)
	}

	mr.FastForward(time.Minute)

	ids, err := s.Find(ctx, "e-1")
	if err != nil || len(ids) != 0 {
		t.Errorf("index should expire with records, got %v (%v)", ids, err)
	}
	if _, err := s.Get(ctx, "wf-1", "e-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
}
