package state

import (
	"context"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	key := Key("vs", "web01", "df:/var")

	rev, err := store.Create(ctx, key, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rev == 0 {
		t.Fatalf("expected revision >0")
	}
	if _, err := store.Create(ctx, key, []byte(`{}`)); err != ErrConflict {
		t.Fatalf("expected conflict on second create, got %v", err)
	}

	value, loadedRev, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != `{"a":1}` || loadedRev != rev {
		t.Fatalf("unexpected value %q rev=%d", value, loadedRev)
	}

	rev2, err := store.Update(ctx, key, rev, []byte(`{"a":2}`))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rev2 == rev {
		t.Fatalf("expected revision to change")
	}
	if _, err := store.Update(ctx, key, rev, []byte(`{"a":3}`)); err != ErrConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := store.Get(ctx, key); err != ErrNotFound {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_, _ = store.Put(context.Background(), "k", []byte("abc"))
	value, _, _ := store.Get(context.Background(), "k")
	value[0] = 'x'
	again, _, _ := store.Get(context.Background(), "k")
	if string(again) != "abc" {
		t.Fatalf("stored value was mutated: %q", again)
	}
}

func TestMemoryStoreListKeys(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_, _ = store.Put(context.Background(), Key("vs", "b"), []byte("1"))
	_, _ = store.Put(context.Background(), Key("vs", "a"), []byte("1"))
	_, _ = store.Put(context.Background(), Key("pred", "a"), []byte("1"))

	keys, err := store.ListKeys(context.Background(), "vs.")
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "vs.a" || keys[1] != "vs.b" {
		t.Fatalf("unexpected keys: %#v", keys)
	}
}

func TestKeyEscapesUnsafeBytes(t *testing.T) {
	t.Parallel()

	if got := Key("vs", "web01.example", "df:/var"); got != "vs.web01=2Eexample.df=3A=2Fvar" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := Key("vs", ""); got != "vs.=" {
		t.Fatalf("unexpected empty segment key %q", got)
	}
}
