package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"nutriscan/internal/model"
	"nutriscan/internal/store"
)

func TestProductCacheSaveAndGet(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	c := NewProductCache(kv, "", 0, nil)
	c.Load(ctx)

	p := &model.ProductPayload{
		Code:        "3046920022606",
		ProductName: "Nutella",
		Score:       27,
		Nutriments:  &model.Nutriments{Energy: model.Float64(2252)},
	}
	if err := c.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok := c.Get("3046920022606")
	if !ok {
		t.Fatal("expected cached payload")
	}
	if got.ProductName != "Nutella" || got.Score != 27 {
		t.Fatalf("got %+v", got)
	}

	// reload from storage
	fresh := NewProductCache(kv, "", 0, nil)
	if n := fresh.Load(ctx); n != 1 {
		t.Fatalf("Load = %d, want 1", n)
	}
	got, ok = fresh.Get("3046920022606")
	if !ok || got.Nutriments == nil || *got.Nutriments.Energy != 2252 {
		t.Fatalf("reloaded payload = %+v", got)
	}
}

func TestProductCacheReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	c := NewProductCache(kv, "", 0, nil)
	c.Load(ctx)

	for _, code := range []string{"a", "b", "c"} {
		if err := c.Save(ctx, &model.ProductPayload{Code: code}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := c.Save(ctx, &model.ProductPayload{Code: "a", ProductName: "updated"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := kv.Get(ctx, DefaultProductsKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var stored []model.ProductPayload
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var codes []string
	for _, p := range stored {
		codes = append(codes, p.Code)
	}
	if fmt.Sprint(codes) != "[c b a]" {
		t.Fatalf("order = %v, want [c b a]", codes)
	}
	if stored[2].ProductName != "updated" {
		t.Fatalf("entry not replaced: %+v", stored[2])
	}
}

func TestProductCacheEvictsTail(t *testing.T) {
	ctx := context.Background()
	c := NewProductCache(store.NewMemory(), "", 2, nil)
	c.Load(ctx)

	for _, code := range []string{"a", "b", "c"} {
		if err := c.Save(ctx, &model.ProductPayload{Code: code}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("oldest entry should be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("newest entry missing")
	}
}

func TestProductCacheRejectsEmptyCode(t *testing.T) {
	c := NewProductCache(store.NewMemory(), "", 0, nil)
	if err := c.Save(context.Background(), &model.ProductPayload{}); !errors.Is(err, model.ErrInvalidProduct) {
		t.Fatalf("expected ErrInvalidProduct, got %v", err)
	}
}

func TestProductCacheCorruptBlob(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	_ = kv.Set(ctx, DefaultProductsKey, []byte("not json"))
	c := NewProductCache(kv, "", 0, nil)
	if n := c.Load(ctx); n != 0 {
		t.Fatalf("Load = %d, want 0", n)
	}
}

func TestProductCacheSkipsUnreadableEntries(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	blob := `[{"code":"111","product_name":"kept"},{"code":"222","nutriments":"oops"},{"code":"333"}]`
	_ = kv.Set(ctx, DefaultProductsKey, []byte(blob))

	c := NewProductCache(kv, "", 0, nil)
	if n := c.Load(ctx); n != 2 {
		t.Fatalf("Load = %d, want 2", n)
	}
	if _, ok := c.Get("222"); ok {
		t.Fatal("unreadable entry loaded")
	}
	if p, ok := c.Get("111"); !ok || p.Code != "111" {
		t.Fatalf("Get(111) = %+v, %v", p, ok)
	}
}

func TestProductCacheStorageErrorAndFlush(t *testing.T) {
	ctx := context.Background()
	kv := newFlakyKV()
	c := NewProductCache(kv, "", 0, nil)
	c.Load(ctx)

	kv.setFailing(true)
	err := c.Save(ctx, &model.ProductPayload{Code: "a"})
	var storageErr *model.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("in-memory cache lost the payload")
	}

	kv.setFailing(false)
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	fresh := NewProductCache(kv, "", 0, nil)
	if n := fresh.Load(ctx); n != 1 {
		t.Fatalf("Load after flush = %d, want 1", n)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := kv.Get(ctx, DefaultProductsKey); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected key removed, got %v", err)
	}
}
