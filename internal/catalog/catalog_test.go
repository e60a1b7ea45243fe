package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, DefaultProducts()), mr
}

func TestRedisStoreFallsBackToDefaults(t *testing.T) {
	store, _ := newRedisStore(t)
	cats, err := store.Categories(context.Background(), "fnb")
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) == 0 || cats[0] != "celulares" {
		t.Fatalf("unexpected categories %v", cats)
	}
}

func TestRedisStorePutOverridesSegment(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	custom := []Product{{ID: "m1", Name: "Moto 150", Brand: "Honda", Category: "Motos", Price: 5200}}
	if err := store.Put(ctx, "gaso", custom); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists("catalog:products:gaso") {
		t.Fatalf("expected products key")
	}

	products, err := store.Products(ctx, "gaso", " motos ")
	if err != nil || len(products) != 1 || products[0].ID != "m1" {
		t.Fatalf("unexpected products %v err=%v", products, err)
	}
	if _, err := store.Products(ctx, "gaso", "celulares"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected unknown category for overridden segment, got %v", err)
	}
	if _, err := store.Products(ctx, "fnb", "celulares"); err != nil {
		t.Fatalf("fnb should still use defaults: %v", err)
	}
}

func TestAffordable(t *testing.T) {
	products := []Product{
		{ID: "a", Price: 900},
		{ID: "b", Price: 300},
		{ID: "c", Price: 1500},
		{ID: "d", Price: 500},
	}
	got := Affordable(products, 1000, 2)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "d" {
		t.Fatalf("unexpected affordable list %v", got)
	}
	if all := Affordable(products, 0, 0); len(all) != 4 {
		t.Fatalf("zero credit should not filter, got %d", len(all))
	}
}
