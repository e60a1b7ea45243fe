package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore keeps each segment's product list as one JSON document.
// Segments without a document fall back to the in-process defaults.
type RedisStore struct {
	client   *redis.Client
	fallback []Product
	tracer   trace.Tracer
}

func NewRedisStore(client *redis.Client, fallback []Product) *RedisStore {
	if client == nil {
		panic("catalog: redis client cannot be nil")
	}
	return &RedisStore{
		client:   client,
		fallback: fallback,
		tracer:   otel.Tracer("creditsales.internal.catalog"),
	}
}

func productsKey(segment string) string {
	return fmt.Sprintf("catalog:products:%s", segment)
}

// Put replaces the product list for segment.
func (s *RedisStore) Put(ctx context.Context, segment string, products []Product) error {
	ctx, span := s.tracer.Start(ctx, "catalog.put")
	defer span.End()

	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("catalog: marshal products: %w", err)
	}
	if err := s.client.Set(ctx, productsKey(segment), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("catalog: save products: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, segment string) ([]Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.load")
	defer span.End()

	data, err := s.client.Get(ctx, productsKey(segment)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.fallback, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("catalog: load products: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("catalog: decode products: %w", err)
	}
	return products, nil
}

func (s *RedisStore) Categories(ctx context.Context, segment string) ([]string, error) {
	products, err := s.load(ctx, segment)
	if err != nil {
		return nil, err
	}
	return categoriesOf(products), nil
}

func (s *RedisStore) Products(ctx context.Context, segment, category string) ([]Product, error) {
	products, err := s.load(ctx, segment)
	if err != nil {
		return nil, err
	}
	return filterCategory(products, category)
}

// MemoryStore is a fixed in-process catalog.
type MemoryStore struct {
	products []Product
}

func NewMemoryStore(products []Product) *MemoryStore {
	return &MemoryStore{products: products}
}

func (m *MemoryStore) Categories(_ context.Context, _ string) ([]string, error) {
	return categoriesOf(m.products), nil
}

func (m *MemoryStore) Products(_ context.Context, _ string, category string) ([]Product, error) {
	return filterCategory(m.products, category)
}

func categoriesOf(products []Product) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range products {
		c := NormalizeCategory(p.Category)
		if _, ok := seen[c]; ok || c == "" {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func filterCategory(products []Product, category string) ([]Product, error) {
	category = NormalizeCategory(category)
	var out []Product
	for _, p := range products {
		if NormalizeCategory(p.Category) == category {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrUnknownCategory
	}
	return out, nil
}
