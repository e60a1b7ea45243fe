package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records inbound channel messages that were already accepted,
// so webhook redeliveries do not produce a second turn.
type ProcessedStore struct {
	pool rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithExec(exec rowQuerier) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{pool: exec}
}

// AlreadyProcessed checks if we've seen this channel message id.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, channel, messageID string) (bool, error) {
	query := `SELECT 1 FROM processed_messages WHERE channel = $1 AND message_id = $2`
	var exists int
	if err := s.pool.QueryRow(ctx, query, channel, messageID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts a message id for the channel, returning false if it already exists.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, channel, messageID string) (bool, error) {
	query := `
		INSERT INTO processed_messages (channel, message_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, channel, messageID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// MemoryProcessedStore is the in-process variant used when no database is configured.
// It is bounded: once max ids are held the oldest half is forgotten.
type MemoryProcessedStore struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	max   int
}

func NewMemoryProcessedStore(max int) *MemoryProcessedStore {
	if max <= 0 {
		max = 10000
	}
	return &MemoryProcessedStore{seen: make(map[string]struct{}), max: max}
}

func (m *MemoryProcessedStore) AlreadyProcessed(_ context.Context, channel, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[channel+":"+messageID]
	return ok, nil
}

func (m *MemoryProcessedStore) MarkProcessed(_ context.Context, channel, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := channel + ":" + messageID
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	if len(m.order) >= m.max {
		drop := m.order[:m.max/2]
		for _, k := range drop {
			delete(m.seen, k)
		}
		m.order = append([]string(nil), m.order[m.max/2:]...)
	}
	m.seen[key] = struct{}{}
	m.order = append(m.order, key)
	return true, nil
}
