package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const (
	defaultBatchSize   = 25
	defaultPollEvery   = 2 * time.Second
	defaultLease       = 30 * time.Second
	defaultMaxAttempts = 8
)

// OutboxEntry is a claimed, undelivered event.
type OutboxEntry struct {
	ID          uuid.UUID
	CustomerKey string
	Type        string
	Severity    string
	Payload     json.RawMessage
	Attempts    int
	CreatedAt   time.Time
}

// DeliveryHandler pushes one event to its downstream transport.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type DeliveryHandlerFunc func(ctx context.Context, entry OutboxEntry) error

func (f DeliveryHandlerFunc) Handle(ctx context.Context, entry OutboxEntry) error {
	return f(ctx, entry)
}

type outboxExec interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore is the Postgres event_outbox table. Rows are claimed under a
// lease so the API and worker processes can both run a Deliverer.
type OutboxStore struct {
	db outboxExec
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithExec(exec outboxExec) *OutboxStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &OutboxStore{db: exec}
}

func (s *OutboxStore) Insert(ctx context.Context, customerKey string, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	const q = `INSERT INTO event_outbox (id, customer_key, type, severity, payload) VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.Exec(ctx, q, id, customerKey, eventType, SeverityFor(eventType), data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

// Claim leases up to limit pending rows that are below maxAttempts and not
// leased by another process. Critical rows come first.
func (s *OutboxStore) Claim(ctx context.Context, limit int32, lease time.Duration, maxAttempts int) ([]OutboxEntry, error) {
	const q = `
		UPDATE event_outbox o
		SET claimed_until = now() + make_interval(secs => $2)
		FROM (
			SELECT id FROM event_outbox
			WHERE delivered_at IS NULL
			  AND attempts < $3
			  AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY (severity = 'critical') DESC, created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) picked
		WHERE o.id = picked.id
		RETURNING o.id, o.customer_key, o.type, o.severity, o.payload, o.attempts, o.created_at`
	rows, err := s.db.Query(ctx, q, limit, lease.Seconds(), maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: claim outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			e       OutboxEntry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.CustomerKey, &e.Type, &e.Severity, &payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		e.Payload = append(json.RawMessage(nil), payload...)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkDelivered reports false when the row was already delivered.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE event_outbox SET delivered_at = now(), claimed_until = NULL WHERE id = $1 AND delivered_at IS NULL`
	ct, err := s.db.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed records a failed attempt and releases the lease after backoff.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, cause error, retryIn time.Duration) error {
	const q = `
		UPDATE event_outbox
		SET attempts = attempts + 1,
		    last_error = $2,
		    claimed_until = now() + make_interval(secs => $3)
		WHERE id = $1 AND delivered_at IS NULL`
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := s.db.Exec(ctx, q, id, msg, retryIn.Seconds()); err != nil {
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}

type outboxSource interface {
	Claim(ctx context.Context, limit int32, lease time.Duration, maxAttempts int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, cause error, retryIn time.Duration) error
}

// Deliverer polls the outbox and hands claimed entries to the handler.
// Failed entries back off exponentially until maxAttempts, after which they
// stay in the table for manual inspection.
type Deliverer struct {
	store       outboxSource
	handler     DeliveryHandler
	logger      *logging.Logger
	batchSize   int32
	interval    time.Duration
	lease       time.Duration
	maxAttempts int
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Deliverer{
		handler:     handler,
		logger:      logger,
		batchSize:   defaultBatchSize,
		interval:    defaultPollEvery,
		lease:       defaultLease,
		maxAttempts: defaultMaxAttempts,
	}
	if store != nil {
		d.store = store
	}
	return d
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

// Start blocks until ctx is done.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.Claim(ctx, d.batchSize, d.lease, d.maxAttempts)
	if err != nil {
		d.logger.Error("outbox claim failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			attempt := entry.Attempts + 1
			log := d.logger.Warn
			if attempt >= d.maxAttempts {
				log = d.logger.Error
			}
			log("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type, "attempt", attempt)
			if markErr := d.store.MarkFailed(ctx, entry.ID, err, backoff(d.interval, attempt)); markErr != nil {
				d.logger.Error("failed to record outbox failure", "error", markErr, "event_id", entry.ID)
			}
			continue
		}
		if _, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		}
	}
}

// backoff doubles base per attempt, capped at ten minutes.
func backoff(base time.Duration, attempt int) time.Duration {
	const ceiling = 10 * time.Minute
	wait := base
	for i := 1; i < attempt && wait < ceiling; i++ {
		wait *= 2
	}
	return min(wait, ceiling)
}
