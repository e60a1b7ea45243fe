package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresSessionStore is the durable SessionStore. Attempted IDs live in
// their own array column so operators can query them.
type PostgresSessionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	if db == nil {
		panic("conversation: database cannot be nil")
	}
	return &PostgresSessionStore{db: db, now: time.Now}
}

func (s *PostgresSessionStore) Get(ctx context.Context, customerKey string) (Session, error) {
	var (
		phaseRaw  []byte
		metaRaw   []byte
		attempted []string
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT phase, metadata, attempted_dnis, updated_at
		FROM conversation_sessions WHERE customer_key = $1`, customerKey).
		Scan(&phaseRaw, &metaRaw, pq.Array(&attempted), &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("conversation: failed to load session: %w", err)
	}

	phase, err := UnmarshalPhase(phaseRaw)
	if err != nil {
		return Session{}, fmt.Errorf("conversation: failed to decode phase: %w", err)
	}
	var meta Metadata
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return Session{}, fmt.Errorf("conversation: failed to decode metadata: %w", err)
		}
	}
	meta.AttemptedDNIs = attempted
	return Session{CustomerKey: customerKey, Phase: phase, Metadata: meta, UpdatedAt: updatedAt}, nil
}

func (s *PostgresSessionStore) GetOrCreate(ctx context.Context, customerKey string) (Session, bool, error) {
	session, err := s.Get(ctx, customerKey)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return Session{}, false, err
	}

	session = newSession(customerKey, s.now().UTC())
	phaseRaw, metaRaw, err := encodeSession(session)
	if err != nil {
		return Session{}, false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (customer_key, phase, metadata, attempted_dnis, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (customer_key) DO NOTHING`,
		customerKey, phaseRaw, metaRaw, pq.Array([]string{}), session.UpdatedAt)
	if err != nil {
		return Session{}, false, fmt.Errorf("conversation: failed to create session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		session, err = s.Get(ctx, customerKey)
		return session, false, err
	}
	return session, true, nil
}

func (s *PostgresSessionStore) Update(ctx context.Context, session Session) error {
	phaseRaw, metaRaw, err := encodeSession(session)
	if err != nil {
		return err
	}
	attempted := session.Metadata.AttemptedDNIs
	if attempted == nil {
		attempted = []string{}
	}
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_sessions (customer_key, phase, metadata, attempted_dnis, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (customer_key) DO UPDATE SET
		    phase = EXCLUDED.phase, metadata = EXCLUDED.metadata,
		    attempted_dnis = EXCLUDED.attempted_dnis, updated_at = EXCLUDED.updated_at`,
		session.CustomerKey, phaseRaw, metaRaw, pq.Array(attempted), now)
	if err != nil {
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) SavePhase(ctx context.Context, customerKey string, phase Phase) error {
	raw, err := MarshalPhase(phase)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversation_sessions SET phase = $2, updated_at = $3 WHERE customer_key = $1`,
		customerKey, raw, s.now().UTC())
	if err != nil {
		return fmt.Errorf("conversation: failed to persist phase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func encodeSession(session Session) ([]byte, []byte, error) {
	phase := session.Phase
	if phase == nil {
		phase = Greeting{}
	}
	phaseRaw, err := MarshalPhase(phase)
	if err != nil {
		return nil, nil, fmt.Errorf("conversation: failed to encode phase: %w", err)
	}
	meta := session.Metadata
	meta.AttemptedDNIs = nil
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("conversation: failed to encode metadata: %w", err)
	}
	return phaseRaw, metaRaw, nil
}
