package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrSessionNotFound indicates no session exists for the customer.
var ErrSessionNotFound = errors.New("conversation: session not found")

// sessionRetention bounds how long an idle session survives in Redis. It is
// longer than any sensible SessionTTL so expiry stays a service decision.
const sessionRetention = 30 * 24 * time.Hour

// Session is the persisted state of one customer's conversation.
type Session struct {
	CustomerKey string
	Phase       Phase
	Metadata    Metadata
	UpdatedAt   time.Time
}

type sessionRecord struct {
	CustomerKey string          `json:"customer_key"`
	Phase       json.RawMessage `json:"phase"`
	Metadata    Metadata        `json:"metadata"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MarshalJSON encodes the phase with its variant name.
func (s Session) MarshalJSON() ([]byte, error) {
	phase := s.Phase
	if phase == nil {
		phase = Greeting{}
	}
	raw, err := MarshalPhase(phase)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sessionRecord{
		CustomerKey: s.CustomerKey,
		Phase:       raw,
		Metadata:    s.Metadata,
		UpdatedAt:   s.UpdatedAt,
	})
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	phase, err := UnmarshalPhase(rec.Phase)
	if err != nil {
		return err
	}
	*s = Session{CustomerKey: rec.CustomerKey, Phase: phase, Metadata: rec.Metadata, UpdatedAt: rec.UpdatedAt}
	return nil
}

// SessionStore persists customer sessions. GetOrCreate reports whether the
// session was created by this call.
type SessionStore interface {
	Get(ctx context.Context, customerKey string) (Session, error)
	GetOrCreate(ctx context.Context, customerKey string) (Session, bool, error)
	Update(ctx context.Context, session Session) error
	SavePhase(ctx context.Context, customerKey string, phase Phase) error
}

func newSession(customerKey string, now time.Time) Session {
	return Session{
		CustomerKey: customerKey,
		Phase:       Greeting{},
		Metadata:    Metadata{CreatedAt: now, LastActivityAt: now},
		UpdatedAt:   now,
	}
}

// RedisSessionStore keeps sessions as JSON documents in Redis.
type RedisSessionStore struct {
	redis  *redis.Client
	prefix string
	tracer trace.Tracer
	now    func() time.Time
}

// NewRedisSessionStore builds a store; prefix defaults to "creditsales:".
func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "creditsales:"
	}
	return &RedisSessionStore{
		redis:  client,
		prefix: prefix,
		tracer: otel.Tracer("creditsales.internal.conversation.sessions"),
		now:    time.Now,
	}
}

func (s *RedisSessionStore) key(customerKey string) string {
	return s.prefix + "session:" + customerKey
}

func (s *RedisSessionStore) Get(ctx context.Context, customerKey string) (Session, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.get_session", trace.WithAttributes(attribute.String("customer", customerKey)))
	defer span.End()

	data, err := s.redis.Get(ctx, s.key(customerKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		span.RecordError(err)
		return Session{}, fmt.Errorf("conversation: failed to load session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return Session{}, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStore) GetOrCreate(ctx context.Context, customerKey string) (Session, bool, error) {
	session, err := s.Get(ctx, customerKey)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return Session{}, false, err
	}

	ctx, span := s.tracer.Start(ctx, "conversation.create_session")
	defer span.End()

	session = newSession(customerKey, s.now().UTC())
	data, err := json.Marshal(session)
	if err != nil {
		return Session{}, false, fmt.Errorf("conversation: failed to encode session: %w", err)
	}
	created, err := s.redis.SetNX(ctx, s.key(customerKey), data, sessionRetention).Result()
	if err != nil {
		span.RecordError(err)
		return Session{}, false, fmt.Errorf("conversation: failed to create session: %w", err)
	}
	if !created {
		// Another replica created it first.
		session, err = s.Get(ctx, customerKey)
		return session, false, err
	}
	return session, true, nil
}

func (s *RedisSessionStore) Update(ctx context.Context, session Session) error {
	ctx, span := s.tracer.Start(ctx, "conversation.update_session", trace.WithAttributes(attribute.String("customer", session.CustomerKey)))
	defer span.End()

	session.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to encode session: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(session.CustomerKey), data, sessionRetention).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

// SavePhase overwrites only the phase. Callers hold the customer lock.
func (s *RedisSessionStore) SavePhase(ctx context.Context, customerKey string, phase Phase) error {
	session, err := s.Get(ctx, customerKey)
	if err != nil {
		return err
	}
	session.Phase = phase
	return s.Update(ctx, session)
}

// ParkedCustomer is a customer waiting for the eligibility providers to recover.
type ParkedCustomer struct {
	CustomerKey string    `json:"customer_key"`
	DNI         string    `json:"dni"`
	Since       time.Time `json:"since"`
}

// ParkingLot tracks customers in waiting_for_recovery.
type ParkingLot interface {
	Park(ctx context.Context, customerKey, dni string) error
	Unpark(ctx context.Context, customerKey string) error
	Parked(ctx context.Context) ([]ParkedCustomer, error)
}

// RedisParkingLot stores parked customers in a single hash.
type RedisParkingLot struct {
	redis *redis.Client
	key   string
	now   func() time.Time
}

func NewRedisParkingLot(client *redis.Client, prefix string) *RedisParkingLot {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "creditsales:"
	}
	return &RedisParkingLot{redis: client, key: prefix + "parked", now: time.Now}
}

func (p *RedisParkingLot) Park(ctx context.Context, customerKey, dni string) error {
	data, err := json.Marshal(ParkedCustomer{CustomerKey: customerKey, DNI: dni, Since: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("conversation: failed to encode parked customer: %w", err)
	}
	// HSETNX keeps the original parking time across repeated turns.
	if err := p.redis.HSetNX(ctx, p.key, customerKey, data).Err(); err != nil {
		return fmt.Errorf("conversation: failed to park customer: %w", err)
	}
	return nil
}

func (p *RedisParkingLot) Unpark(ctx context.Context, customerKey string) error {
	if err := p.redis.HDel(ctx, p.key, customerKey).Err(); err != nil {
		return fmt.Errorf("conversation: failed to unpark customer: %w", err)
	}
	return nil
}

func (p *RedisParkingLot) Parked(ctx context.Context) ([]ParkedCustomer, error) {
	values, err := p.redis.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to list parked customers: %w", err)
	}
	out := make([]ParkedCustomer, 0, len(values))
	for _, raw := range values {
		var parked ParkedCustomer
		if err := json.Unmarshal([]byte(raw), &parked); err != nil {
			continue
		}
		out = append(out, parked)
	}
	sortParked(out)
	return out, nil
}

func sortParked(out []ParkedCustomer) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].CustomerKey < out[j].CustomerKey
		}
		return out[i].Since.Before(out[j].Since)
	})
}

// MemorySessionStore is an in-process SessionStore for tests and local runs.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session), now: time.Now}
}

func (m *MemorySessionStore) Get(_ context.Context, customerKey string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[customerKey]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (m *MemorySessionStore) GetOrCreate(_ context.Context, customerKey string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[customerKey]; ok {
		return session, false, nil
	}
	session := newSession(customerKey, m.now().UTC())
	m.sessions[customerKey] = session
	return session, true, nil
}

func (m *MemorySessionStore) Update(_ context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.UpdatedAt = m.now().UTC()
	m.sessions[session.CustomerKey] = session
	return nil
}

func (m *MemorySessionStore) SavePhase(_ context.Context, customerKey string, phase Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[customerKey]
	if !ok {
		return ErrSessionNotFound
	}
	session.Phase = phase
	m.sessions[customerKey] = session
	return nil
}

// MemoryParkingLot is an in-process ParkingLot.
type MemoryParkingLot struct {
	mu     sync.Mutex
	parked map[string]ParkedCustomer
	now    func() time.Time
}

func NewMemoryParkingLot() *MemoryParkingLot {
	return &MemoryParkingLot{parked: make(map[string]ParkedCustomer), now: time.Now}
}

func (p *MemoryParkingLot) Park(_ context.Context, customerKey, dni string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.parked[customerKey]; !ok {
		p.parked[customerKey] = ParkedCustomer{CustomerKey: customerKey, DNI: dni, Since: p.now().UTC()}
	}
	return nil
}

func (p *MemoryParkingLot) Unpark(_ context.Context, customerKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.parked, customerKey)
	return nil
}

func (p *MemoryParkingLot) Parked(_ context.Context) ([]ParkedCustomer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ParkedCustomer, 0, len(p.parked))
	for _, parked := range p.parked {
		out = append(out, parked)
	}
	sortParked(out)
	return out, nil
}
