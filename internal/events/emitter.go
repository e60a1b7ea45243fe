package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// Emitter publishes named events. Emit is fire-and-forget: implementations log
// their own failures and never block the conversation on delivery.
type Emitter interface {
	Emit(ctx context.Context, eventType string, customerKey string, payload any)
}

// LogEmitter writes events as structured log lines.
type LogEmitter struct {
	logger *logging.Logger
}

func NewLogEmitter(logger *logging.Logger) *LogEmitter {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, eventType string, customerKey string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("event payload not serializable", "error", err, "type", eventType)
		data = nil
	}
	e.logger.Info("event emitted",
		"type", eventType,
		"customer", customerKey,
		"severity", SeverityFor(eventType),
		"payload", json.RawMessage(data),
	)
}

// MultiEmitter fans an event out to every wrapped emitter in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, eventType string, customerKey string, payload any) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, eventType, customerKey, payload)
		}
	}
}

// OutboxEmitter persists events to the outbox so a Deliverer can dispatch them.
type OutboxEmitter struct {
	store   *OutboxStore
	logger  *logging.Logger
	timeout time.Duration
}

func NewOutboxEmitter(store *OutboxStore, logger *logging.Logger) *OutboxEmitter {
	if store == nil {
		panic("events: outbox store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OutboxEmitter{store: store, logger: logger, timeout: 5 * time.Second}
}

func (e *OutboxEmitter) Emit(ctx context.Context, eventType string, customerKey string, payload any) {
	// Detached so a cancelled turn still records its outage/escalation.
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	if _, err := e.store.Insert(insertCtx, customerKey, eventType, payload); err != nil {
		e.logger.Error("failed to write event to outbox", "error", err, "type", eventType, "customer", customerKey)
	}
}

// Recorded is one captured emission.
type Recorded struct {
	Type        string
	CustomerKey string
	Payload     any
}

// MemoryEmitter keeps emitted events in memory. Used by local runs without a
// database and by tests.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Recorded
}

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (m *MemoryEmitter) Emit(_ context.Context, eventType string, customerKey string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Recorded{Type: eventType, CustomerKey: customerKey, Payload: payload})
}

// Events returns a copy of everything emitted so far.
func (m *MemoryEmitter) Events() []Recorded {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Recorded, len(m.events))
	copy(out, m.events)
	return out
}

// Count returns how many events of the given type were emitted.
func (m *MemoryEmitter) Count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
