// Package aggregator merges bursts of inbound messages from one customer
// into a single turn.
package aggregator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const DefaultWindow = 3 * time.Second

// Turn is a flushed burst.
type Turn struct {
	CustomerKey string
	// Text is the fragments joined with single spaces, oldest first.
	Text string
	// Timestamp is the earliest original timestamp of the burst.
	Timestamp time.Time
	// MessageID is the id of the latest fragment.
	MessageID string
	Fragments int
}

// FlushFunc receives a flushed turn.
type FlushFunc func(Turn)

type buffer struct {
	fragments []string
	earliest  time.Time
	latestID  string
	onFlush   FlushFunc
	timer     *time.Timer
	gen       uint64
}

// Aggregator debounces messages per customer key.
type Aggregator struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*buffer
	gen     uint64
	metrics *metrics.ConversationMetrics
	logger  *logging.Logger
}

type Option func(*Aggregator)

func WithMetrics(m *metrics.ConversationMetrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

func New(window time.Duration, logger *logging.Logger, opts ...Option) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Aggregator{
		window:  window,
		pending: make(map[string]*buffer),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add buffers text for key and restarts its quiet window. The most recent
// onFlush wins.
func (a *Aggregator) Add(key, text string, ts time.Time, messageID string, onFlush FlushFunc) {
	text = strings.TrimSpace(text)
	if ts.IsZero() {
		ts = time.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.pending[key]
	if !ok {
		buf = &buffer{earliest: ts}
		a.pending[key] = buf
	}
	if text != "" {
		buf.fragments = append(buf.fragments, text)
	}
	if ts.Before(buf.earliest) {
		buf.earliest = ts
	}
	if messageID != "" {
		buf.latestID = messageID
	}
	if onFlush != nil {
		buf.onFlush = onFlush
	}

	if buf.timer != nil {
		buf.timer.Stop()
	}
	a.gen++
	gen := a.gen
	buf.gen = gen
	buf.timer = time.AfterFunc(a.window, func() { a.fire(key, gen) })
}

// fire flushes key unless a later Add restarted its window.
func (a *Aggregator) fire(key string, gen uint64) {
	a.mu.Lock()
	buf, ok := a.pending[key]
	if !ok || buf.gen != gen {
		a.mu.Unlock()
		return
	}
	delete(a.pending, key)
	a.mu.Unlock()

	a.deliver(key, buf)
}

func (a *Aggregator) deliver(key string, buf *buffer) {
	turn := buf.turn(key)
	a.metrics.ObserveFlush(turn.Fragments)
	if buf.onFlush == nil {
		a.logger.Warn("aggregator flushed a turn with no handler", "customer", key, "fragments", turn.Fragments)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("aggregator flush handler panicked", "customer", key, "panic", r)
		}
	}()
	buf.onFlush(turn)
}

func (b *buffer) turn(key string) Turn {
	return Turn{
		CustomerKey: key,
		Text:        strings.Join(b.fragments, " "),
		Timestamp:   b.earliest,
		MessageID:   b.latestID,
		Fragments:   len(b.fragments),
	}
}

// FlushAll delivers every pending buffer immediately and returns how many
// turns were flushed. Used on shutdown.
func (a *Aggregator) FlushAll(ctx context.Context) int {
	a.mu.Lock()
	drained := a.pending
	a.pending = make(map[string]*buffer)
	for _, buf := range drained {
		buf.timer.Stop()
	}
	a.mu.Unlock()

	flushed := 0
	for key, buf := range drained {
		if ctx.Err() != nil {
			a.logger.Error("aggregator shutdown flush interrupted", "customer", key, "error", ctx.Err())
			continue
		}
		a.deliver(key, buf)
		flushed++
	}
	if flushed > 0 {
		a.logger.Info("aggregator flushed pending turns", "count", flushed)
	}
	return flushed
}

// Pending returns the turn that would be flushed for key right now.
func (a *Aggregator) Pending(key string) (Turn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.pending[key]
	if !ok {
		return Turn{}, false
	}
	return buf.turn(key), true
}

// Len returns the number of customers with buffered input.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
