// Package lock serializes turn processing per customer.
package lock

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

var (
	// ErrTimeout is returned when the lock could not be acquired, or fn did
	// not finish, within the timeout.
	ErrTimeout = errors.New("lock: timeout")
	// ErrPanic wraps a panic raised by fn while the lock was held.
	ErrPanic = errors.New("lock: holder panicked")
)

const (
	defaultTimeout    = 90 * time.Second
	defaultStaleAfter = 5 * time.Minute
)

type waiter struct {
	token string
	ready chan struct{}
}

// entry exists while a key is held; waiters are granted in arrival order.
type entry struct {
	holder   string
	acquired time.Time
	queue    []*waiter
}

// Manager is an in-process, FIFO-per-key mutex.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry

	distributed    DistributedLocker
	defaultTimeout time.Duration
	staleAfter     time.Duration
	metrics        *metrics.ConversationMetrics
	logger         *logging.Logger
	now            func() time.Time
}

type Option func(*Manager)

// WithDistributedLocker additionally takes a cross-replica lock while fn runs.
func WithDistributedLocker(l DistributedLocker) Option {
	return func(m *Manager) {
		m.distributed = l
	}
}

func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.defaultTimeout = d
		}
	}
}

// WithStaleAfter sets how long a holder may keep a key before Sweep evicts it.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

func WithMetrics(mx *metrics.ConversationMetrics) Option {
	return func(m *Manager) {
		m.metrics = mx
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		entries:        make(map[string]*entry),
		defaultTimeout: defaultTimeout,
		staleAfter:     defaultStaleAfter,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithLock runs fn while holding key. Waiting and running are each bounded by
// timeout (zero uses the default). On timeout the lock is released and
// ErrTimeout returned; fn is not cancelled and its late completion cannot
// release a later holder. A panic in fn releases the lock and returns ErrPanic.
func (m *Manager) WithLock(ctx context.Context, key string, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	token := uuid.NewString()
	start := m.now()

	if err := m.acquire(ctx, key, token, timeout); err != nil {
		if errors.Is(err, ErrTimeout) {
			m.metrics.ObserveLockEvent("wait_timeout")
			m.logger.Warn("timed out waiting for customer lock", "customer", key, "timeout", timeout)
		}
		return err
	}
	m.metrics.ObserveLockWait(m.now().Sub(start).Seconds())

	unlockRemote := func() {}
	if m.distributed != nil {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		unlock, err := m.distributed.Lock(lockCtx, key, m.staleAfter)
		cancel()
		if err != nil {
			m.release(key, token)
			return fmt.Errorf("lock: distributed: %w", err)
		}
		unlockRemote = func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock, it will expire", "customer", key, "error", err)
			}
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.metrics.ObserveLockEvent("panic")
				m.logger.Error("panic while holding customer lock", "customer", key, "panic", r, "stack", string(debug.Stack()))
				done <- fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		done <- fn(ctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		m.release(key, token)
		unlockRemote()
		return err
	case <-timer.C:
		m.metrics.ObserveLockEvent("timeout")
		m.logger.Warn("customer lock holder timed out, force releasing", "customer", key, "timeout", timeout)
		m.release(key, token)
		unlockRemote()
		return ErrTimeout
	}
}

func (m *Manager) acquire(ctx context.Context, key, token string, timeout time.Duration) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.entries[key] = &entry{holder: token, acquired: m.now()}
		m.mu.Unlock()
		return nil
	}
	w := &waiter{token: token, ready: make(chan struct{})}
	e.queue = append(e.queue, w)
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
		err = ErrTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-w.ready:
		// granted while giving up: pass it on
		m.releaseLocked(key, token)
	default:
		if e, ok := m.entries[key]; ok {
			for i, q := range e.queue {
				if q == w {
					e.queue = append(e.queue[:i], e.queue[i+1:]...)
					break
				}
			}
		}
	}
	return err
}

func (m *Manager) release(key, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(key, token)
}

// releaseLocked hands key to the next waiter, or drops the entry. It is a
// no-op unless token is the current holder.
func (m *Manager) releaseLocked(key, token string) bool {
	e, ok := m.entries[key]
	if !ok || e.holder != token {
		return false
	}
	if len(e.queue) == 0 {
		delete(m.entries, key)
		return true
	}
	next := e.queue[0]
	e.queue = e.queue[1:]
	e.holder = next.token
	e.acquired = m.now()
	close(next.ready)
	return true
}

// Sweep force-releases holders older than the stale threshold and returns
// how many were released.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	swept := 0
	for key, e := range m.entries {
		held := now.Sub(e.acquired)
		if held <= m.staleAfter {
			continue
		}
		m.logger.Error("stale customer lock force released", "customer", key, "held_for", held, "waiters", len(e.queue))
		m.metrics.ObserveLockEvent("swept")
		if m.releaseLocked(key, e.holder) {
			swept++
		}
	}
	return swept
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Held reports whether key is currently locked.
func (m *Manager) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Active returns the number of held keys.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
