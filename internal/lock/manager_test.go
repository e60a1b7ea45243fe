package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

func TestWithLockMutualExclusion(t *testing.T) {
	m := NewManager(logging.Nop())
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(context.Background(), "51999000111", time.Second, func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					cur := atomic.LoadInt32(&maxActive)
					if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive, "bodies for one key overlapped")
	assert.False(t, m.Held("51999000111"))
	assert.Equal(t, 0, m.Active())
}

func TestWithLockFIFO(t *testing.T) {
	m := NewManager(logging.Nop())
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		// let waiter i enqueue before i+1
		require.Eventually(t, func() bool { return queued(m, "k") == i+1 }, time.Second, time.Millisecond)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func queued(m *Manager, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return len(e.queue)
	}
	return 0
}

func TestWithLockIndependentKeys(t *testing.T) {
	m := NewManager(logging.Nop())
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "a", time.Second, func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	done := make(chan error, 1)
	go func() {
		done <- m.WithLock(context.Background(), "b", time.Second, func(context.Context) error { return nil })
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("key b was blocked by key a")
	}
}

func TestWithLockTimeoutForceReleases(t *testing.T) {
	m := NewManager(logging.Nop())
	finish := make(chan struct{})
	lateDone := make(chan struct{})

	err := m.WithLock(context.Background(), "k", 20*time.Millisecond, func(context.Context) error {
		defer close(lateDone)
		<-finish
		return nil
	})
	require.ErrorIs(t, err, ErrTimeout)
	assert.False(t, m.Held("k"), "timed out holder must release")

	// a successor takes the lock; the stuck fn finishing must not release it
	successorIn := make(chan struct{})
	successorOut := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
			close(successorIn)
			<-successorOut
			return nil
		})
	}()
	<-successorIn
	close(finish)
	<-lateDone
	time.Sleep(10 * time.Millisecond)
	assert.True(t, m.Held("k"), "late completion released the successor's lock")
	close(successorOut)
}

func TestWithLockWaitTimeout(t *testing.T) {
	m := NewManager(logging.Nop())
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	err := m.WithLock(context.Background(), "k", 20*time.Millisecond, func(context.Context) error {
		t.Error("body must not run")
		return nil
	})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, queued(m, "k"), "abandoned waiter left in queue")
	close(hold)
}

func TestWithLockReleasesOnErrorAndPanic(t *testing.T) {
	m := NewManager(logging.Nop())
	boom := errors.New("boom")

	err := m.WithLock(context.Background(), "k", time.Second, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, m.Held("k"))

	err = m.WithLock(context.Background(), "k", time.Second, func(context.Context) error { panic("bad state") })
	require.ErrorIs(t, err, ErrPanic)
	assert.False(t, m.Held("k"))
}

func TestSweepReleasesStaleHolders(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	m := NewManager(logging.Nop(), WithStaleAfter(time.Minute), WithClock(clock))

	started := make(chan struct{})
	hold := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "stuck", time.Hour, func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	assert.Equal(t, 0, m.Sweep())
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	assert.Equal(t, 1, m.Sweep())
	assert.False(t, m.Held("stuck"))
	close(hold)
}
