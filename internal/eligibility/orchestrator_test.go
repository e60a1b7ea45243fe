package eligibility

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

type stubProvider struct {
	name  string
	res   Result
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Query(ctx context.Context, _ string) (Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return s.res, s.err
}

func newTestOrchestrator(t *testing.T, emitter events.Emitter, health *HealthTracker, providers ...Provider) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(providers, health, emitter, logging.Nop(), WithProviderTimeout(50*time.Millisecond))
	require.NoError(t, err)
	return o
}

func TestCheckFallsBackToSecondProviderWhenFirstDeclines(t *testing.T) {
	fnb := &stubProvider{name: "fnb", res: NotEligible("fnb")}
	gaso := &stubProvider{name: "gaso", res: Result{Status: StatusEligible, Segment: "gaso", Credit: 1500, Name: "Rosa"}}
	emitter := events.NewMemoryEmitter()
	o := newTestOrchestrator(t, emitter, nil, fnb, gaso)

	res := o.Check(context.Background(), "12345678", "51999000111")

	assert.Equal(t, StatusEligible, res.Status)
	assert.Equal(t, "gaso", res.Segment)
	assert.Equal(t, 1500.0, res.Credit)
	assert.Equal(t, "gaso", res.Provider)
	assert.Empty(t, emitter.Events(), "no events expected when both providers answered")
}

func TestCheckStopsAtFirstEligible(t *testing.T) {
	fnb := &stubProvider{name: "fnb", res: Result{Status: StatusEligible, Segment: "fnb", Credit: 5000, Name: "Juan"}}
	gaso := &stubProvider{name: "gaso", res: NotEligible("gaso")}
	o := newTestOrchestrator(t, events.NewMemoryEmitter(), nil, fnb, gaso)

	res := o.Check(context.Background(), "12345678", "519")

	assert.True(t, res.Eligible())
	assert.Equal(t, int32(0), gaso.calls.Load(), "second provider must not be queried")
}

func TestCheckBothDownRaisesOutageOnce(t *testing.T) {
	netErr := errors.New("dial tcp: connection refused")
	fnb := &stubProvider{name: "fnb", err: netErr}
	gaso := &stubProvider{name: "gaso", err: netErr}
	emitter := events.NewMemoryEmitter()
	o := newTestOrchestrator(t, emitter, nil, fnb, gaso)

	res := o.Check(context.Background(), "12345678", "519")

	assert.Equal(t, StatusNeedsHuman, res.Status)
	assert.Equal(t, HandoffBothProvidersDown, res.HandoffReason)
	assert.Equal(t, 1, emitter.Count(events.SystemOutageDetected))
	assert.Equal(t, 0, emitter.Count(events.ProviderDegraded))
}

func TestCheckOneDownIsDegradation(t *testing.T) {
	fnb := &stubProvider{name: "fnb", err: NewProviderError("fnb", CategoryUnavailable, 502, errors.New("bad gateway"))}
	gaso := &stubProvider{name: "gaso", res: NotEligible("gaso")}
	emitter := events.NewMemoryEmitter()
	o := newTestOrchestrator(t, emitter, nil, fnb, gaso)

	res := o.Check(context.Background(), "12345678", "519")

	assert.Equal(t, StatusNotEligible, res.Status)
	assert.Equal(t, "gaso", res.Provider)
	assert.Equal(t, 1, emitter.Count(events.ProviderDegraded))
	assert.Equal(t, 0, emitter.Count(events.SystemOutageDetected))
}

func TestCheckDegradationWhenSecondProviderApproves(t *testing.T) {
	fnb := &stubProvider{name: "fnb", err: errors.New("connection reset")}
	gaso := &stubProvider{name: "gaso", res: Result{Status: StatusEligible, Segment: "gaso", Credit: 900}}
	emitter := events.NewMemoryEmitter()
	o := newTestOrchestrator(t, emitter, nil, fnb, gaso)

	res := o.Check(context.Background(), "12345678", "519")

	assert.True(t, res.Eligible())
	require.Equal(t, 1, emitter.Count(events.ProviderDegraded))
	payload := emitter.Events()[0].Payload.(events.ProviderDegradedV1)
	assert.Equal(t, "gaso", payload.AnsweredBy)
	assert.Equal(t, "fnb", payload.Failure.Provider)
}

func TestAuthFailureBlocksProviderForLaterCalls(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	health := NewHealthTracker(WithBlockTTL(time.Minute), WithClock(func() time.Time { return now }))
	fnb := &stubProvider{name: "fnb", err: NewProviderError("fnb", CategoryAuth, 401, errors.New("token rejected"))}
	gaso := &stubProvider{name: "gaso", res: NotEligible("gaso")}
	o := newTestOrchestrator(t, events.NewMemoryEmitter(), health, fnb, gaso)

	o.Check(context.Background(), "11111111", "519")
	o.Check(context.Background(), "22222222", "519")

	assert.Equal(t, int32(1), fnb.calls.Load(), "blocked provider should be skipped on the second call")
	assert.Equal(t, int32(2), gaso.calls.Load())

	now = now.Add(2 * time.Minute)
	o.Check(context.Background(), "33333333", "519")
	assert.Equal(t, int32(2), fnb.calls.Load(), "block should expire after the ttl")
}

func TestForcedDownProviderIsSkipped(t *testing.T) {
	health := NewHealthTracker()
	health.ForceDown("fnb", true)
	fnb := &stubProvider{name: "fnb", res: Result{Status: StatusEligible, Segment: "fnb", Credit: 5000}}
	gaso := &stubProvider{name: "gaso", res: NotEligible("gaso")}
	emitter := events.NewMemoryEmitter()
	o := newTestOrchestrator(t, emitter, health, fnb, gaso)

	res := o.Check(context.Background(), "12345678", "519")

	assert.Equal(t, StatusNotEligible, res.Status)
	assert.Equal(t, int32(0), fnb.calls.Load())
	assert.Equal(t, 1, emitter.Count(events.ProviderDegraded))
}

func TestProviderTimeoutCountsAsFailure(t *testing.T) {
	slow := &stubProvider{name: "fnb", delay: time.Second, res: Result{Status: StatusEligible}}
	gaso := &stubProvider{name: "gaso", res: Result{Status: StatusEligible, Segment: "gaso", Credit: 700}}
	o := newTestOrchestrator(t, events.NewMemoryEmitter(), nil, slow, gaso)

	start := time.Now()
	res := o.Check(context.Background(), "12345678", "519")

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "gaso", res.Segment)
	snap := o.Health().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 1, snap[0].ConsecutiveFailures)
}

func TestTestIdentityBypassesProviders(t *testing.T) {
	fnb := &stubProvider{name: "fnb", err: errors.New("should not be called")}
	ids := NewTestIdentities()
	ids.Set("+51900000001", Result{Status: StatusEligible, Segment: "fnb", Credit: 3000, Name: "Demo"})
	o, err := NewOrchestrator([]Provider{fnb}, nil, events.NewMemoryEmitter(), logging.Nop(), WithTestIdentities(ids))
	require.NoError(t, err)

	res := o.Check(context.Background(), "12345678", "51900000001")

	assert.Equal(t, "Demo", res.Name)
	assert.Equal(t, "test_identity", res.Provider)
	assert.Equal(t, int32(0), fnb.calls.Load())
}

func TestNewOrchestratorRequiresProviders(t *testing.T) {
	_, err := NewOrchestrator([]Provider{nil}, nil, nil, logging.Nop())
	assert.ErrorIs(t, err, ErrNoProviders)
}
