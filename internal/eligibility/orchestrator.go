package eligibility

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const defaultProviderTimeout = 15 * time.Second

// Orchestrator queries the credit providers in order and composes their answers.
type Orchestrator struct {
	providers []Provider
	health    *HealthTracker
	emitter   events.Emitter
	testIDs   *TestIdentities
	timeout   time.Duration
	metrics   *metrics.ConversationMetrics
	tracer    trace.Tracer
	logger    *logging.Logger
	now       func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithProviderTimeout bounds each provider call.
func WithProviderTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTestIdentities wires canned results for QA customers.
func WithTestIdentities(ids *TestIdentities) Option {
	return func(o *Orchestrator) {
		o.testIDs = ids
	}
}

// WithMetrics records provider call outcomes.
func WithMetrics(m *metrics.ConversationMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer overrides the default otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// NewOrchestrator builds an orchestrator over providers, queried in the given order.
func NewOrchestrator(providers []Provider, health *HealthTracker, emitter events.Emitter, logger *logging.Logger, opts ...Option) (*Orchestrator, error) {
	var usable []Provider
	for _, p := range providers {
		if p != nil {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoProviders
	}
	if health == nil {
		health = NewHealthTracker()
	}
	if emitter == nil {
		emitter = events.NewLogEmitter(logger)
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		providers: usable,
		health:    health,
		emitter:   emitter,
		timeout:   defaultProviderTimeout,
		tracer:    otel.Tracer("creditsales.internal.eligibility"),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Health exposes the breaker state (admin endpoints).
func (o *Orchestrator) Health() *HealthTracker {
	return o.health
}

// ProviderNames lists configured providers in query order.
func (o *Orchestrator) ProviderNames() []string {
	names := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	return names
}

// Check resolves eligibility for dni. It never returns an error: provider
// failures are folded into the result and surfaced as events.
func (o *Orchestrator) Check(ctx context.Context, dni, customerKey string) Result {
	if res, ok := o.testIDs.Lookup(customerKey); ok {
		o.logger.Info("eligibility served from test identity", "customer", customerKey, "status", res.Status)
		return res
	}

	ctx, span := o.tracer.Start(ctx, "eligibility.check")
	defer span.End()

	var (
		failures []events.ProviderFailure
		answered string
		negative Result
	)
	for _, p := range o.providers {
		name := p.Name()
		if ok, reason := o.health.Available(name); !ok {
			o.logger.Warn("skipping eligibility provider", "provider", name, "reason", reason, "customer", customerKey)
			o.metrics.ObserveProviderCall(name, "skipped", 0)
			failures = append(failures, events.ProviderFailure{Provider: name, Category: reason})
			continue
		}

		res, err := o.query(ctx, p, dni)
		if err != nil {
			category := Classify(err)
			o.health.RecordFailure(name, category)
			o.logger.Warn("eligibility provider failed", "provider", name, "category", category, "error", err, "customer", customerKey)
			failures = append(failures, events.ProviderFailure{Provider: name, Category: string(category), Error: err.Error()})
			continue
		}
		o.health.RecordSuccess(name)
		if res.Provider == "" {
			res.Provider = name
		}
		if res.Eligible() {
			o.reportDegradation(ctx, customerKey, failures, name)
			span.SetAttributes(attribute.String("eligibility.status", string(res.Status)), attribute.String("eligibility.provider", name))
			return res
		}
		if answered == "" {
			answered = name
			negative = res
		}
	}

	if answered == "" {
		o.emitter.Emit(ctx, events.SystemOutageDetected, customerKey, events.OutageDetectedV1{
			CustomerKey: customerKey,
			Failures:    failures,
			DetectedAt:  o.now().UTC(),
		})
		o.logger.Error("all eligibility providers unreachable", "customer", customerKey, "failures", len(failures))
		span.SetAttributes(attribute.String("eligibility.status", string(StatusNeedsHuman)))
		return NeedsHuman(HandoffBothProvidersDown)
	}

	o.reportDegradation(ctx, customerKey, failures, answered)
	span.SetAttributes(attribute.String("eligibility.status", string(StatusNotEligible)))
	return Result{Status: StatusNotEligible, Provider: negative.Provider}
}

func (o *Orchestrator) query(ctx context.Context, p Provider, dni string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	callCtx, span := o.tracer.Start(callCtx, "eligibility.provider_query", trace.WithAttributes(attribute.String("eligibility.provider", p.Name())))
	defer span.End()

	start := o.now()
	res, err := p.Query(callCtx, dni)
	if err == nil && callCtx.Err() != nil {
		err = NewProviderError(p.Name(), CategoryTimeout, 0, callCtx.Err())
	}
	outcome := "ok"
	if err != nil {
		span.RecordError(err)
		outcome = string(Classify(err))
	}
	o.metrics.ObserveProviderCall(p.Name(), outcome, o.now().Sub(start).Seconds())
	return res, err
}

func (o *Orchestrator) reportDegradation(ctx context.Context, customerKey string, failures []events.ProviderFailure, answeredBy string) {
	for _, f := range failures {
		o.emitter.Emit(ctx, events.ProviderDegraded, customerKey, events.ProviderDegradedV1{
			CustomerKey: customerKey,
			Failure:     f,
			AnsweredBy:  answeredBy,
			DetectedAt:  o.now().UTC(),
		})
	}
}
