package conversation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// MaxEnrichmentIterations caps side effects per inbound message.
const MaxEnrichmentIterations = 10

// Handler performs one enrichment side effect.
type Handler interface {
	Handle(ctx context.Context, customerKey string, req EnrichmentRequest) (EnrichmentResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, customerKey string, req EnrichmentRequest) (EnrichmentResult, error)

func (f HandlerFunc) Handle(ctx context.Context, customerKey string, req EnrichmentRequest) (EnrichmentResult, error) {
	return f(ctx, customerKey, req)
}

// HandlerSet routes requests to handlers by kind.
type HandlerSet map[EnrichmentKind]Handler

// PhasePersister saves the pending phase before a side effect runs, so a
// crash mid-enrichment resumes from the right step.
type PhasePersister interface {
	SavePhase(ctx context.Context, customerKey string, phase Phase) error
}

// LoopResult is the outcome of driving the engine for one message.
type LoopResult struct {
	Phase    Phase
	Metadata Metadata
	Commands []Command
	// Patch holds the metadata changes made during the loop.
	Patch            MetadataPatch
	Iterations       int
	Enrichments      []EnrichmentKind
	EscalationReason string
}

// Escalated reports whether the loop ended handing the customer to a human.
func (r LoopResult) Escalated() bool {
	return r.EscalationReason != ""
}

// Loop drives the engine, executing requested side effects and feeding their
// results back until the engine settles.
type Loop struct {
	engine        *Engine
	handlers      HandlerSet
	persister     PhasePersister
	emitter       events.Emitter
	metrics       *metrics.ConversationMetrics
	tracer        trace.Tracer
	logger        *logging.Logger
	maxIterations int
	now           func() time.Time
}

// LoopOption customizes a Loop.
type LoopOption func(*Loop)

func WithLoopMetrics(m *metrics.ConversationMetrics) LoopOption {
	return func(l *Loop) {
		l.metrics = m
	}
}

// WithMaxIterations overrides the enrichment cap (tests).
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

func WithLoopClock(now func() time.Time) LoopOption {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLoop builds a loop. A nil persister skips pending-phase saves.
func NewLoop(engine *Engine, handlers HandlerSet, persister PhasePersister, emitter events.Emitter, logger *logging.Logger, opts ...LoopOption) *Loop {
	if engine == nil {
		panic("conversation: engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if emitter == nil {
		emitter = events.NewLogEmitter(logger)
	}
	if handlers == nil {
		handlers = HandlerSet{}
	}
	l := &Loop{
		engine:        engine,
		handlers:      handlers,
		persister:     persister,
		emitter:       emitter,
		tracer:        otel.Tracer("creditsales.internal.conversation"),
		logger:        logger,
		maxIterations: MaxEnrichmentIterations,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Engine returns the state machine the loop drives.
func (l *Loop) Engine() *Engine {
	return l.engine
}

// Run processes one (possibly aggregated) inbound message.
func (l *Loop) Run(ctx context.Context, customerKey string, phase Phase, meta Metadata, message string) LoopResult {
	return l.run(ctx, customerKey, phase, meta, message, nil)
}

// Resume re-enters the engine with a result obtained outside a customer turn,
// such as a recovery re-check.
func (l *Loop) Resume(ctx context.Context, customerKey string, phase Phase, meta Metadata, result EnrichmentResult) LoopResult {
	out := LoopResult{}
	if checked, ok := result.(EligibilityChecked); ok {
		out.Patch = l.engine.EligibilityPatch(checked.DNI, checked.Result)
		meta = meta.Apply(out.Patch)
	}
	res := l.run(ctx, customerKey, phase, meta, "", result)
	res.Patch = out.Patch.Merge(res.Patch)
	return res
}

func (l *Loop) run(ctx context.Context, customerKey string, phase Phase, meta Metadata, message string, enrichment EnrichmentResult) LoopResult {
	ctx, span := l.tracer.Start(ctx, "conversation.loop")
	defer span.End()

	current := phase
	out := LoopResult{}
	invocations := 0

	for {
		res := l.engine.Transition(current, message, meta, enrichment)
		out.Iterations++
		out.Commands = append(out.Commands, res.Output()...)

		need, ok := res.(NeedEnrichment)
		if !ok {
			next := NextPhase(current, res)
			patch := PhasePatch(current, next)
			meta = meta.Apply(patch)
			out.Patch = out.Patch.Merge(patch)
			out.Phase = next
			out.Metadata = meta
			if esc, ok := res.(Escalate); ok {
				out.EscalationReason = esc.Reason
				l.emitter.Emit(ctx, events.EscalationTriggered, customerKey, events.EscalationTriggeredV1{
					CustomerKey: customerKey,
					Reason:      esc.Reason,
					Phase:       string(current.Kind()),
					OccurredAt:  l.now().UTC(),
				})
			}
			l.metrics.ObserveLoopIterations(out.Iterations)
			span.SetAttributes(
				attribute.Int("conversation.iterations", out.Iterations),
				attribute.String("conversation.phase", string(next.Kind())),
			)
			return out
		}

		if need.PendingPhase != nil {
			current = need.PendingPhase
		}
		if invocations >= l.maxIterations {
			return l.exceeded(ctx, span, customerKey, current, meta, out, need.Request)
		}
		if need.PendingPhase != nil && l.persister != nil {
			if err := l.persister.SavePhase(ctx, customerKey, need.PendingPhase); err != nil {
				l.logger.Warn("failed to persist pending phase", "customer", customerKey, "phase", need.PendingPhase.Kind(), "error", err)
			}
		}

		invocations++
		enrichment = l.execute(ctx, customerKey, need.Request)
		out.Enrichments = append(out.Enrichments, need.Request.Kind())

		if checked, ok := enrichment.(EligibilityChecked); ok {
			patch := l.engine.EligibilityPatch(checked.DNI, checked.Result)
			meta = meta.Apply(patch)
			out.Patch = out.Patch.Merge(patch)
		}
	}
}

// exceeded ends a runaway loop with a handoff.
func (l *Loop) exceeded(ctx context.Context, span trace.Span, customerKey string, current Phase, meta Metadata, out LoopResult, last EnrichmentRequest) LoopResult {
	l.logger.Error("enrichment loop exceeded",
		"customer", customerKey,
		"phase", current.Kind(),
		"iterations", out.Iterations,
		"last_kind", last.Kind(),
	)
	span.SetStatus(codes.Error, "enrichment loop exceeded")
	l.emitter.Emit(ctx, events.EnrichmentLoopExceeded, customerKey, events.EnrichmentLoopExceededV1{
		CustomerKey: customerKey,
		Phase:       string(current.Kind()),
		Iterations:  out.Iterations,
		LastKind:    string(last.Kind()),
		OccurredAt:  l.now().UTC(),
	})
	l.metrics.ObserveLoopIterations(out.Iterations)

	out.Commands = append(out.Commands,
		text(TplHandoff, nil),
		EscalateHandoff{Reason: ReasonEnrichmentLoopExceeded},
	)
	out.Phase = Escalated{Reason: ReasonEnrichmentLoopExceeded}
	out.Metadata = meta
	out.EscalationReason = ReasonEnrichmentLoopExceeded
	return out
}

// execute runs one handler. Errors, panics, missing handlers and mismatched
// results all degrade to DefaultResult.
func (l *Loop) execute(ctx context.Context, customerKey string, req EnrichmentRequest) (result EnrichmentResult) {
	kind := req.Kind()
	ctx, span := l.tracer.Start(ctx, "conversation.enrichment", trace.WithAttributes(attribute.String("enrichment.kind", string(kind))))
	defer span.End()

	fallback := func(outcome string, err error) EnrichmentResult {
		l.metrics.ObserveEnrichment(string(kind), outcome)
		if err != nil {
			span.RecordError(err)
			l.logger.Warn("enrichment failed, using default", "customer", customerKey, "kind", kind, "outcome", outcome, "error", err)
		}
		return DefaultResult(req)
	}

	handler, ok := l.handlers[kind]
	if !ok || handler == nil {
		return fallback("missing", fmt.Errorf("no handler for %s", kind))
	}

	defer func() {
		if r := recover(); r != nil {
			result = fallback("panic", fmt.Errorf("handler panic: %v", r))
		}
	}()

	res, err := handler.Handle(ctx, customerKey, req)
	if err != nil {
		return fallback("error", err)
	}
	if res == nil || res.Kind() != kind {
		return fallback("mismatch", fmt.Errorf("handler for %s returned %T", kind, res))
	}
	l.metrics.ObserveEnrichment(string(kind), "ok")
	return res
}
