package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/internal/lock"
	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// TurnRequest is one aggregated customer turn.
type TurnRequest struct {
	CustomerKey string    `json:"customer_key"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	MessageID   string    `json:"message_id,omitempty"`
	Fragments   int       `json:"fragments,omitempty"`
}

// TurnOutcome summarizes what a processed turn did.
type TurnOutcome struct {
	CustomerKey      string    `json:"customer_key"`
	From             PhaseName `json:"from"`
	To               PhaseName `json:"to"`
	Sent             int       `json:"sent"`
	Iterations       int       `json:"iterations"`
	EscalationReason string    `json:"escalation_reason,omitempty"`
	SessionReset     bool      `json:"session_reset,omitempty"`
	Apologized       bool      `json:"apologized,omitempty"`
}

// ServiceConfig holds the turn-level timing thresholds.
type ServiceConfig struct {
	SessionTTL       time.Duration
	BacklogThreshold time.Duration
	LockTimeout      time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		SessionTTL:       72 * time.Hour,
		BacklogThreshold: 10 * time.Minute,
		LockTimeout:      90 * time.Second,
	}
}

// Service processes customer turns: one at a time per customer, with the
// session loaded and saved around a loop run.
type Service struct {
	loop     *Loop
	executor *CommandExecutor
	sessions SessionStore
	locks    *lock.Manager
	parking  ParkingLot
	archiver SessionArchiver
	emitter  events.Emitter
	logger   *logging.Logger
	events   *EventLogger
	metrics  *metrics.ConversationMetrics
	cfg      ServiceConfig
	now      func() time.Time
}

type ServiceOption func(*Service)

// WithParkingLot records customers that end a turn in waiting_for_recovery.
func WithParkingLot(p ParkingLot) ServiceOption {
	return func(s *Service) {
		s.parking = p
	}
}

// SessionArchiver keeps a copy of a session before it is discarded.
type SessionArchiver interface {
	ArchiveSession(ctx context.Context, session Session, reason string) error
}

// WithSessionArchiver archives expired sessions before they are reset.
func WithSessionArchiver(a SessionArchiver) ServiceOption {
	return func(s *Service) {
		s.archiver = a
	}
}

func WithServiceConfig(cfg ServiceConfig) ServiceOption {
	return func(s *Service) {
		s.cfg = cfg
	}
}

func WithServiceMetrics(m *metrics.ConversationMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithServiceEmitter(e events.Emitter) ServiceOption {
	return func(s *Service) {
		if e != nil {
			s.emitter = e
		}
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(loop *Loop, executor *CommandExecutor, sessions SessionStore, locks *lock.Manager, logger *logging.Logger, opts ...ServiceOption) *Service {
	if loop == nil {
		panic("conversation: loop cannot be nil")
	}
	if executor == nil {
		panic("conversation: executor cannot be nil")
	}
	if sessions == nil {
		panic("conversation: session store cannot be nil")
	}
	if locks == nil {
		panic("conversation: lock manager cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		loop:     loop,
		executor: executor,
		sessions: sessions,
		locks:    locks,
		logger:   logger,
		events:   NewEventLogger(logger),
		cfg:      DefaultServiceConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.emitter == nil {
		s.emitter = events.NewLogEmitter(logger)
	}
	return s
}

// Session returns the stored session for customerKey.
func (s *Service) Session(ctx context.Context, customerKey string) (Session, error) {
	return s.sessions.Get(ctx, customerKey)
}

// ProcessTurn runs one aggregated turn under the customer's lock. A lock
// timeout drops the turn and returns lock.ErrTimeout; a panic anywhere in
// processing comes back as lock.ErrPanic.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (TurnOutcome, error) {
	req.CustomerKey = strings.TrimSpace(req.CustomerKey)
	if req.CustomerKey == "" {
		return TurnOutcome{}, errors.New("conversation: customer key required")
	}
	start := s.now()

	var out TurnOutcome
	err := s.locks.WithLock(ctx, req.CustomerKey, s.cfg.LockTimeout, func(ctx context.Context) error {
		res, err := s.processLocked(ctx, req)
		out = res
		return err
	})
	elapsed := s.now().Sub(start).Seconds()
	if err != nil {
		outcome := "error"
		if errors.Is(err, lock.ErrTimeout) {
			outcome = "timeout"
			s.emitter.Emit(ctx, events.TurnDropped, req.CustomerKey, events.TurnDroppedV1{
				CustomerKey: req.CustomerKey,
				MessageID:   req.MessageID,
				Reason:      "lock_timeout",
				OccurredAt:  s.now().UTC(),
			})
		}
		s.metrics.ObserveTurn(outcome, elapsed)
		s.logger.Error("turn failed", "customer", req.CustomerKey, "message_id", req.MessageID, "error", err)
		return TurnOutcome{CustomerKey: req.CustomerKey}, err
	}

	outcome := "ok"
	if out.EscalationReason != "" {
		outcome = "escalated"
	}
	s.metrics.ObserveTurn(outcome, elapsed)
	return out, nil
}

func (s *Service) processLocked(ctx context.Context, req TurnRequest) (TurnOutcome, error) {
	key := req.CustomerKey
	start := s.now()
	out := TurnOutcome{CustomerKey: key}

	session, created, err := s.sessions.GetOrCreate(ctx, key)
	if err != nil {
		return out, fmt.Errorf("conversation: load session: %w", err)
	}
	now := s.now().UTC()
	if !created && s.expired(session.Metadata, now) {
		idle := now.Sub(session.Metadata.LastActivityAt)
		s.events.SessionExpired(ctx, key, idle)
		if _, parked := session.Phase.(WaitingForRecovery); parked && s.parking != nil {
			if err := s.parking.Unpark(ctx, key); err != nil {
				s.logger.Warn("failed to unpark expired session", "customer", key, "error", err)
			}
		}
		if s.archiver != nil {
			if err := s.archiver.ArchiveSession(ctx, session, "expired"); err != nil {
				s.logger.Warn("failed to archive expired session", "customer", key, "error", err)
			}
		}
		session = newSession(key, now)
		out.SessionReset = true
	}
	from := session.Phase
	if from == nil || !KnownPhase(from) {
		from = Greeting{}
	}
	out.From = from.Kind()
	s.events.TurnStarted(ctx, key, from, req.Text, req.Fragments)

	var cmds []Command
	if apology, ok := s.backlogApology(ctx, key, session.Metadata, req.Timestamp, now); ok {
		cmds = append(cmds, apology)
		out.Apologized = true
	}

	result := s.loop.Run(ctx, key, from, session.Metadata, req.Text)
	if len(result.Enrichments) > 0 {
		s.events.EnrichmentRequested(ctx, key, from, result.Enrichments)
	}
	s.events.PhaseTransition(ctx, key, from, result.Phase)

	meta := result.Metadata
	meta.LastActivityAt = now
	session.Phase = result.Phase
	session.Metadata = meta
	if err := s.sessions.Update(ctx, session); err != nil {
		return out, fmt.Errorf("conversation: save session: %w", err)
	}
	s.syncParking(ctx, key, from, result.Phase)

	cmds = append(cmds, result.Commands...)
	sent, execErr := s.executor.Execute(ctx, key, result.Phase, cmds)
	if execErr != nil {
		s.logger.Warn("some commands failed", "customer", key, "error", execErr)
	}
	s.executor.MarkAsRead(ctx, key, req.MessageID)

	out.To = result.Phase.Kind()
	out.Sent = sent
	out.Iterations = result.Iterations
	out.EscalationReason = result.EscalationReason
	s.events.TurnCompleted(ctx, key, result.Phase, sent, result.EscalationReason, s.now().Sub(start))
	return out, nil
}

func (s *Service) expired(meta Metadata, now time.Time) bool {
	if s.cfg.SessionTTL <= 0 || meta.LastActivityAt.IsZero() {
		return false
	}
	return now.Sub(meta.LastActivityAt) > s.cfg.SessionTTL
}

// backlogApology returns an apology when the turn waited longer than the
// backlog threshold before reaching us.
func (s *Service) backlogApology(ctx context.Context, key string, meta Metadata, received, now time.Time) (Command, bool) {
	if s.cfg.BacklogThreshold <= 0 || received.IsZero() {
		return nil, false
	}
	delay := now.Sub(received)
	if delay <= s.cfg.BacklogThreshold {
		return nil, false
	}
	res := s.loop.execute(ctx, key, GenerateBacklogApologyRequest{Name: firstName(meta.Name), Delay: delay})
	if generated, ok := res.(BacklogApologyGenerated); ok && strings.TrimSpace(generated.Text) != "" {
		return SendText{Text: strings.TrimSpace(generated.Text)}, true
	}
	return text(TplBacklogApology, nil), true
}

func (s *Service) syncParking(ctx context.Context, key string, from, to Phase) {
	if s.parking == nil {
		return
	}
	if waiting, ok := to.(WaitingForRecovery); ok {
		if err := s.parking.Park(ctx, key, waiting.DNI); err != nil {
			s.logger.Warn("failed to park customer", "customer", key, "error", err)
		}
		return
	}
	if _, ok := from.(WaitingForRecovery); ok {
		if err := s.parking.Unpark(ctx, key); err != nil {
			s.logger.Warn("failed to unpark customer", "customer", key, "error", err)
		}
	}
}
