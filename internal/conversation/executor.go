package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// Messenger delivers outbound messages to a customer's chat.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, path, caption string) error
	MarkAsRead(ctx context.Context, messageID string) error
}

// TemplateRenderer turns a template key and its variables into message text.
type TemplateRenderer interface {
	Render(key string, vars map[string]string) (string, error)
}

// CommandExecutor carries out the commands produced by a loop run.
type CommandExecutor struct {
	messenger Messenger
	renderer  TemplateRenderer
	emitter   events.Emitter
	logger    *logging.Logger
	events    *EventLogger
	metrics   *metrics.MessagingMetrics
	now       func() time.Time
}

// ExecutorOption customizes a CommandExecutor.
type ExecutorOption func(*CommandExecutor)

func WithExecutorMetrics(m *metrics.MessagingMetrics) ExecutorOption {
	return func(x *CommandExecutor) {
		x.metrics = m
	}
}

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(x *CommandExecutor) {
		if now != nil {
			x.now = now
		}
	}
}

// NewCommandExecutor wires the messenger, template catalog and event sink.
func NewCommandExecutor(messenger Messenger, renderer TemplateRenderer, emitter events.Emitter, logger *logging.Logger, opts ...ExecutorOption) *CommandExecutor {
	if messenger == nil {
		panic("conversation: messenger cannot be nil")
	}
	if renderer == nil {
		panic("conversation: template renderer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if emitter == nil {
		emitter = events.NewLogEmitter(logger)
	}
	x := &CommandExecutor{
		messenger: messenger,
		renderer:  renderer,
		emitter:   emitter,
		logger:    logger,
		events:    NewEventLogger(logger),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute runs cmds in order. A failed command does not stop the rest; the
// returned count is the number of messages that reached the customer.
func (x *CommandExecutor) Execute(ctx context.Context, customerKey string, phase Phase, cmds []Command) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, cmd := range cmds {
		delivered, err := x.execute(ctx, customerKey, phase, cmd)
		if err != nil {
			x.events.CommandFailed(ctx, customerKey, phase, CommandName(cmd), err)
			errs = append(errs, fmt.Errorf("conversation: %s: %w", CommandName(cmd), err))
			continue
		}
		if delivered {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

func (x *CommandExecutor) execute(ctx context.Context, customerKey string, phase Phase, cmd Command) (bool, error) {
	switch c := cmd.(type) {
	case SendText:
		body := c.Text
		if c.Template != "" {
			rendered, err := x.renderer.Render(c.Template, c.Vars)
			if err != nil {
				return false, err
			}
			body = rendered
		}
		if body == "" {
			return false, nil
		}
		err := x.messenger.SendText(ctx, customerKey, body)
		x.metrics.ObserveOutbound("text", err == nil)
		return err == nil, err
	case SendImage:
		err := x.messenger.SendImage(ctx, customerKey, c.Path, c.Caption)
		x.metrics.ObserveOutbound("image", err == nil)
		return err == nil, err
	case Track:
		x.emitter.Emit(ctx, events.CustomerTracked, customerKey, events.CustomerTrackedV1{
			CustomerKey: customerKey,
			Event:       c.Event,
			Props:       c.Props,
			Phase:       phaseName(phase),
			OccurredAt:  x.now().UTC(),
		})
		return false, nil
	case NotifyTeam:
		x.emitter.Emit(ctx, events.OperatorNotified, customerKey, events.OperatorNotifiedV1{
			CustomerKey: customerKey,
			Reason:      c.Reason,
			Severity:    c.Severity,
			Phase:       phaseName(phase),
			OccurredAt:  x.now().UTC(),
		})
		return false, nil
	case EscalateHandoff:
		// escalation_triggered was already emitted by the loop.
		x.logger.Info("conversation handed to agent", "customer", customerKey, "reason", c.Reason)
		return false, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %T", cmd)
	}
}

// MarkAsRead acknowledges the inbound message. Failures are logged only.
func (x *CommandExecutor) MarkAsRead(ctx context.Context, customerKey, messageID string) {
	if messageID == "" {
		return
	}
	err := x.messenger.MarkAsRead(ctx, messageID)
	x.metrics.ObserveOutbound("read", err == nil)
	if err != nil {
		x.logger.Warn("failed to mark message as read", "customer", customerKey, "message_id", messageID, "error", err)
	}
}

func phaseName(p Phase) string {
	if p == nil {
		return ""
	}
	return string(p.Kind())
}
