package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// TurnEvent is one line in the conversation trail. All events share the
// same base fields so they can be filtered with grep:
//
//	grep '"event":"phase_transition"' /var/log/app.log
//	grep '"customer":"51999888777"' /var/log/app.log
type TurnEvent struct {
	Time     string         `json:"time"`
	Event    string         `json:"event"`
	Customer string         `json:"customer"`
	Phase    string         `json:"phase,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// EventLogger writes TurnEvents as JSON through the application logger.
type EventLogger struct {
	logger *logging.Logger
	now    func() time.Time
}

func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger, now: time.Now}
}

func (e *EventLogger) Log(_ context.Context, event, customer string, phase Phase, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	evt := TurnEvent{
		Time:     e.now().UTC().Format(time.RFC3339Nano),
		Event:    event,
		Customer: customer,
		Data:     data,
	}
	if phase != nil {
		evt.Phase = string(phase.Kind())
	}
	b, _ := json.Marshal(evt)
	e.logger.Info(string(b))
}

func (e *EventLogger) TurnStarted(ctx context.Context, customer string, phase Phase, message string, fragments int) {
	msg := message
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	e.Log(ctx, "turn_started", customer, phase, map[string]any{
		"message":   msg,
		"fragments": fragments,
	})
}

func (e *EventLogger) PhaseTransition(ctx context.Context, customer string, from, to Phase) {
	if from != nil && to != nil && from.Kind() == to.Kind() {
		return
	}
	data := map[string]any{}
	if to != nil {
		data["to"] = string(to.Kind())
	}
	e.Log(ctx, "phase_transition", customer, from, data)
}

func (e *EventLogger) EnrichmentRequested(ctx context.Context, customer string, phase Phase, kinds []EnrichmentKind) {
	if len(kinds) == 0 {
		return
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	e.Log(ctx, "enrichment_requested", customer, phase, map[string]any{"kinds": names})
}

func (e *EventLogger) SessionExpired(ctx context.Context, customer string, idle time.Duration) {
	e.Log(ctx, "session_expired", customer, nil, map[string]any{"idle_seconds": int(idle.Seconds())})
}

func (e *EventLogger) CommandFailed(ctx context.Context, customer string, phase Phase, command string, err error) {
	e.Log(ctx, "command_failed", customer, phase, map[string]any{"command": command, "error": err.Error()})
}

func (e *EventLogger) TurnCompleted(ctx context.Context, customer string, phase Phase, outbound int, escalation string, duration time.Duration) {
	data := map[string]any{
		"outbound":    outbound,
		"duration_ms": duration.Milliseconds(),
	}
	if escalation != "" {
		data["escalation"] = escalation
	}
	e.Log(ctx, "turn_completed", customer, phase, data)
}
