package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// Alert is one operator-facing notification built from a conversation event.
type Alert struct {
	Type        string
	Severity    string
	CustomerKey string
	Summary     string
	Details     [][2]string
	OccurredAt  time.Time
}

// Service turns conversation events into operator emails. It is both an
// outbox DeliveryHandler and, for deployments without Postgres, an Emitter.
type Service struct {
	email       EmailSender
	recipients  []string
	minSeverity string
	logger      *logging.Logger
	sendTimeout time.Duration
}

type Option func(*Service)

// WithMinSeverity drops alerts below the given severity. Default is warning.
func WithMinSeverity(severity string) Option {
	return func(s *Service) {
		if severityRank(severity) >= 0 {
			s.minSeverity = severity
		}
	}
}

func NewService(email EmailSender, recipients []string, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		email:       email,
		recipients:  recipients,
		minSeverity: events.SeverityWarning,
		logger:      logger,
		sendTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ events.DeliveryHandler = (*Service)(nil)
var _ events.Emitter = (*Service)(nil)

// Handle delivers one outbox entry. Entries that are not operator-facing
// are acknowledged without sending anything.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	alert, ok, err := BuildAlert(entry.Type, entry.CustomerKey, entry.Payload)
	if err != nil {
		// A payload we cannot decode will never decode; do not block the outbox on it.
		s.logger.Error("notify: undecodable event payload", "error", err, "type", entry.Type, "event_id", entry.ID)
		return nil
	}
	if !ok {
		return nil
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = entry.CreatedAt
	}
	return s.Notify(ctx, alert)
}

// Emit sends the alert in the background. Failures are logged only.
func (s *Service) Emit(ctx context.Context, eventType string, customerKey string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("notify: event payload not serializable", "error", err, "type", eventType)
		return
	}
	alert, ok, err := BuildAlert(eventType, customerKey, raw)
	if err != nil || !ok {
		return
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sendTimeout)
		defer cancel()
		if err := s.Notify(sendCtx, alert); err != nil {
			s.logger.Error("notify: operator alert failed", "error", err, "type", eventType, "customer", customerKey)
		}
	}()
}

// Notify emails every recipient. Alerts below the minimum severity are skipped.
func (s *Service) Notify(ctx context.Context, alert Alert) error {
	if severityRank(alert.Severity) < severityRank(s.minSeverity) {
		s.logger.Debug("notify: alert below threshold", "type", alert.Type, "severity", alert.Severity)
		return nil
	}
	if s.email == nil || len(s.recipients) == 0 {
		s.logger.Warn("notify: no operator channel configured", "type", alert.Type, "severity", alert.Severity, "customer", alert.CustomerKey)
		return nil
	}

	msg := EmailMessage{
		Subject:  subjectFor(alert),
		Body:     textBody(alert),
		HTML:     htmlBody(alert),
		Severity: alert.Severity,
	}
	var errs []error
	for _, recipient := range s.recipients {
		msg.To = recipient
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send email", "error", err, "to", recipient)
			errs = append(errs, err)
			continue
		}
		s.logger.Info("notify: operator alerted", "to", recipient, "type", alert.Type, "customer", alert.CustomerKey)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d of %d emails failed: %w", len(errs), len(s.recipients), errors.Join(errs...))
	}
	return nil
}

// BuildAlert decodes an event payload into an Alert. ok is false for event
// types operators are not paged about.
func BuildAlert(eventType, customerKey string, payload json.RawMessage) (Alert, bool, error) {
	alert := Alert{Type: eventType, Severity: events.SeverityFor(eventType), CustomerKey: customerKey}
	switch eventType {
	case events.SystemOutageDetected:
		var evt events.OutageDetectedV1
		if err := json.Unmarshal(payload, &evt); err != nil {
			return Alert{}, false, err
		}
		alert.Summary = "Ningún proveedor de elegibilidad respondió"
		for _, f := range evt.Failures {
			alert.Details = append(alert.Details, [2]string{f.Provider, failureText(f)})
		}
		alert.OccurredAt = evt.DetectedAt
	case events.ProviderDegraded:
		var evt events.ProviderDegradedV1
		if err := json.Unmarshal(payload, &evt); err != nil {
			return Alert{}, false, err
		}
		alert.Summary = fmt.Sprintf("Proveedor %s degradado, respondió %s", evt.Failure.Provider, evt.AnsweredBy)
		alert.Details = [][2]string{{evt.Failure.Provider, failureText(evt.Failure)}}
		alert.OccurredAt = evt.DetectedAt
	case events.EscalationTriggered:
		var evt events.EscalationTriggeredV1
		if err := json.Unmarshal(payload, &evt); err != nil {
			return Alert{}, false, err
		}
		alert.Summary = "Conversación derivada a un asesor"
		alert.Details = [][2]string{{"motivo", evt.Reason}, {"fase", evt.Phase}}
		alert.OccurredAt = evt.OccurredAt
	case events.EnrichmentLoopExceeded:
		var evt events.EnrichmentLoopExceededV1
		if err := json.Unmarshal(payload, &evt); err != nil {
			return Alert{}, false, err
		}
		alert.Summary = "Límite de enriquecimientos alcanzado"
		alert.Details = [][2]string{
			{"fase", evt.Phase},
			{"iteraciones", fmt.Sprint(evt.Iterations)},
			{"último", evt.LastKind},
		}
		alert.OccurredAt = evt.OccurredAt
	case events.OperatorNotified:
		var evt events.OperatorNotifiedV1
		if err := json.Unmarshal(payload, &evt); err != nil {
			return Alert{}, false, err
		}
		if evt.Severity != "" {
			alert.Severity = evt.Severity
		}
		alert.Summary = evt.Reason
		alert.Details = [][2]string{{"fase", evt.Phase}}
		alert.OccurredAt = evt.OccurredAt
	case events.TurnDropped:
		var evt events.TurnDroppedV1
		if err := json.Unmarshal(payload, &evt); err != nil {
			return Alert{}, false, err
		}
		alert.Summary = "Mensaje de cliente descartado"
		alert.Details = [][2]string{{"motivo", evt.Reason}, {"mensaje", evt.MessageID}}
		alert.OccurredAt = evt.OccurredAt
	default:
		return Alert{}, false, nil
	}
	return alert, true, nil
}

func failureText(f events.ProviderFailure) string {
	if f.Error == "" {
		return f.Category
	}
	return f.Category + ": " + f.Error
}

func subjectFor(a Alert) string {
	return fmt.Sprintf("[%s] %s - %s", strings.ToUpper(a.Severity), a.Summary, a.CustomerKey)
}

func textBody(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nCliente: %s\nEvento: %s\nSeveridad: %s\n", a.Summary, a.CustomerKey, a.Type, a.Severity)
	if !a.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "Hora: %s\n", a.OccurredAt.UTC().Format(time.RFC3339))
	}
	for _, d := range a.Details {
		if d[1] == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", d[0], d[1])
	}
	return b.String()
}

func htmlBody(a Alert) string {
	var rows strings.Builder
	row := func(k, v string) {
		if v == "" {
			return
		}
		fmt.Fprintf(&rows, `<tr><td style="padding: 6px;"><strong>%s</strong></td><td style="padding: 6px;">%s</td></tr>`,
			html.EscapeString(k), html.EscapeString(v))
	}
	row("Cliente", a.CustomerKey)
	row("Evento", a.Type)
	row("Severidad", a.Severity)
	for _, d := range a.Details {
		row(d[0], d[1])
	}
	return fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: %s;">%s</h2>
<table style="border-collapse: collapse;">%s</table>
</div>`, severityColor(a.Severity), html.EscapeString(a.Summary), rows.String())
}

func severityRank(severity string) int {
	switch severity {
	case events.SeverityInfo:
		return 0
	case events.SeverityWarning:
		return 1
	case events.SeverityHigh:
		return 2
	case events.SeverityCritical:
		return 3
	default:
		return -1
	}
}

func severityColor(severity string) string {
	switch severity {
	case events.SeverityCritical:
		return "#dc2626"
	case events.SeverityHigh:
		return "#ea580c"
	case events.SeverityWarning:
		return "#ca8a04"
	default:
		return "#2563eb"
	}
}
