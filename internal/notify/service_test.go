package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

type mockEmailSender struct {
	mu     sync.Mutex
	sent   []EmailMessage
	failOn string
	done   chan struct{}
}

func (m *mockEmailSender) Send(_ context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && msg.To == m.failOn {
		return errors.New("mock email error")
	}
	m.sent = append(m.sent, msg)
	if m.done != nil {
		m.done <- struct{}{}
	}
	return nil
}

func (m *mockEmailSender) messages() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailMessage(nil), m.sent...)
}

func outboxEntry(t *testing.T, eventType, customer string, payload any) events.OutboxEntry {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return events.OutboxEntry{ID: uuid.New(), CustomerKey: customer, Type: eventType, Payload: raw, CreatedAt: time.Now()}
}

func TestHandle_OutageIsCritical(t *testing.T) {
	sender := &mockEmailSender{}
	svc := NewService(sender, []string{"ops@example.com", "lead@example.com"}, logging.Nop())

	entry := outboxEntry(t, events.SystemOutageDetected, "51999000111", events.OutageDetectedV1{
		CustomerKey: "51999000111",
		Failures: []events.ProviderFailure{
			{Provider: "fnb", Category: "timeout"},
			{Provider: "gaso", Category: "server_error", Error: "status 503"},
		},
		DetectedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	sent := sender.messages()
	if len(sent) != 2 {
		t.Fatalf("expected one email per recipient, got %d", len(sent))
	}
	if !strings.HasPrefix(sent[0].Subject, "[CRITICAL]") {
		t.Fatalf("expected critical subject, got %q", sent[0].Subject)
	}
	for _, want := range []string{"fnb: timeout", "gaso: server_error: status 503", "2026-03-01T10:00:00Z"} {
		if !strings.Contains(sent[0].Body, want) {
			t.Fatalf("expected body to contain %q:\n%s", want, sent[0].Body)
		}
	}
}

func TestHandle_SeverityMapping(t *testing.T) {
	cases := []struct {
		eventType string
		payload   any
		want      string
	}{
		{events.EscalationTriggered, events.EscalationTriggeredV1{Reason: "no_products"}, "[HIGH]"},
		{events.EnrichmentLoopExceeded, events.EnrichmentLoopExceededV1{Iterations: 10}, "[HIGH]"},
		{events.ProviderDegraded, events.ProviderDegradedV1{Failure: events.ProviderFailure{Provider: "fnb"}, AnsweredBy: "gaso"}, "[WARNING]"},
		{events.OperatorNotified, events.OperatorNotifiedV1{Reason: "cliente molesto", Severity: events.SeverityCritical}, "[CRITICAL]"},
	}
	for _, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			sender := &mockEmailSender{}
			svc := NewService(sender, []string{"ops@example.com"}, logging.Nop())
			if err := svc.Handle(context.Background(), outboxEntry(t, tc.eventType, "c1", tc.payload)); err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			sent := sender.messages()
			if len(sent) != 1 || !strings.HasPrefix(sent[0].Subject, tc.want) {
				t.Fatalf("expected subject prefix %s, got %+v", tc.want, sent)
			}
		})
	}
}

func TestHandle_SkipsNonOperatorEvents(t *testing.T) {
	sender := &mockEmailSender{}
	svc := NewService(sender, []string{"ops@example.com"}, logging.Nop())

	entry := outboxEntry(t, events.CustomerTracked, "c1", events.CustomerTrackedV1{Event: "dni_received"})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(sender.messages()) != 0 {
		t.Fatal("tracking events must not page operators")
	}
}

func TestHandle_MinSeverityFilters(t *testing.T) {
	sender := &mockEmailSender{}
	svc := NewService(sender, []string{"ops@example.com"}, logging.Nop(), WithMinSeverity(events.SeverityHigh))

	entry := outboxEntry(t, events.ProviderDegraded, "c1", events.ProviderDegradedV1{AnsweredBy: "gaso"})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(sender.messages()) != 0 {
		t.Fatal("warning alert should be filtered at high threshold")
	}
}

func TestHandle_UndecodablePayloadIsAcknowledged(t *testing.T) {
	sender := &mockEmailSender{}
	svc := NewService(sender, []string{"ops@example.com"}, logging.Nop())

	entry := events.OutboxEntry{ID: uuid.New(), Type: events.SystemOutageDetected, Payload: json.RawMessage(`"nope"`)}
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("expected bad payload to be acknowledged, got %v", err)
	}
}

func TestNotify_ReportsPartialFailure(t *testing.T) {
	sender := &mockEmailSender{failOn: "broken@example.com"}
	svc := NewService(sender, []string{"ops@example.com", "broken@example.com"}, logging.Nop())

	err := svc.Notify(context.Background(), Alert{Type: events.EscalationTriggered, Severity: events.SeverityHigh, Summary: "x"})
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("expected partial failure error, got %v", err)
	}
	if len(sender.messages()) != 1 {
		t.Fatalf("expected the healthy recipient to be emailed")
	}
}

func TestNotify_NoRecipientsIsNoop(t *testing.T) {
	svc := NewService(nil, nil, logging.Nop())
	if err := svc.Notify(context.Background(), Alert{Severity: events.SeverityCritical}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestEmit_SendsInBackground(t *testing.T) {
	sender := &mockEmailSender{done: make(chan struct{}, 1)}
	svc := NewService(sender, []string{"ops@example.com"}, logging.Nop())

	svc.Emit(context.Background(), events.EscalationTriggered, "c1", events.EscalationTriggeredV1{Reason: "customer_requested"})

	select {
	case <-sender.done:
	case <-time.After(time.Second):
		t.Fatal("expected alert to be sent")
	}
	if !strings.Contains(sender.messages()[0].HTML, "customer_requested") {
		t.Fatalf("expected reason in html body")
	}
}

func TestBuildAlert_EscapesHTML(t *testing.T) {
	alert, ok, err := BuildAlert(events.OperatorNotified, "c1", json.RawMessage(`{"reason":"<script>","severity":"high"}`))
	if err != nil || !ok {
		t.Fatalf("BuildAlert: ok=%v err=%v", ok, err)
	}
	if strings.Contains(htmlBody(alert), "<script>") {
		t.Fatal("expected html to be escaped")
	}
}
