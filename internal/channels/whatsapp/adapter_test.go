package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/internal/aggregator"
	"github.com/wolfman30/creditsales-ai-platform/internal/conversation"
	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

type stubPublisher struct {
	mu    sync.Mutex
	turns []conversation.TurnRequest
	done  chan struct{}
}

func (s *stubPublisher) EnqueueTurn(_ context.Context, turn conversation.TurnRequest, _ ...conversation.PublishOption) (string, error) {
	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.mu.Unlock()
	s.done <- struct{}{}
	return "job-1", nil
}

func TestAdapterAggregatesAndEnqueues(t *testing.T) {
	pub := &stubPublisher{done: make(chan struct{}, 1)}
	adapter := NewAdapter(AdapterConfig{
		AppSecret:   "secret",
		VerifyToken: "verify",
		Publisher:   pub,
		Dedupe:      events.NewMemoryProcessedStore(100),
		Buffer:      aggregator.New(20*time.Millisecond, logging.Nop()),
		Logger:      logging.Nop(),
	})

	post := func() {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(sampleWebhook))
		req.Header.Set("X-Hub-Signature-256", sign("secret", sampleWebhook))
		rec := httptest.NewRecorder()
		adapter.HandleWebhook(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	post()
	// Meta redelivery of the same payload must not add fragments.
	post()

	select {
	case <-pub.done:
	case <-time.After(time.Second):
		t.Fatal("expected a flushed turn")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(pub.turns))
	}
	turn := pub.turns[0]
	if turn.CustomerKey != "51999000111" || turn.Text != "hola Sí" || turn.Fragments != 2 {
		t.Fatalf("unexpected turn %+v", turn)
	}
	if turn.MessageID != "wamid.2" {
		t.Fatalf("expected latest message id, got %s", turn.MessageID)
	}
	if !turn.Timestamp.Equal(time.Unix(1760000000, 0)) {
		t.Fatalf("expected earliest timestamp, got %v", turn.Timestamp)
	}
}
