package whatsapp

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/internal/aggregator"
	"github.com/wolfman30/creditsales-ai-platform/internal/conversation"
	"github.com/wolfman30/creditsales-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const channelName = "whatsapp"

// TurnPublisher hands flushed turns to the conversation workers.
type TurnPublisher interface {
	EnqueueTurn(ctx context.Context, turn conversation.TurnRequest, opts ...conversation.PublishOption) (string, error)
}

// Deduper records inbound message ids; false means the id was seen before.
type Deduper interface {
	MarkProcessed(ctx context.Context, channel, messageID string) (bool, error)
}

// Buffer debounces message fragments per customer.
type Buffer interface {
	Add(key, text string, ts time.Time, messageID string, onFlush aggregator.FlushFunc)
}

type AdapterConfig struct {
	AppSecret   string
	VerifyToken string
	Publisher   TurnPublisher
	Dedupe      Deduper
	Buffer      Buffer
	Metrics     *metrics.MessagingMetrics
	Logger      *logging.Logger
}

// Adapter connects the WhatsApp webhook to the conversation pipeline:
// dedupe, then aggregate, then enqueue.
type Adapter struct {
	webhook   *WebhookHandler
	publisher TurnPublisher
	dedupe    Deduper
	buffer    Buffer
	metrics   *metrics.MessagingMetrics
	logger    *logging.Logger
}

func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.Publisher == nil {
		panic("whatsapp: publisher cannot be nil")
	}
	if cfg.Buffer == nil {
		panic("whatsapp: buffer cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	a := &Adapter{
		publisher: cfg.Publisher,
		dedupe:    cfg.Dedupe,
		buffer:    cfg.Buffer,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	a.webhook = NewWebhookHandler(cfg.VerifyToken, cfg.AppSecret, a.handleMessage)
	return a
}

// HandleVerification handles GET /webhooks/whatsapp.
func (a *Adapter) HandleVerification(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleVerification(w, r)
}

// HandleWebhook handles POST /webhooks/whatsapp.
func (a *Adapter) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleInbound(w, r)
}

func (a *Adapter) handleMessage(ctx context.Context, msg InboundMessage) {
	start := time.Now()
	defer func() {
		a.metrics.ObserveWebhookLatency(msg.Type, time.Since(start).Seconds())
	}()
	if a.dedupe != nil && msg.MessageID != "" {
		fresh, err := a.dedupe.MarkProcessed(ctx, channelName, msg.MessageID)
		if err != nil {
			a.logger.Warn("whatsapp: dedupe check failed", "error", err, "message_id", msg.MessageID)
		} else if !fresh {
			a.logger.Debug("whatsapp: duplicate delivery ignored", "message_id", msg.MessageID)
			a.metrics.ObserveInbound(msg.Type, "duplicate")
			return
		}
	}
	a.logger.Debug("whatsapp: inbound message", "customer", msg.From, "type", msg.Type, "message_id", msg.MessageID)
	a.metrics.ObserveInbound(msg.Type, "accepted")
	a.buffer.Add(msg.From, msg.Text, msg.Timestamp, msg.MessageID, a.flush)
}

func (a *Adapter) flush(turn aggregator.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	jobID, err := a.publisher.EnqueueTurn(ctx, conversation.TurnRequest{
		CustomerKey: turn.CustomerKey,
		Text:        turn.Text,
		Timestamp:   turn.Timestamp,
		MessageID:   turn.MessageID,
		Fragments:   turn.Fragments,
	})
	if err != nil {
		a.logger.Error("whatsapp: failed to enqueue turn", "error", err, "customer", turn.CustomerKey)
		return
	}
	a.logger.Info("whatsapp: turn enqueued", "job_id", jobID, "customer", turn.CustomerKey, "fragments", turn.Fragments)
}
