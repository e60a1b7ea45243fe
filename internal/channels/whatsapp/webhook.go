package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxWebhookBody = 1 << 20

// WebhookHandler handles Meta webhook verification and inbound messages.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	onMessage   func(ctx context.Context, msg InboundMessage)
}

// NewWebhookHandler calls onMessage for each parsed customer message.
func NewWebhookHandler(verifyToken, appSecret string, onMessage func(context.Context, InboundMessage)) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		onMessage:   onMessage,
	}
}

// HandleVerification answers the GET subscription challenge.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && h.verifyToken != "" && q.Get("hub.verify_token") == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, q.Get("hub.challenge"))
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POSTed webhook events.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Meta retries anything that is not a fast 200.
	w.WriteHeader(http.StatusOK)

	if h.onMessage == nil {
		return
	}
	for _, msg := range ParseWebhook(payload) {
		h.onMessage(r.Context(), msg)
	}
}

// ParseWebhook extracts customer messages. Delivery statuses and messages
// with no readable text are skipped.
func ParseWebhook(payload WebhookPayload) []InboundMessage {
	var out []InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				text := messageText(m)
				if text == "" || m.From == "" {
					continue
				}
				out = append(out, InboundMessage{
					From:        m.From,
					ProfileName: names[m.From],
					Text:        text,
					MessageID:   m.ID,
					Type:        m.Type,
					Timestamp:   parseTimestamp(m.Timestamp),
				})
			}
		}
	}
	return out
}

func messageText(m Message) string {
	switch {
	case m.Text != nil:
		return strings.TrimSpace(m.Text.Body)
	case m.Button != nil:
		return strings.TrimSpace(m.Button.Text)
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return strings.TrimSpace(m.Interactive.ButtonReply.Title)
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return strings.TrimSpace(m.Interactive.ListReply.Title)
	case m.Image != nil:
		return strings.TrimSpace(m.Image.Caption)
	}
	return ""
}

func parseTimestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now()
	}
	return time.Unix(secs, 0)
}

// VerifySignature checks the X-Hub-Signature-256 header ("sha256=<hex>").
func VerifySignature(appSecret string, body []byte, signature string) bool {
	const prefix = "sha256="
	if appSecret == "" || !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature[len(prefix):]))
}
