package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// queueClient moves turn jobs between the webhook side and the workers.
// groupKey keeps one customer's jobs ordered on FIFO queues.
type queueClient interface {
	Send(ctx context.Context, groupKey, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const (
	jobTypeTurn jobType = "turn"
)

type queuePayload struct {
	ID          string      `json:"id"`
	Kind        jobType     `json:"kind"`
	Turn        TurnRequest `json:"turn"`
	TrackStatus bool        `json:"track_status"`
}

type PublishOption func(*queuePayload)

// WithoutJobTracking skips the turn status ledger for this job.
func WithoutJobTracking() PublishOption {
	return func(p *queuePayload) {
		p.TrackStatus = false
	}
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.Kind == "" {
		payload.Kind = jobTypeTurn
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("conversation: failed to decode payload: %w", err)
	}
	if payload.Kind != jobTypeTurn {
		return queuePayload{}, fmt.Errorf("conversation: unsupported job kind %q", payload.Kind)
	}
	if payload.Turn.CustomerKey == "" {
		return queuePayload{}, fmt.Errorf("conversation: job %s has no customer", payload.ID)
	}
	return payload, nil
}
