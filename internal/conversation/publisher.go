package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// Publisher enqueues aggregated turns for the workers.
type Publisher struct {
	queue  queueClient
	jobs   TurnRecorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher. jobs may be nil.
func NewPublisher(queue queueClient, jobs TurnRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, logger: logger}
}

// EnqueueTurn publishes one turn and returns its job id.
func (p *Publisher) EnqueueTurn(ctx context.Context, turn TurnRequest, opts ...PublishOption) (string, error) {
	payload := queuePayload{Kind: jobTypeTurn, Turn: turn, TrackStatus: p.jobs != nil}
	for _, opt := range opts {
		opt(&payload)
	}
	payload, body, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	if payload.TrackStatus {
		record := &TurnRecord{JobID: payload.ID, CustomerKey: turn.CustomerKey, MessageID: turn.MessageID}
		if err := p.jobs.PutPending(ctx, record); err != nil {
			p.logger.Warn("failed to record pending turn", "job_id", payload.ID, "customer", turn.CustomerKey, "error", err)
		}
	}

	if err := p.queue.Send(ctx, turn.CustomerKey, body); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue turn: %w", err)
	}

	p.logger.Debug("conversation turn enqueued", "job_id", payload.ID, "customer", turn.CustomerKey, "fragments", turn.Fragments)
	return payload.ID, nil
}
