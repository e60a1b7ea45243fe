package bootstrap

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/creditsales-ai-platform/internal/config"
	"github.com/wolfman30/creditsales-ai-platform/internal/conversation"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const memoryQueueBuffer = 256

// TurnJobs is the turn status store seen by publishers, workers and admins.
type TurnJobs interface {
	conversation.TurnRecorder
	conversation.TurnUpdater
}

// TurnQueue bundles the publish and consume sides of the turn queue.
type TurnQueue struct {
	Publisher *conversation.Publisher
	Jobs      TurnJobs
	Memory    bool

	newWorker func(conversation.TurnProcessor, ...conversation.WorkerOption) *conversation.Worker
}

// Worker builds a consumer over the same queue the publisher writes to.
func (q *TurnQueue) Worker(processor conversation.TurnProcessor, opts ...conversation.WorkerOption) *conversation.Worker {
	return q.newWorker(processor, opts...)
}

// BuildTurnQueue returns an in-process queue when USE_MEMORY_QUEUE is set and
// SQS plus a DynamoDB status table otherwise.
func BuildTurnQueue(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*TurnQueue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if cfg.UseMemoryQueue {
		queue := conversation.NewMemoryQueue(memoryQueueBuffer)
		jobs := conversation.NewMemoryTurnStore()
		logger.Info("using in-memory turn queue")
		return &TurnQueue{
			Publisher: conversation.NewPublisher(queue, jobs, logger),
			Jobs:      jobs,
			Memory:    true,
			newWorker: func(p conversation.TurnProcessor, opts ...conversation.WorkerOption) *conversation.Worker {
				return conversation.NewWorker(p, queue, jobs, logger, opts...)
			},
		}, nil
	}

	if cfg.ConversationQueueURL == "" {
		return nil, fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required without USE_MEMORY_QUEUE")
	}
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL,
		conversation.WithVisibilityTimeout(turnVisibility(cfg)),
	)
	jobs := conversation.NewTurnStore(dynamodb.NewFromConfig(awsCfg), cfg.TurnJobsTable, logger)
	logger.Info("using sqs turn queue", "queue_url", cfg.ConversationQueueURL, "jobs_table", cfg.TurnJobsTable)
	return &TurnQueue{
		Publisher: conversation.NewPublisher(queue, jobs, logger),
		Jobs:      jobs,
		newWorker: func(p conversation.TurnProcessor, opts ...conversation.WorkerOption) *conversation.Worker {
			return conversation.NewWorker(p, queue, jobs, logger, opts...)
		},
	}, nil
}

// turnVisibility is the longest a worker may hold a job: waiting for the
// customer lock, then one LLM call and one provider round.
func turnVisibility(cfg *appconfig.Config) time.Duration {
	return cfg.LockTimeout + cfg.LLMTimeout + cfg.ProviderTimeout + 30*time.Second
}
