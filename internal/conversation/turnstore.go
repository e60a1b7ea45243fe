package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const turnJobTTL = 24 * time.Hour

// JobStatus represents the lifecycle of a queued turn.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("conversation: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// TurnRecord is the status ledger entry for one queued turn.
type TurnRecord struct {
	JobID        string       `dynamodbav:"jobId" json:"jobId"`
	Status       JobStatus    `dynamodbav:"status" json:"status"`
	CustomerKey  string       `dynamodbav:"customerKey" json:"customerKey"`
	MessageID    string       `dynamodbav:"messageId,omitempty" json:"messageId,omitempty"`
	Outcome      *TurnOutcome `dynamodbav:"outcome,omitempty" json:"outcome,omitempty"`
	ErrorMessage string       `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    string       `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt    string       `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt    int64        `dynamodbav:"expiresAt,omitempty" json:"-"`
}

type TurnRecorder interface {
	PutPending(ctx context.Context, job *TurnRecord) error
	GetJob(ctx context.Context, jobID string) (*TurnRecord, error)
}

type TurnUpdater interface {
	MarkCompleted(ctx context.Context, jobID string, outcome TurnOutcome) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// TurnStore persists turn records to DynamoDB with a TTL attribute.
type TurnStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	now       func() time.Time
}

var _ TurnRecorder = (*TurnStore)(nil)
var _ TurnUpdater = (*TurnStore)(nil)

func NewTurnStore(client dynamoAPI, tableName string, logger *logging.Logger) *TurnStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TurnStore{client: client, tableName: tableName, logger: logger, now: time.Now}
}

// PutPending inserts a new pending record; an existing job id is an error.
func (s *TurnStore) PutPending(ctx context.Context, job *TurnRecord) error {
	if job == nil {
		return errors.New("conversation: job cannot be nil")
	}
	now := s.now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(turnJobTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal job: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to persist job: %w", err)
	}
	return nil
}

func (s *TurnStore) MarkCompleted(ctx context.Context, jobID string, outcome TurnOutcome) error {
	if jobID == "" {
		return errors.New("conversation: jobID required")
	}
	outcomeAttr, err := attributevalue.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal outcome: %w", err)
	}
	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
			":outcome": outcomeAttr,
			":error":   &types.AttributeValueMemberS{Value: ""},
			":updated": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
		},
		"SET #status = :status, outcome = :outcome, #error = :error, #updated = :updated",
	)
}

func (s *TurnStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("conversation: jobID required")
	}
	return s.updateJob(ctx, jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":outcome": &types.AttributeValueMemberNULL{Value: true},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
		},
		"SET #status = :status, outcome = :outcome, #error = :error, #updated = :updated",
	)
}

func (s *TurnStore) GetJob(ctx context.Context, jobID string) (*TurnRecord, error) {
	if jobID == "" {
		return nil, errors.New("conversation: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}
	var job TurnRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode job: %w", err)
	}
	return &job, nil
}

func (s *TurnStore) updateJob(ctx context.Context, jobID string, values map[string]types.AttributeValue, expression string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression: aws.String(expression),
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to update job %s: %w", jobID, err)
	}
	return nil
}

// MemoryTurnStore keeps turn records in process for single-node runs.
type MemoryTurnStore struct {
	mu   sync.Mutex
	jobs map[string]TurnRecord
}

func NewMemoryTurnStore() *MemoryTurnStore {
	return &MemoryTurnStore{jobs: make(map[string]TurnRecord)}
}

func (m *MemoryTurnStore) PutPending(_ context.Context, job *TurnRecord) error {
	if job == nil {
		return errors.New("conversation: job cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.JobID]; exists {
		return fmt.Errorf("conversation: job %s already exists", job.JobID)
	}
	job.Status = JobStatusPending
	m.jobs[job.JobID] = *job
	return nil
}

func (m *MemoryTurnStore) GetJob(_ context.Context, jobID string) (*TurnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (m *MemoryTurnStore) MarkCompleted(_ context.Context, jobID string, outcome TurnOutcome) error {
	return m.update(jobID, func(job *TurnRecord) {
		job.Status = JobStatusCompleted
		job.Outcome = &outcome
	})
}

func (m *MemoryTurnStore) MarkFailed(_ context.Context, jobID string, errMsg string) error {
	return m.update(jobID, func(job *TurnRecord) {
		job.Status = JobStatusFailed
		job.ErrorMessage = errMsg
	})
}

func (m *MemoryTurnStore) update(jobID string, fn func(*TurnRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	fn(&job)
	m.jobs[jobID] = job
	return nil
}
