package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// TurnProcessor runs one aggregated turn. *Service implements it.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req TurnRequest) (TurnOutcome, error)
}

// Worker consumes turn jobs from the queue and invokes the processor.
// Failed turns are recorded and dropped, never retried.
//
// Within one received batch a customer's turns run sequentially. The
// per-customer lock in Service still guards against other workers.
type Worker struct {
	processor TurnProcessor
	queue     queueClient
	jobs      TurnUpdater
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 2
	defaultBatchSize    = 5
	maxWaitSeconds      = 20
	maxReceiveBatchSize = 10
	deleteTimeout       = 5 * time.Second
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// NewWorker constructs a queue consumer. jobs may be nil when turn status
// is not tracked.
func NewWorker(processor TurnProcessor, queue queueClient, jobs TurnUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor: processor,
		queue:     queue,
		jobs:      jobs,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	failures := 0
	for ctx.Err() == nil {
		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			failures++
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID, "failures", failures)
			select {
			case <-ctx.Done():
			case <-time.After(receiveBackoff(failures)):
			}
			continue
		}
		failures = 0
		w.handleBatch(ctx, messages)
	}
	w.logger.Debug("conversation worker stopping", "worker_id", workerID)
}

// receiveBackoff is 1s, 2s, 4s, then stays at 5s.
func receiveBackoff(failures int) time.Duration {
	wait := time.Second << min(failures-1, 3)
	return min(wait, 5*time.Second)
}

type decodedJob struct {
	msg     queueMessage
	payload queuePayload
}

// handleBatch keeps each customer's turns in receive order while letting
// different customers run in parallel.
func (w *Worker) handleBatch(ctx context.Context, messages []queueMessage) {
	var order []string
	byCustomer := make(map[string][]decodedJob)
	for _, msg := range messages {
		payload, err := decodePayload(msg.Body)
		if err != nil {
			w.logger.Error("dropping malformed conversation job", "error", err, "msg_id", msg.ID)
			w.deleteMessage(context.WithoutCancel(ctx), msg.ReceiptHandle)
			continue
		}
		key := payload.Turn.CustomerKey
		if _, seen := byCustomer[key]; !seen {
			order = append(order, key)
		}
		byCustomer[key] = append(byCustomer[key], decodedJob{msg: msg, payload: payload})
	}

	var wg sync.WaitGroup
	for _, key := range order {
		jobs := byCustomer[key]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, job := range jobs {
				w.handleJob(ctx, job)
			}
		}()
	}
	wg.Wait()
}

func (w *Worker) handleJob(ctx context.Context, job decodedJob) {
	defer w.deleteMessage(context.WithoutCancel(ctx), job.msg.ReceiptHandle)
	payload := job.payload

	w.logger.Debug("worker processing turn",
		"job_id", payload.ID,
		"customer", payload.Turn.CustomerKey,
		"fragments", payload.Turn.Fragments,
	)

	outcome, err := w.processor.ProcessTurn(ctx, payload.Turn)
	if !payload.TrackStatus || w.jobs == nil {
		if err != nil {
			w.logger.Error("conversation turn failed", "error", err, "customer", payload.Turn.CustomerKey)
		}
		return
	}
	var storeErr error
	if err != nil {
		w.logger.Error("conversation turn failed", "error", err, "job_id", payload.ID, "customer", payload.Turn.CustomerKey)
		storeErr = w.jobs.MarkFailed(ctx, payload.ID, err.Error())
	} else {
		storeErr = w.jobs.MarkCompleted(ctx, payload.ID, outcome)
	}
	if storeErr != nil {
		w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
