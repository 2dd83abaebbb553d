/**
 * Queue Consumer
 *
 * Consumes extraction runs from the Redis queue. Each task names a directory
 * of page images plus the cache path; the orchestrator does the rest. Uses
 * Asynq for queue management so the submitting side can be any
 * BullMQ-compatible producer.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dougiefresh49/comic-reader/internal/processor"
)

// TaskExtractRun is the registered task type for a full extraction run.
const TaskExtractRun = "extract-run"

// RunTask is the payload of an extraction run task
type RunTask struct {
	RunID    string                 `json:"runId"`
	InputDir string                 `json:"inputDir"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RunHandler processes one extraction run
type RunHandler interface {
	ProcessRun(ctx context.Context, runID, inputDir string) (*processor.RunSummary, error)
}

// Consumer handles run consumption from the Redis queue
type Consumer struct {
	client  *asynq.Client
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler RunHandler
	events  *EventPublisher // nil disables progress events
	config  *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Handler           RunHandler
	Events            *EventPublisher
	ProcessingTimeout int64 // per-run timeout in milliseconds
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Handler == nil {
		return nil, fmt.Errorf("Handler is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// Runs are whole-directory batches; page-level parallelism lives
			// inside the orchestrator, so one run at a time per worker.
			Concurrency: 1,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff: 5s, 10s, 20s, capped at 60s
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, payload=%s, error=%v",
					task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:  client,
		server:  server,
		mux:     mux,
		handler: cfg.Handler,
		events:  cfg.Events,
		config:  cfg,
	}

	mux.HandleFunc(TaskExtractRun, consumer.handleExtractRun)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (queue=%s)...", c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			log.Printf("Queue consumer error: %v", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	log.Printf("Queue consumer stopped")
	return nil
}

// handleExtractRun processes one extraction run task
func (c *Consumer) handleExtractRun(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var run RunTask
	if err := json.Unmarshal(task.Payload(), &run); err != nil {
		return fmt.Errorf("failed to unmarshal run task: %w", err)
	}

	log.Printf("[Run %s] Received extraction run: inputDir=%s", run.RunID, run.InputDir)
	c.events.PublishRunState(ctx, run.RunID, "processing", nil)

	timeout := 30 * time.Minute
	if c.config.ProcessingTimeout > 0 {
		timeout = time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	summary, err := c.handler.ProcessRun(processCtx, run.RunID, run.InputDir)
	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			log.Printf("[Run %s] Timed out after %v (timeout: %v)", run.RunID, duration, timeout)
			c.events.PublishRunState(ctx, run.RunID, "failed", map[string]interface{}{
				"error": "processing timeout",
			})
			return fmt.Errorf("run timed out after %v: %w", timeout, err)
		}

		log.Printf("[Run %s] Failed after %v: %v", run.RunID, duration, err)
		c.events.PublishRunState(ctx, run.RunID, "failed", map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("extraction run failed: %w", err)
	}

	log.Printf("[Run %s] Completed in %v: %d processed, %d cached, %d failed",
		run.RunID, duration, summary.Processed, summary.Cached, summary.Failed)

	c.events.PublishRunState(ctx, run.RunID, "completed", map[string]interface{}{
		"pages":            summary.Pages,
		"processed":        summary.Processed,
		"cached":           summary.Cached,
		"failed":           summary.Failed,
		"bubbles":          summary.Bubbles,
		"classifyFailures": summary.ClassifyFailures,
		"processingTime":   duration.Milliseconds(),
	})

	return nil
}
