/**
 * Progress Event Publisher
 *
 * Publishes run and page state transitions over Redis pub/sub so a UI or API
 * can stream extraction progress, and mirrors run membership into
 * processing/completed/failed sets for cheap polling. All operations are
 * best-effort: a dropped event never affects the run itself.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dougiefresh49/comic-reader/internal/processor"
)

// EventPublisher publishes progress events to Redis
type EventPublisher struct {
	client    *redis.Client
	queueName string
}

// NewEventPublisher connects a publisher for the given queue namespace.
func NewEventPublisher(redisURL, queueName string) (*EventPublisher, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &EventPublisher{client: client, queueName: queueName}, nil
}

// PublishPageState emits one page state transition.
func (p *EventPublisher) PublishPageState(ctx context.Context, runID, page string, state processor.PageState) {
	if p == nil {
		return
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("page:%s", state),
		"runId":     runID,
		"page":      page,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	p.publish(ctx, event)
}

// PublishRunState emits a run-level transition and updates the run sets.
func (p *EventPublisher) PublishRunState(ctx context.Context, runID, state string, details map[string]interface{}) {
	if p == nil {
		return
	}

	switch state {
	case "processing":
		p.client.SAdd(ctx, fmt.Sprintf("%s:processing", p.queueName), runID)
	case "completed":
		p.client.SRem(ctx, fmt.Sprintf("%s:processing", p.queueName), runID)
		p.client.SAdd(ctx, fmt.Sprintf("%s:completed", p.queueName), runID)
		if details != nil {
			if data, err := json.Marshal(details); err == nil {
				p.client.HSet(ctx, fmt.Sprintf("%s:results", p.queueName), runID, data)
			}
		}
	case "failed":
		p.client.SRem(ctx, fmt.Sprintf("%s:processing", p.queueName), runID)
		p.client.SAdd(ctx, fmt.Sprintf("%s:failed", p.queueName), runID)
		if details != nil {
			if data, err := json.Marshal(details); err == nil {
				p.client.HSet(ctx, fmt.Sprintf("%s:errors", p.queueName), runID, data)
			}
		}
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("run:%s", state),
		"runId":     runID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range details {
		event[k] = v
	}

	p.publish(ctx, event)
}

// GetStats returns queue-level run counts for polling.
func (p *EventPublisher) GetStats(ctx context.Context) (map[string]int64, error) {
	processing, _ := p.client.SCard(ctx, fmt.Sprintf("%s:processing", p.queueName)).Result()
	completed, _ := p.client.SCard(ctx, fmt.Sprintf("%s:completed", p.queueName)).Result()
	failed, _ := p.client.SCard(ctx, fmt.Sprintf("%s:failed", p.queueName)).Result()

	return map[string]int64{
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}

// Close closes the Redis connection
func (p *EventPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *EventPublisher) publish(ctx context.Context, event map[string]interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Warning: failed to marshal progress event: %v", err)
		return
	}

	if err := p.client.Publish(ctx, fmt.Sprintf("%s:events", p.queueName), data).Err(); err != nil {
		log.Printf("Warning: failed to publish progress event: %v", err)
	}
}
