package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobarin/reelrender/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueRender = "queue:render"

	progressChannelPrefix = "render:progress:"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Attempt   int       `json:"attempt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return DecodeJob([]byte(result[1]))
}

// DecodeJob parses a queued envelope.
func DecodeJob(raw []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.ID == uuid.Nil {
		return nil, fmt.Errorf("job envelope has no id")
	}
	return &job, nil
}

// EnqueueRender enqueues a render job whose request is already persisted.
func (q *Queue) EnqueueRender(ctx context.Context, jobID uuid.UUID) error {
	job := &Job{
		ID:   jobID,
		Type: "render",
	}
	return q.Enqueue(ctx, QueueRender, job)
}

// ProgressChannel is the pub/sub channel carrying progress for one job.
func ProgressChannel(jobID uuid.UUID) string {
	return progressChannelPrefix + jobID.String()
}

// PublishProgress broadcasts a progress event. Nobody listening is not an error.
func (q *Queue) PublishProgress(ctx context.Context, event models.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	return q.client.Publish(ctx, ProgressChannel(event.JobID), data).Err()
}

// SubscribeProgress streams progress events for jobID until ctx is done or a
// terminal stage arrives. The returned channel is closed when streaming ends.
func (q *Queue) SubscribeProgress(ctx context.Context, jobID uuid.UUID) (<-chan models.ProgressEvent, error) {
	sub := q.client.Subscribe(ctx, ProgressChannel(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	events := make(chan models.ProgressEvent, 16)
	go func() {
		defer close(events)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event models.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
				if event.Stage.Terminal() {
					return
				}
			}
		}
	}()
	return events, nil
}
