// internal/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Queue publishes step jobs for the worker. Payloads are JSON-encoded.
type Queue interface {
	Publish(ctx context.Context, queueName string, payload any) error
}

// StepJob is the body of every dispatch/step message. A job carries only the
// campaign id: all other state lives in the database, so any worker instance
// can pick the job up.
type StepJob struct {
	CampaignID int `json:"campaign_id"`
}

// InMemoryQueue runs handlers in-process. Used by tests and by single-binary
// deployments that have no broker.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload []byte) error

	MaxRetries int
	Backoff    time.Duration
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload []byte) error),
		MaxRetries: 3,
		Backoff:    100 * time.Millisecond,
	}
}

func (q *InMemoryQueue) Publish(ctx context.Context, queueName string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[queueName]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for queue %s", queueName)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	for _, handler := range handlers {
		go q.process(handler, body)
	}
	return nil
}

// process retries a failing handler with linear backoff, then drops the job.
func (q *InMemoryQueue) process(handler func(payload []byte) error, body []byte) {
	for attempt := 0; attempt <= q.MaxRetries; attempt++ {
		if err := handler(body); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt+1) * q.Backoff)
	}
}

func (q *InMemoryQueue) Subscribe(queueName string, handler func(payload []byte) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[queueName] = append(q.handlers[queueName], handler)
}

var _ Queue = (*InMemoryQueue)(nil)
