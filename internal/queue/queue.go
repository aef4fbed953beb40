// Package queue provides the handoff between the request path and background
// workers. Two backends share one interface: an in-memory channel queue
// (default, nothing to deploy) and a Redis list queue (survives restarts,
// usable by multiple workers). Items that exhaust their retries land in a
// dead-letter queue instead of blocking the worker.
package queue

import (
	"context"
	"time"
)

// Queue defines the interface for message queuing
type Queue interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item interface{}) error

	// Dequeue retrieves up to maxItems items, blocking until at least one is
	// available or the context is cancelled
	Dequeue(ctx context.Context, maxItems int) ([]interface{}, error)

	// DequeueWithTimeout retrieves up to maxItems items, returning an empty
	// slice when nothing arrives before the timeout
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue
	Close() error
}

// DeadLetterQueue holds items that could not be processed
type DeadLetterQueue interface {
	// Add records a failed item with its error
	Add(ctx context.Context, item interface{}, err error) error

	// List retrieves up to maxItems dead-lettered items
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove deletes a dead-lettered item by ID
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem represents an item in the dead letter queue
type DeadLetterItem struct {
	ID        string      `json:"id"`
	Item      interface{} `json:"item"`
	Error     string      `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// Config holds queue configuration
type Config struct {
	// Name is the queue name, used as the Redis key suffix
	Name string

	// BatchSize is the maximum number of items handed to a worker at once
	BatchSize int

	// BatchTimeout is how long a worker waits before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts per item
	MaxRetries int

	// RetryBackoff is the initial backoff duration, doubled per attempt
	RetryBackoff time.Duration

	// UseRedis selects the Redis backend over the in-memory one
	UseRedis bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig returns default queue configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:         name,
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
	}
}
