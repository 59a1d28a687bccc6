package queue

import (
	"context"
	"time"
)

// Delivery is a consumed job awaiting acknowledgement.
type Delivery interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// JobQueue carries voice note jobs from the API to the worker.
type JobQueue interface {
	// Enqueue publishes a job.
	Enqueue(ctx context.Context, job *Job) error

	// Consume delivers jobs until ctx is cancelled or the connection drops.
	// prefetchCount bounds the unacknowledged jobs held by this consumer.
	// Every received message must be acked or nacked.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close closes the queue connection.
	Close() error

	// HealthCheck verifies the queue connection is usable.
	HealthCheck(ctx context.Context) error
}

// DLQPurger drops dead-lettered jobs older than retention and reports how
// many were removed.
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
