package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultQueueName is the default queue name
	DefaultQueueName = "voice_note_jobs"
	// DefaultDLQName is the default dead letter queue name
	DefaultDLQName = "voice_note_jobs_dlq"
	// DefaultExchangeName is the default exchange name
	DefaultExchangeName = "voiceflow_jobs"
	// DefaultDelayedExchangeName is the delayed exchange used for retries (requires plugin)
	DefaultDelayedExchangeName = "voiceflow_jobs_delayed"
	// DefaultWaitQueueName parks delayed jobs when the delayed exchange plugin
	// is missing. Expired messages dead-letter back into the job queue.
	DefaultWaitQueueName = "voice_note_jobs_wait"

	jobsRoutingKey = "jobs"
	dlqRoutingKey  = "dlq"
)

// ErrQueueClosed is returned by HealthCheck after the connection dropped.
var ErrQueueClosed = errors.New("rabbitmq connection is closed")

// RabbitMQQueue implements JobQueue using RabbitMQ
type RabbitMQQueue struct {
	conn       *amqp.Connection
	mu         sync.Mutex // guards channel for publishing
	channel    *amqp.Channel
	hasDelayed bool
	logger     *zap.Logger

	queueName           string
	waitQueueName       string
	dlqName             string
	exchangeName        string
	delayedExchangeName string
}

var (
	_ JobQueue  = (*RabbitMQQueue)(nil)
	_ DLQPurger = (*RabbitMQQueue)(nil)
)

// NewRabbitMQQueue connects to amqpURL and declares the exchanges and queues.
func NewRabbitMQQueue(amqpURL string, logger *zap.Logger) (*RabbitMQQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &RabbitMQQueue{
		conn:                conn,
		channel:             ch,
		logger:              logger,
		queueName:           DefaultQueueName,
		waitQueueName:       DefaultWaitQueueName,
		dlqName:             DefaultDLQName,
		exchangeName:        DefaultExchangeName,
		delayedExchangeName: DefaultDelayedExchangeName,
	}
	if err := q.setup(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup queues: %w", err)
	}
	return q, nil
}

func (q *RabbitMQQueue) setup() error {
	err := q.channel.ExchangeDeclare(
		q.delayedExchangeName,
		"x-delayed-message",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	)
	if err == nil {
		q.hasDelayed = true
	} else {
		// a failed declare closes the channel
		if q.channel.IsClosed() {
			ch, openErr := q.conn.Channel()
			if openErr != nil {
				return fmt.Errorf("failed to reopen channel after delayed exchange error: %w", openErr)
			}
			q.channel = ch
		}
		q.logger.Warn("delayed_exchange_unavailable", zap.Error(err))
	}

	if err := q.channel.ExchangeDeclare(q.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := q.channel.QueueDeclare(q.dlqName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}
	if err := q.channel.QueueBind(q.dlqName, dlqRoutingKey, q.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	queueArgs := amqp.Table{
		"x-dead-letter-exchange":    q.exchangeName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	if _, err := q.channel.QueueDeclare(q.queueName, true, false, false, false, queueArgs); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := q.channel.QueueBind(q.queueName, jobsRoutingKey, q.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to exchange: %w", err)
	}
	if q.hasDelayed {
		if err := q.channel.QueueBind(q.queueName, jobsRoutingKey, q.delayedExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to delayed exchange: %w", err)
		}
		return nil
	}

	waitArgs := amqp.Table{
		"x-dead-letter-exchange":    q.exchangeName,
		"x-dead-letter-routing-key": jobsRoutingKey,
	}
	if _, err := q.channel.QueueDeclare(q.waitQueueName, true, false, false, false, waitArgs); err != nil {
		return fmt.Errorf("failed to declare wait queue: %w", err)
	}
	return nil
}

// publishTarget is the exchange, routing key and properties a job is published with.
type publishTarget struct {
	exchange   string
	routingKey string
	headers    amqp.Table
	expiration string
}

// target routes job. A job due later goes to the delayed exchange with an
// x-delay header or, without the plugin, to the wait queue with a per-message
// TTL of the remaining delay.
func (q *RabbitMQQueue) target(job *Job, now time.Time) publishTarget {
	t := publishTarget{exchange: q.exchangeName, routingKey: jobsRoutingKey}
	if job.NotAfter != nil {
		if ttl := job.NotAfter.Sub(now); ttl > 0 {
			t.expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
		}
	}
	if job.NotBefore == nil {
		return t
	}
	delay := job.NotBefore.Sub(now)
	if delay <= 0 {
		return t
	}
	if q.hasDelayed {
		t.exchange = q.delayedExchangeName
		t.headers = amqp.Table{"x-delay": delay.Milliseconds()}
		return t
	}
	// round up so the job is due when it comes back
	ms := (delay + time.Millisecond - 1) / time.Millisecond
	t.exchange = ""
	t.routingKey = q.waitQueueName
	t.expiration = strconv.FormatInt(int64(ms), 10)
	return t
}

// Enqueue publishes job. A future NotBefore is honoured by the broker, via
// the delayed exchange or the wait queue, so consumers never hold early jobs.
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	t := q.target(job, time.Now())
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.CreatedAt,
		Headers:      t.headers,
		Expiration:   t.expiration,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.channel.PublishWithContext(ctx, t.exchange, t.routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Consume returns a channel of messages read on a dedicated consumer channel.
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	if prefetchCount <= 0 {
		prefetchCount = 1
	}
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}
	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(q.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() { _ = consumeCh.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					errChan <- fmt.Errorf("delivery channel closed")
					return
				}
				msg, err := q.decode(ctx, delivery, consumeCh)
				if err != nil {
					_ = delivery.Nack(false, false)
					q.logger.Warn("job_rejected",
						zap.String("message_id", delivery.MessageId),
						zap.Error(err),
					)
					continue
				}
				if msg == nil {
					continue
				}
				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// decode turns a delivery into a message. It returns nil, nil when the
// delivery was handled here: expired jobs are dead-lettered and jobs that
// arrived early are parked again until due.
func (q *RabbitMQQueue) decode(ctx context.Context, delivery amqp.Delivery, ch *amqp.Channel) (*Message, error) {
	var job Job
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if job.IsExpired() {
		_ = delivery.Nack(false, false)
		return nil, nil
	}
	if !job.ShouldProcess() {
		if err := q.Enqueue(ctx, &job); err != nil {
			q.logger.Warn("job_repark_failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			_ = delivery.Nack(false, true)
			return nil, nil
		}
		_ = delivery.Ack(false)
		return nil, nil
	}
	return &Message{Job: &job, DeliveryTag: delivery.DeliveryTag, Channel: ch}, nil
}

// PurgeOlderThan drains dead-lettered jobs published before now-retention.
// The DLQ is FIFO, so the scan stops at the first newer message.
func (q *RabbitMQQueue) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("failed to open purge channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	cutoff := time.Now().Add(-retention)
	purged := 0
	for ctx.Err() == nil {
		msg, ok, err := ch.Get(q.dlqName, false)
		if err != nil {
			return purged, fmt.Errorf("failed to read DLQ: %w", err)
		}
		if !ok {
			break
		}
		if !msg.Timestamp.IsZero() && msg.Timestamp.After(cutoff) {
			_ = msg.Nack(false, true)
			break
		}
		if err := msg.Ack(false); err != nil {
			return purged, fmt.Errorf("failed to ack DLQ message: %w", err)
		}
		purged++
	}
	return purged, ctx.Err()
}

// HealthCheck reports whether the connection and publish channel are open.
func (q *RabbitMQQueue) HealthCheck(_ context.Context) error {
	if q.conn == nil || q.conn.IsClosed() {
		return ErrQueueClosed
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel == nil || q.channel.IsClosed() {
		return ErrQueueClosed
	}
	return nil
}

// Close closes the queue connection
func (q *RabbitMQQueue) Close() error {
	var err error
	q.mu.Lock()
	if q.channel != nil {
		err = q.channel.Close()
	}
	q.mu.Unlock()
	if q.conn != nil {
		if closeErr := q.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
