package queue

import (
	"testing"
	"time"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/google/uuid"
)

func testQueue(hasDelayed bool) *RabbitMQQueue {
	return &RabbitMQQueue{
		hasDelayed:          hasDelayed,
		queueName:           DefaultQueueName,
		waitQueueName:       DefaultWaitQueueName,
		dlqName:             DefaultDLQName,
		exchangeName:        DefaultExchangeName,
		delayedExchangeName: DefaultDelayedExchangeName,
	}
}

func TestRabbitMQQueue_Target(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name           string
		hasDelayed     bool
		notBefore      *time.Time
		notAfter       *time.Time
		wantExchange   string
		wantKey        string
		wantExpiration string
		wantDelay      int64
	}{
		{name: "due now", wantExchange: DefaultExchangeName, wantKey: jobsRoutingKey},
		{name: "already due", notBefore: at(-time.Second), wantExchange: DefaultExchangeName, wantKey: jobsRoutingKey},
		{name: "not after sets ttl", notAfter: at(90 * time.Second), wantExchange: DefaultExchangeName, wantKey: jobsRoutingKey, wantExpiration: "90000"},
		{
			name:         "delayed exchange",
			hasDelayed:   true,
			notBefore:    at(2 * time.Minute),
			wantExchange: DefaultDelayedExchangeName,
			wantKey:      jobsRoutingKey,
			wantDelay:    120000,
		},
		{
			name:           "wait queue without plugin",
			notBefore:      at(time.Minute),
			wantExchange:   "",
			wantKey:        DefaultWaitQueueName,
			wantExpiration: "60000",
		},
		{
			name:           "wait queue rounds up",
			notBefore:      at(1500 * time.Microsecond),
			wantExchange:   "",
			wantKey:        DefaultWaitQueueName,
			wantExpiration: "2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job := NewProcessNoteJob(uuid.New(), models.BlockRef{Page: "journals/2026_10_14.md", ID: "b1"})
			job.NotBefore, job.NotAfter = tt.notBefore, tt.notAfter

			got := testQueue(tt.hasDelayed).target(job, now)
			if got.exchange != tt.wantExchange || got.routingKey != tt.wantKey {
				t.Errorf("target = %q/%q, want %q/%q", got.exchange, got.routingKey, tt.wantExchange, tt.wantKey)
			}
			if got.expiration != tt.wantExpiration {
				t.Errorf("expiration = %q, want %q", got.expiration, tt.wantExpiration)
			}
			if tt.wantDelay != 0 {
				if d, _ := got.headers["x-delay"].(int64); d != tt.wantDelay {
					t.Errorf("x-delay = %v, want %d", got.headers["x-delay"], tt.wantDelay)
				}
			} else if got.headers != nil {
				t.Errorf("headers = %v, want none", got.headers)
			}
		})
	}
}
