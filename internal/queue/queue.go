// Package queue dispatches write_code grading to worker processes over
// RabbitMQ. The daemon publishes a GradeJob and waits on a private reply
// queue; workers grade with their own runner and answer by correlation id.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
)

// GradeQueueName is the work queue shared by all graders.
const GradeQueueName = "meteor.grade"

// jobTTL drops jobs nobody picked up in time.
const jobTTL = 5 * time.Minute

// ErrConnectionLost is returned to callers waiting on a reply when the
// broker connection goes away.
var ErrConnectionLost = errors.New("queue connection lost")

// JobRun marks a playground job: the submission runs alone and its printed
// output is returned instead of verdicts.
const JobRun = "run"

// GradeJob asks a worker to grade one submission
type GradeJob struct {
	ID           uuid.UUID `json:"id"`
	Kind         string    `json:"kind,omitempty"`
	LessonID     string    `json:"lesson_id,omitempty"`
	ItemIndex    int       `json:"item_index"`
	Submission   string    `json:"submission"`
	IsolationKey string    `json:"isolation_key,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// GradeReply carries the worker's result. Error is set for infrastructure
// failures; Result is nil then.
type GradeReply struct {
	JobID      uuid.UUID             `json:"job_id"`
	Result     *domain.ExerciseResult `json:"result,omitempty"`
	Run        *domain.RunResult      `json:"run,omitempty"`
	Error      string                `json:"error,omitempty"`
	DurationMS int64                 `json:"duration_ms"`
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
	dial       retry.Retry[*amqp.Connection]
	onReset    []func()
}

// NewConnection dials the broker, retrying with exponential backoff until
// ctx is done or the attempts run out.
func NewConnection(ctx context.Context, url string) (*Connection, error) {
	c := &Connection{
		url: url,
		dial: retry.New[*amqp.Connection](retry.Config{
			MaxAttempts:   5,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      10 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
		}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) connect(ctx context.Context) error {
	conn, err := c.dial.Do(ctx, func(context.Context) (*amqp.Connection, error) {
		return amqp.Dial(c.url)
	})
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareQueues(channel); err != nil {
		channel.Close()
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	go c.handleReconnect(conn)

	slog.Info("connected to rabbitmq", "url", sanitizeURL(c.url))
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		GradeQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-message-ttl": int32(jobTTL / time.Millisecond)},
	)
	if err != nil {
		return fmt.Errorf("declare grade queue: %w", err)
	}
	return nil
}

// handleReconnect waits for conn to drop and dials again. Subscribers
// registered with OnReset run after every successful reconnect.
func (c *Connection) handleReconnect(conn *amqp.Connection) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || err == nil {
		return
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	slog.Warn("rabbitmq connection closed, reconnecting", "error", err, "reconnects", c.reconnects)
	for {
		c.reconnects++
		if err := c.connect(context.Background()); err != nil {
			slog.Error("reconnect failed", "error", err, "reconnects", c.reconnects)
			time.Sleep(30 * time.Second)
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if closed {
				return
			}
			continue
		}
		break
	}

	c.mu.RLock()
	hooks := append([]func(){}, c.onReset...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// OnReset registers fn to run after a reconnect replaced the channel
func (c *Connection) OnReset(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReset = append(c.onReset, fn)
}

// Channel returns the current channel (thread-safe)
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a JSON message. A zero msg is filled in with the
// content type and persistent delivery.
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any, msg amqp.Publishing) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	msg.ContentType = "application/json"
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	msg.Body = body

	ch := c.Channel()
	if ch == nil {
		return ErrConnectionLost
	}
	return ch.PublishWithContext(ctx, "", queue, false, false, msg)
}

// sanitizeURL hides credentials for logging
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "amqp://..."
	}
	return u.Redacted()
}
