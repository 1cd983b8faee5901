package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/grader"
)

// ErrRemote wraps an infrastructure failure reported by a worker.
var ErrRemote = errors.New("remote grader failed")

// Client grades submissions by publishing jobs and waiting for the reply.
// It satisfies grader.CodeGrader so the session service can use it in place
// of an in-process grader.
type Client struct {
	conn    *Connection
	breaker circuitbreaker.CircuitBreaker[struct{}]

	mu      sync.Mutex
	replyTo string
	pending map[string]chan *GradeReply
}

var (
	_ grader.CodeGrader = (*Client)(nil)
	_ grader.CodeRunner = (*Client)(nil)
)

// NewClient declares a private reply queue and starts dispatching replies.
func NewClient(conn *Connection) (*Client, error) {
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan *GradeReply),
		breaker: circuitbreaker.New[struct{}](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				slog.Warn("grade queue circuit state change", "from", from.String(), "to", to.String())
			},
		}),
	}
	if err := c.subscribe(); err != nil {
		return nil, err
	}
	conn.OnReset(func() {
		if err := c.subscribe(); err != nil {
			slog.Error("resubscribe reply queue", "error", err)
		}
	})
	return c, nil
}

func (c *Client) subscribe() error {
	ch := c.conn.Channel()
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare reply queue: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume reply queue: %w", err)
	}

	c.mu.Lock()
	c.replyTo = q.Name
	c.mu.Unlock()

	go c.dispatch(msgs)
	return nil
}

// dispatch routes replies to waiting callers until the channel closes, then
// fails every caller still waiting.
func (c *Client) dispatch(msgs <-chan amqp.Delivery) {
	for msg := range msgs {
		c.deliver(msg.CorrelationId, msg.Body)
	}
	c.failPending()
}

func (c *Client) deliver(correlationID string, body []byte) {
	var reply GradeReply
	if err := json.Unmarshal(body, &reply); err != nil {
		slog.Error("unmarshal grade reply", "correlation_id", correlationID, "error", err)
		return
	}
	c.mu.Lock()
	waiter, ok := c.pending[correlationID]
	delete(c.pending, correlationID)
	c.mu.Unlock()
	if ok {
		waiter <- &reply
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, waiter := range c.pending {
		close(waiter)
		delete(c.pending, id)
	}
}

func (c *Client) register(id string) (<-chan *GradeReply, string) {
	waiter := make(chan *GradeReply, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = waiter
	return waiter, c.replyTo
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// GradeCode publishes the submission and blocks until a worker replies or
// ctx is done. The job expires in the broker at ctx's deadline.
func (c *Client) GradeCode(ctx context.Context, req grader.CodeRequest) (*domain.ExerciseResult, error) {
	reply, err := c.call(ctx, &GradeJob{
		ID:           uuid.New(),
		LessonID:     req.LessonID,
		ItemIndex:    req.ItemIndex,
		Submission:   req.Submission,
		IsolationKey: req.IsolationKey,
		EnqueuedAt:   time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return reply.unwrap()
}

// RunCode publishes a playground run and waits for its output
func (c *Client) RunCode(ctx context.Context, req grader.RunRequest) (*domain.RunResult, error) {
	reply, err := c.call(ctx, &GradeJob{
		ID:           uuid.New(),
		Kind:         JobRun,
		Submission:   req.Source,
		IsolationKey: req.IsolationKey,
		EnqueuedAt:   time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return reply.unwrapRun()
}

func (c *Client) call(ctx context.Context, job *GradeJob) (*GradeReply, error) {
	correlationID := job.ID.String()
	waiter, replyTo := c.register(correlationID)
	defer c.forget(correlationID)

	msg := amqp.Publishing{
		ReplyTo:       replyTo,
		CorrelationId: correlationID,
		MessageId:     correlationID,
		Timestamp:     job.EnqueuedAt,
	}
	if deadline, ok := ctx.Deadline(); ok {
		if ms := time.Until(deadline).Milliseconds(); ms > 0 {
			msg.Expiration = strconv.FormatInt(ms, 10)
		}
	}

	_, err := c.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.conn.PublishJSON(ctx, GradeQueueName, job, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("publish grade job: %w", err)
	}
	slog.Debug("published grade job", "job_id", job.ID, "kind", job.Kind, "lesson_id", job.LessonID, "item", job.ItemIndex)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply, ok := <-waiter:
		if !ok {
			return nil, ErrConnectionLost
		}
		return reply, nil
	}
}

func (r *GradeReply) unwrap() (*domain.ExerciseResult, error) {
	if r.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, r.Error)
	}
	if r.Result == nil {
		return nil, fmt.Errorf("%w: empty reply for job %s", ErrRemote, r.JobID)
	}
	return r.Result, nil
}

func (r *GradeReply) unwrapRun() (*domain.RunResult, error) {
	if r.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, r.Error)
	}
	if r.Run == nil {
		return nil, fmt.Errorf("%w: empty reply for job %s", ErrRemote, r.JobID)
	}
	return r.Run, nil
}
