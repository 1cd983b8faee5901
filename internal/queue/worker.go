package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/grader"
)

// Items resolves the write_code item a job refers to
type Items interface {
	WriteCode(lessonID string, index int) (*domain.WriteCode, error)
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	Workers    int           // concurrent graders
	Prefetch   int           // unacked deliveries per worker
	JobTimeout time.Duration // upper bound on one grading
}

// DefaultWorkerConfig returns sensible defaults
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Workers:    3,
		Prefetch:   1,
		JobTimeout: 30 * time.Second,
	}
}

// Worker consumes grade jobs, grades them locally and replies
type Worker struct {
	conn       *Connection
	items      Items
	grader     grader.CodeGrader
	workers    int
	prefetch   int
	jobTimeout time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewWorker creates a worker. Zero config fields take the defaults.
func NewWorker(conn *Connection, items Items, g grader.CodeGrader, cfg WorkerConfig) *Worker {
	def := DefaultWorkerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	return &Worker{
		conn:       conn,
		items:      items,
		grader:     g,
		workers:    cfg.Workers,
		prefetch:   cfg.Prefetch,
		jobTimeout: cfg.JobTimeout,
	}
}

// Start begins consuming jobs
func (w *Worker) Start(ctx context.Context) error {
	ctx, w.cancelFunc = context.WithCancel(ctx)

	ch := w.conn.Channel()
	if err := ch.Qos(w.prefetch*w.workers, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		GradeQueueName,
		"",    // consumer tag (auto-generated)
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.Info("grade worker started", "workers", w.workers, "prefetch", w.prefetch)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i, msgs)
	}
	return nil
}

func (w *Worker) loop(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Info("delivery channel closed", "worker_id", id)
				return
			}
			w.processMessage(ctx, id, msg)
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	reply, ok := w.handle(ctx, msg.Body)
	if !ok {
		slog.Error("rejecting malformed grade job", "worker_id", workerID, "message_id", msg.MessageId)
		_ = msg.Reject(false)
		return
	}

	if msg.ReplyTo != "" {
		err := w.conn.PublishJSON(ctx, msg.ReplyTo, reply, amqp.Publishing{
			CorrelationId: msg.CorrelationId,
			DeliveryMode:  amqp.Transient,
		})
		if err != nil {
			slog.Error("publish grade reply", "worker_id", workerID, "job_id", reply.JobID, "error", err)
		}
	}
	if err := msg.Ack(false); err != nil {
		slog.Error("ack grade job", "worker_id", workerID, "job_id", reply.JobID, "error", err)
	}
}

// handle grades one job body. It returns false for bodies that are not a
// usable job at all; anything else produces a reply.
func (w *Worker) handle(ctx context.Context, body []byte) (*GradeReply, bool) {
	var job GradeJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, false
	}
	if job.Kind == JobRun {
		return w.run(ctx, &job), true
	}
	if job.LessonID == "" {
		return nil, false
	}

	start := time.Now()
	reply := &GradeReply{JobID: job.ID}

	item, err := w.items.WriteCode(job.LessonID, job.ItemIndex)
	if err != nil {
		reply.Error = err.Error()
		return reply, true
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, err := w.grader.GradeCode(jobCtx, grader.CodeRequest{
		LessonID:     job.LessonID,
		ItemIndex:    job.ItemIndex,
		Item:         item,
		Submission:   job.Submission,
		IsolationKey: job.IsolationKey,
	})
	reply.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		reply.Error = err.Error()
		slog.Warn("grade job failed", "job_id", job.ID, "error", err, "duration_ms", reply.DurationMS)
		return reply, true
	}
	reply.Result = result

	slog.Info("grade job completed",
		"job_id", job.ID,
		"lesson_id", job.LessonID,
		"item", job.ItemIndex,
		"passed", result.Passed,
		"queued_ms", start.Sub(job.EnqueuedAt).Milliseconds(),
		"duration_ms", reply.DurationMS,
	)
	return reply, true
}

// run executes a playground job on a grader that can run free-form source
func (w *Worker) run(ctx context.Context, job *GradeJob) *GradeReply {
	reply := &GradeReply{JobID: job.ID}
	playground, ok := w.grader.(grader.CodeRunner)
	if !ok {
		reply.Error = "this worker cannot run playground code"
		return reply
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	start := time.Now()
	res, err := playground.RunCode(jobCtx, grader.RunRequest{Source: job.Submission, IsolationKey: job.IsolationKey})
	reply.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		reply.Error = err.Error()
		slog.Warn("run job failed", "job_id", job.ID, "error", err, "duration_ms", reply.DurationMS)
		return reply
	}
	reply.Run = res
	slog.Info("run job completed", "job_id", job.ID, "ok", res.OK, "duration_ms", reply.DurationMS)
	return reply
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()
	slog.Info("grade worker stopped")
}
