package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"estoque/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueReceipt = "jobs:receipt"

	JobReceipt = "receipt"

	// writeTimeout bounds the requeue and DLQ writes after a job ran.
	writeTimeout = 5 * time.Second
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// ReceiptPayload identifies the sale whose receipt should be delivered.
type ReceiptPayload struct {
	SaleID string `json:"saleId"`
}

// Handler processes one job payload. A returned error schedules a retry.
type Handler interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueReceipt pushes a receipt delivery job for a committed sale.
func (d *Dispatcher) EnqueueReceipt(ctx context.Context, saleID uuid.UUID) error {
	return d.enqueue(ctx, QueueReceipt, JobReceipt, ReceiptPayload{SaleID: saleID.String()})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	if d == nil || d.rdb == nil {
		return errors.New("dispatcher: redis not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return push(ctx, d.rdb, queue, Job{Type: jobType, Payload: data})
}

func push(ctx context.Context, rdb *redis.Client, queue string, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, queue, encoded).Err()
}

// Pool consumes the job queues with a fixed number of goroutines.
type Pool struct {
	rdb         *redis.Client
	handlers    map[string]Handler
	queues      []string
	maxAttempts int
	metrics     *metrics.Metrics
	wg          sync.WaitGroup
}

// NewPool builds a pool. handlers maps job type to its handler; a job whose
// type has no handler goes straight to the DLQ.
func NewPool(rdb *redis.Client, handlers map[string]Handler, maxAttempts int, m *metrics.Metrics) *Pool {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Pool{
		rdb:         rdb,
		handlers:    handlers,
		queues:      []string{QueueReceipt},
		maxAttempts: maxAttempts,
		metrics:     m,
	}
}

// Start launches numWorkers goroutines. Each blocks on BRPOP, so idle
// workers cost no CPU. They exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			p.next(ctx, 5*time.Second)
		}
	}
}

// next waits up to timeout for one job and processes it. It reports whether a
// job was taken.
func (p *Pool) next(ctx context.Context, timeout time.Duration) bool {
	result, err := p.rdb.BRPop(ctx, timeout, p.queues...).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			log.Error().Err(err).Msg("worker: dequeue failed")
			// avoid spinning while redis is unreachable
			time.Sleep(time.Second)
		}
		return false
	}
	if len(result) < 2 {
		return false
	}
	p.process(ctx, result[0], result[1])
	return true
}

func (p *Pool) process(ctx context.Context, queue, raw string) {
	// The job is already off the queue, so the writes that put it back or
	// park it must survive a shutdown that cancels ctx.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("worker: failed to unmarshal job")
		SendToDLQ(wctx, p.rdb, queue, Job{Type: "unknown", Payload: json.RawMessage(`null`)}, "malformed job: "+err.Error())
		return
	}

	h, ok := p.handlers[job.Type]
	if !ok {
		SendToDLQ(wctx, p.rdb, queue, job, "no handler for job type")
		p.metrics.JobProcessed(job.Type, "dead")
		return
	}

	err := h.Process(ctx, job.Payload)
	if err == nil {
		p.metrics.JobProcessed(job.Type, "ok")
		return
	}

	if ctx.Err() != nil {
		// interrupted by shutdown, not a failure of the job itself
		log.Info().Str("job_type", job.Type).Msg("worker: job interrupted by shutdown, requeueing")
		p.requeue(wctx, queue, job)
		return
	}

	job.Attempts++
	if job.Attempts >= p.maxAttempts {
		SendToDLQ(wctx, p.rdb, queue, job, err.Error())
		p.metrics.JobProcessed(job.Type, "dead")
		return
	}
	log.Warn().Err(err).
		Str("job_type", job.Type).
		Int("attempt", job.Attempts).
		Int("max_attempts", p.maxAttempts).
		Msg("worker: job failed, requeueing")
	p.metrics.JobProcessed(job.Type, "retry")
	p.requeue(wctx, queue, job)
}

func (p *Pool) requeue(ctx context.Context, queue string, job Job) {
	if err := push(ctx, p.rdb, queue, job); err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("worker: requeue failed")
		SendToDLQ(ctx, p.rdb, queue, job, fmt.Sprintf("requeue failed: %v", err))
	}
}
