package payouts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrQueueClosed is returned by Enqueue after Shutdown
var ErrQueueClosed = errors.New("payout queue is closed")

// Payer runs one invoice payout
type Payer interface {
	Payout(ctx context.Context, invoiceID string) (*Result, error)
}

// QueueConfig 打款队列配置
type QueueConfig struct {
	Workers    int
	Size       int
	JobTimeout time.Duration
}

// Queue runs invoice payouts on a fixed pool of goroutines so webhook
// handlers can acknowledge without waiting on the transfer.
type Queue struct {
	payer   Payer
	jobs    chan string
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewQueue(payer Payer, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Size <= 0 {
		cfg.Size = 100
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	return &Queue{
		payer:   payer,
		jobs:    make(chan string, cfg.Size),
		workers: cfg.Workers,
		timeout: cfg.JobTimeout,
	}
}

// Start launches the workers. They exit once Shutdown closes the queue and
// the remaining jobs have drained.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			for invoiceID := range q.jobs {
				q.run(worker, invoiceID)
			}
		}(i)
	}
	log.Info().Int("workers", q.workers).Int("capacity", cap(q.jobs)).Msg("payout queue started")
}

func (q *Queue) run(worker int, invoiceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("invoice_id", invoiceID).Msg("payout worker panic")
		}
	}()

	res, err := q.payer.Payout(ctx, invoiceID)
	if err != nil {
		log.Error().Err(err).Int("worker", worker).Str("invoice_id", invoiceID).Msg("payout job failed")
		return
	}
	log.Debug().Int("worker", worker).Str("invoice_id", invoiceID).
		Bool("skipped", res.Skipped).Str("reason", res.Reason).Msg("payout job finished")
}

// Enqueue schedules a payout. It blocks while the queue is full until ctx is done.
func (q *Queue) Enqueue(ctx context.Context, invoiceID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- invoiceID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to expire
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("payout queue drained")
		return nil
	case <-ctx.Done():
		log.Warn().Int("pending", len(q.jobs)).Msg("payout queue shutdown timed out")
		return ctx.Err()
	}
}
