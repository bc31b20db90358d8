package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
)

// Runner executes one analysis run. *Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, id uuid.UUID) Outcome
}

// QueueConfig holds worker pool settings.
type QueueConfig struct {
	Workers       int
	Size          int
	SweepInterval time.Duration
	SweepGrace    time.Duration
	RunTimeout    time.Duration
}

// Queue is a bounded in-process work queue of contract IDs. A contract is
// held at most once, whether waiting or running. Queued work is not durable:
// the sweeper re-enqueues contracts left in uploaded after a restart or a
// rejected Enqueue.
type Queue struct {
	runner Runner
	repo   port.ContractRepository
	cfg    QueueConfig
	log    *zap.Logger
	now    func() time.Time

	tasks   chan uuid.UUID
	mu      sync.Mutex
	pending map[uuid.UUID]struct{}
	closed  bool
}

var _ port.AnalysisTrigger = (*Queue)(nil)

// NewQueue creates a queue. Call Run to start processing.
func NewQueue(runner Runner, repo port.ContractRepository, cfg QueueConfig, log *zap.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		runner:  runner,
		repo:    repo,
		cfg:     cfg,
		log:     log.Named("queue"),
		now:     time.Now,
		tasks:   make(chan uuid.UUID, cfg.Size),
		pending: make(map[uuid.UUID]struct{}),
	}
}

// Enqueue schedules an analysis run without waiting for it. It returns
// domain.ErrQueueFull when the buffer is full and domain.ErrQueueClosed
// after shutdown. Enqueueing a contract that is already waiting or running
// is a no-op.
func (q *Queue) Enqueue(_ context.Context, id uuid.UUID) error {
	_, err := q.add(id)
	return err
}

func (q *Queue) add(id uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, domain.ErrQueueClosed
	}
	if _, ok := q.pending[id]; ok {
		return false, nil
	}
	select {
	case q.tasks <- id:
		q.pending[id] = struct{}{}
		return true, nil
	default:
		return false, domain.ErrQueueFull
	}
}

// Pending returns the number of contracts waiting or running.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run starts the workers and the sweeper and blocks until ctx is canceled.
// In-flight runs finish under their own timeout before Run returns; waiting
// contracts stay uploaded for the next sweep.
func (q *Queue) Run(ctx context.Context) error {
	q.log.Info("analysis queue started",
		zap.Int("workers", q.cfg.Workers),
		zap.Int("size", q.cfg.Size),
		zap.Duration("sweep_interval", q.cfg.SweepInterval),
	)

	var g errgroup.Group
	for i := 0; i < q.cfg.Workers; i++ {
		g.Go(func() error {
			q.work(ctx)
			return nil
		})
	}
	if q.cfg.SweepInterval > 0 {
		g.Go(func() error {
			q.sweepLoop(ctx)
			return nil
		})
	}

	<-ctx.Done()
	q.close()
	q.log.Info("analysis queue shutting down, waiting for in-flight runs")
	err := g.Wait()
	q.log.Info("analysis queue stopped")
	return err
}

func (q *Queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-q.tasks:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				q.release(id)
				return
			}
			q.process(id)
		}
	}
}

func (q *Queue) process(id uuid.UUID) {
	defer q.release(id)

	// Runs are detached from the queue's context so shutdown lets them finish.
	runCtx, cancel := context.WithTimeout(context.Background(), q.cfg.RunTimeout)
	defer cancel()

	outcome := q.runner.Run(runCtx, id)
	q.log.Debug("analysis run finished", zap.String("contract_id", id.String()), zap.String("outcome", string(outcome)))
}

func (q *Queue) release(id uuid.UUID) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}

func (q *Queue) sweepLoop(ctx context.Context) {
	q.Sweep(ctx)

	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Sweep(ctx)
		}
	}
}

// Sweep enqueues contracts that have waited in uploaded longer than the
// grace period. It returns the number enqueued.
func (q *Queue) Sweep(ctx context.Context) int {
	cutoff := q.now().Add(-q.cfg.SweepGrace)
	contracts, err := q.repo.ListUploadedBefore(ctx, cutoff, q.cfg.Size)
	if err != nil {
		if ctx.Err() == nil {
			q.log.Error("sweep: listing uploaded contracts", zap.Error(err))
		}
		return 0
	}

	enqueued := 0
	for i := range contracts {
		added, err := q.add(contracts[i].ID)
		if err != nil {
			break
		}
		if added {
			enqueued++
		}
	}
	if enqueued > 0 {
		q.log.Info("sweep: re-enqueued waiting contracts", zap.Int("count", enqueued))
	}
	return enqueued
}
