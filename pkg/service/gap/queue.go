package gap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

// DefaultBufferSize is the number of gaps held before Report starts dropping
const DefaultBufferSize = 256

// Queue is a one-way coverage gap queue. A single consumer goroutine drains it
// into the repository.
//
// Architecture assumptions:
// - Single server instance; gaps are analytics, so drops under load are acceptable
type Queue struct {
	repo    interfaces.GapRepository
	ch      chan *model.CoverageGap
	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool
	once    sync.Once

	dropped atomic.Int64
	written atomic.Int64
}

var _ interfaces.GapReporter = &Queue{}

// Option is a functional option for Queue configuration
type Option func(*Queue)

// WithBufferSize sets the channel capacity
func WithBufferSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan *model.CoverageGap, n)
		}
	}
}

// New creates a Queue writing to repo
func New(repo interfaces.GapRepository, opts ...Option) *Queue {
	q := &Queue{
		repo:   repo,
		ch:     make(chan *model.CoverageGap, DefaultBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Report enqueues gap without blocking. When the buffer is full the gap is dropped.
func (q *Queue) Report(ctx context.Context, gap *model.CoverageGap) {
	if gap == nil {
		return
	}
	if gap.ID == "" {
		gap.ID = model.NewCoverageGapID()
	}
	if gap.CreatedAt.IsZero() {
		gap.CreatedAt = time.Now().UTC()
	}

	select {
	case q.ch <- gap:
	default:
		q.dropped.Add(1)
		logging.From(ctx).Warn("coverage gap queue full, dropping gap",
			"question", gap.Question,
			"top_score", gap.TopScore,
		)
	}
}

// Start launches the consumer goroutine
func (q *Queue) Start(ctx context.Context) error {
	if !q.started.CompareAndSwap(false, true) {
		return goerr.New("coverage gap queue already started")
	}
	logging.Default().Info("coverage gap queue starting", "buffer", cap(q.ch))

	go q.run(ctx)
	return nil
}

// Stop drains buffered gaps and waits for the consumer to exit
func (q *Queue) Stop() {
	if !q.started.Load() {
		return
	}
	q.once.Do(func() {
		close(q.stopCh)
	})
	<-q.doneCh
	logging.Default().Info("coverage gap queue stopped",
		"written", q.written.Load(),
		"dropped", q.dropped.Load(),
	)
}

// Dropped returns the number of gaps discarded because the buffer was full
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Written returns the number of gaps stored
func (q *Queue) Written() int64 {
	return q.written.Load()
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.doneCh)

	for {
		select {
		case gap := <-q.ch:
			q.write(ctx, gap)

		case <-q.stopCh:
			q.drain(context.WithoutCancel(ctx))
			return

		case <-ctx.Done():
			logging.Default().Info("coverage gap queue context cancelled")
			q.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case gap := <-q.ch:
			q.write(ctx, gap)
		default:
			return
		}
	}
}

func (q *Queue) write(ctx context.Context, gap *model.CoverageGap) {
	if _, err := q.repo.Create(ctx, gap); err != nil {
		logging.Default().Error("failed to store coverage gap",
			"question", gap.Question,
			"error", err.Error(),
		)
		return
	}
	q.written.Add(1)
	logging.Default().Debug("coverage gap stored", "question", gap.Question, "top_score", gap.TopScore)
}
