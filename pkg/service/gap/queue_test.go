package gap_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/repository/memory"
	"github.com/nik45114/kbcore/pkg/service/gap"
)

// blockingRepo holds every Create until release is closed
type blockingRepo struct {
	release chan struct{}
	mu      sync.Mutex
	gaps    []*model.CoverageGap
	err     error
}

func (r *blockingRepo) Create(ctx context.Context, g *model.CoverageGap) (*model.CoverageGap, error) {
	<-r.release
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.gaps = append(r.gaps, g)
	return g, nil
}

func (r *blockingRepo) List(ctx context.Context, limit int) ([]*model.CoverageGap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.CoverageGap{}, r.gaps...), nil
}

func TestQueue_WritesReportedGaps(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	q := gap.New(repo.Gap())
	gt.NoError(t, q.Start(ctx)).Required()

	q.Report(ctx, &model.CoverageGap{Question: "где парковка", TopScore: 0.31, AskedBy: "u1"})
	q.Report(ctx, &model.CoverageGap{Question: "есть ли душ", TopScore: 0.12, AskedBy: "u2"})
	q.Stop()

	gaps, err := repo.Gap().List(ctx, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, gaps).Length(2)
	gt.Value(t, q.Written()).Equal(int64(2))
	for _, g := range gaps {
		gt.Value(t, g.ID).NotEqual(model.CoverageGapID(""))
		gt.Bool(t, g.CreatedAt.IsZero()).False()
	}
}

func TestQueue_ReportNeverBlocks(t *testing.T) {
	ctx := context.Background()
	repo := &blockingRepo{release: make(chan struct{})}
	q := gap.New(repo, gap.WithBufferSize(2))
	gt.NoError(t, q.Start(ctx)).Required()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 10 {
			q.Report(ctx, &model.CoverageGap{Question: "q"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked on a full queue")
	}

	// consumer holds one, buffer holds two
	gt.Number(t, q.Dropped()).GreaterOrEqual(int64(7))

	close(repo.release)
	q.Stop()
	gt.Value(t, q.Written()+q.Dropped()).Equal(int64(10))
}

func TestQueue_RepositoryFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	repo := &blockingRepo{release: make(chan struct{}), err: errors.New("disk full")}
	close(repo.release)

	q := gap.New(repo)
	gt.NoError(t, q.Start(ctx)).Required()
	q.Report(ctx, &model.CoverageGap{Question: "q"})
	q.Stop()

	gt.Value(t, q.Written()).Equal(int64(0))
}

func TestQueue_Lifecycle(t *testing.T) {
	ctx := context.Background()
	q := gap.New(memory.New().Gap())

	// Stop before Start is a no-op
	q.Stop()

	gt.NoError(t, q.Start(ctx)).Required()
	gt.Value(t, q.Start(ctx)).NotNil()
	q.Stop()
	q.Stop()
}
