package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nik45114/kbcore/pkg/domain/model"
)

type gapRepository struct {
	mu   sync.RWMutex
	gaps []*model.CoverageGap
}

func newGapRepository() *gapRepository {
	return &gapRepository{}
}

func copyGap(g *model.CoverageGap) *model.CoverageGap {
	copied := *g
	return &copied
}

func (r *gapRepository) Create(ctx context.Context, gap *model.CoverageGap) (*model.CoverageGap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyGap(gap)
	if created.ID == "" {
		created.ID = model.NewCoverageGapID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	r.gaps = append(r.gaps, created)
	return copyGap(created), nil
}

func (r *gapRepository) List(ctx context.Context, limit int) ([]*model.CoverageGap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.CoverageGap, 0, len(r.gaps))
	for _, g := range r.gaps {
		result = append(result, copyGap(g))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
