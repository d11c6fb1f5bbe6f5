package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

// DedupReport lists the merges performed by Dedup
type DedupReport struct {
	Groups  int
	Kept    []model.KnowledgeID
	Removed []model.KnowledgeID
}

// Dedup merges near-duplicate current records. Two records are duplicates when
// their questions are close in embedding space and their answers are lexically
// close. Each group keeps its newest record; the other topics are deleted.
func (uc *KnowledgeUseCase) Dedup(ctx context.Context) (*DedupReport, error) {
	current, err := uc.repo.Knowledge().ListCurrent(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list current knowledge")
	}
	if len(current) < 2 {
		return &DedupReport{}, nil
	}

	questions := make([]string, len(current))
	byID := make(map[model.KnowledgeID]int, len(current))
	for i, k := range current {
		questions[i] = k.Question
		byID[k.ID] = i
	}

	vectors, err := uc.embedder.EmbedBatch(ctx, questions)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed questions for dedup")
	}

	sets := newUnionFind(len(current))
	for i, k := range current {
		hits, err := uc.index.Search(vectors[i], uc.dedup.Neighbours+1)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search neighbours", goerr.V(model.KnowledgeIDKey, k.ID))
		}
		for _, hit := range hits {
			j, ok := byID[hit.ID]
			if !ok || j == i || hit.Score < uc.dedup.QuestionThreshold {
				continue
			}
			if Similarity(model.QuestionKey(k.Answer), model.QuestionKey(current[j].Answer)) < uc.dedup.AnswerThreshold {
				continue
			}
			sets.union(i, j)
		}
	}

	groups := make(map[int][]int)
	for i := range current {
		root := sets.find(i)
		groups[root] = append(groups[root], i)
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	report := &DedupReport{}
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}

		winner := members[0]
		for _, m := range members[1:] {
			if newer(current[m], current[winner]) {
				winner = m
			}
		}

		merged := false
		for _, m := range members {
			if m == winner {
				continue
			}
			loser := current[m]

			// superseded since the scan; the new version was not compared
			latest, err := uc.repo.Knowledge().Get(ctx, loser.ID)
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, goerr.Wrap(err, "failed to recheck knowledge", goerr.V(model.KnowledgeIDKey, loser.ID))
			}
			if !latest.IsCurrent {
				continue
			}

			if err := uc.repo.Knowledge().DeleteTopic(ctx, loser.TopicID); err != nil {
				return nil, goerr.Wrap(err, "failed to delete duplicate topic", goerr.V(model.TopicIDKey, loser.TopicID))
			}
			uc.index.Remove(loser.ID)
			report.Removed = append(report.Removed, loser.ID)
			merged = true

			logging.From(ctx).Info("duplicate knowledge merged",
				"kept", current[winner].ID,
				"removed", loser.ID,
				"question", loser.Question)
		}

		if merged {
			report.Groups++
			report.Kept = append(report.Kept, current[winner].ID)
		}
	}

	return report, nil
}

// newer orders by creation time, then version, then id
func newer(a, b *model.Knowledge) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	return a.ID > b.ID
}

type unionFind []int

func newUnionFind(n int) unionFind {
	u := make(unionFind, n)
	for i := range u {
		u[i] = i
	}
	return u
}

func (u unionFind) find(i int) int {
	for u[i] != i {
		u[i] = u[u[i]]
		i = u[i]
	}
	return i
}

func (u unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u[rb] = ra
	}
}

// ReconcileReport describes the drift repaired by Reconcile
type ReconcileReport struct {
	Checked  int
	Added    []model.KnowledgeID
	Removed  []model.KnowledgeID
	Duration time.Duration
}

// Reconcile restores the invariant that the index holds exactly the current
// records. It is idempotent and safe to run while the service is live.
func (uc *KnowledgeUseCase) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	startTime := time.Now()

	current, err := uc.repo.Knowledge().ListCurrent(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list current knowledge")
	}

	var missing []*model.Knowledge
	for _, k := range current {
		if !uc.index.Contains(k.ID) {
			missing = append(missing, k)
		}
	}

	vectors := make(map[model.KnowledgeID][]float32, len(missing))
	if len(missing) > 0 {
		questions := make([]string, len(missing))
		for i, k := range missing {
			questions[i] = k.Question
		}
		embedded, err := uc.embedder.EmbedBatch(ctx, questions)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed missing questions", goerr.V("count", len(missing)))
		}
		for i, k := range missing {
			vectors[k.ID] = embedded[i]
		}
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	// re-read under the lock so that writes since the scan are respected
	current, err = uc.repo.Knowledge().ListCurrent(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list current knowledge")
	}

	report := &ReconcileReport{Checked: len(current)}
	live := make(map[model.KnowledgeID]bool, len(current))
	for _, k := range current {
		live[k.ID] = true
		if uc.index.Contains(k.ID) {
			continue
		}
		vec, ok := vectors[k.ID]
		if !ok {
			logging.From(ctx).Warn("current knowledge appeared during reconciliation without a vector",
				model.KnowledgeIDKey, k.ID)
			continue
		}
		if err := uc.index.Upsert(k.ID, vec); err != nil {
			return nil, goerr.Wrap(err, "failed to index knowledge", goerr.V(model.KnowledgeIDKey, k.ID))
		}
		report.Added = append(report.Added, k.ID)
	}

	for _, id := range uc.index.IDs() {
		if !live[id] {
			uc.index.Remove(id)
			report.Removed = append(report.Removed, id)
		}
	}

	report.Duration = time.Since(startTime)
	logging.From(ctx).Info("reconciliation finished",
		"checked", report.Checked,
		"added", len(report.Added),
		"removed", len(report.Removed),
		"duration", report.Duration.String())
	return report, nil
}

// ReconcileIndex runs Reconcile and returns the repair counts
func (uc *KnowledgeUseCase) ReconcileIndex(ctx context.Context) (int, int, error) {
	report, err := uc.Reconcile(ctx)
	if err != nil {
		return 0, 0, err
	}
	return len(report.Added), len(report.Removed), nil
}

// Rebuild drops the whole index and re-embeds every current record
func (uc *KnowledgeUseCase) Rebuild(ctx context.Context) (*ReconcileReport, error) {
	uc.mu.Lock()
	uc.index.Reset()
	uc.mu.Unlock()

	logging.From(ctx).Warn("vector index reset, rebuilding from knowledge store")
	return uc.Reconcile(ctx)
}
