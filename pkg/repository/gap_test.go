package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
)

func runGapRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("List returns newest first and honours limit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		base := time.Now().UTC()
		for i, q := range []string{"first", "second", "third"} {
			_, err := repo.Gap().Create(ctx, &model.CoverageGap{
				Question:  q,
				TopScore:  0.3,
				AskedBy:   "user",
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			})
			gt.NoError(t, err).Required()
		}

		gaps, err := repo.Gap().List(ctx, 2)
		gt.NoError(t, err).Required()
		gt.Array(t, gaps).Length(2)
		gt.Value(t, gaps[0].Question).Equal("third")
		gt.Value(t, gaps[1].Question).Equal("second")
		gt.Value(t, gaps[0].TopScore).Equal(0.3)
	})
}

func TestGapRepository(t *testing.T) {
	backends(t, runGapRepositoryTest)
}
