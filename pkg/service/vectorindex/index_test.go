package vectorindex_test

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/service/vectorindex"
)

func newIndex(t *testing.T, opts ...vectorindex.Option) *vectorindex.Index {
	t.Helper()
	idx, err := vectorindex.New(3, opts...)
	gt.NoError(t, err).Required()
	return idx
}

func TestIndex_Search(t *testing.T) {
	idx := newIndex(t)
	gt.NoError(t, idx.Upsert("x", []float32{1, 0, 0})).Required()
	gt.NoError(t, idx.Upsert("y", []float32{0, 1, 0})).Required()
	gt.NoError(t, idx.Upsert("xy", []float32{1, 1, 0})).Required()

	t.Run("self similarity is the top result", func(t *testing.T) {
		results, err := idx.Search([]float32{5, 0, 0}, 3)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(3)
		gt.Value(t, results[0].ID).Equal(model.KnowledgeID("x"))
		gt.Bool(t, math.Abs(results[0].Score-1) < 1e-6).True()
		gt.Value(t, results[1].ID).Equal(model.KnowledgeID("xy"))
		gt.Bool(t, math.Abs(results[1].Score-1/math.Sqrt2) < 1e-6).True()
	})

	t.Run("k limits results", func(t *testing.T) {
		results, err := idx.Search([]float32{0, 1, 0}, 1)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1)
		gt.Value(t, results[0].ID).Equal(model.KnowledgeID("y"))
	})

	t.Run("k larger than index", func(t *testing.T) {
		results, err := idx.Search([]float32{0, 0, 1}, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(3)
	})

	t.Run("invalid queries", func(t *testing.T) {
		_, err := idx.Search([]float32{0, 0, 0}, 1)
		gt.Error(t, err).Is(model.ErrInvalidInput)

		_, err = idx.Search([]float32{1, 0}, 1)
		gt.Error(t, err).Is(model.ErrInvalidInput)

		_, err = idx.Search([]float32{1, 0, 0}, 0)
		gt.Error(t, err).Is(model.ErrInvalidInput)
	})

	t.Run("later entry wins equal scores", func(t *testing.T) {
		tie := newIndex(t)
		gt.NoError(t, tie.Upsert("old", []float32{0, 0, 1})).Required()
		gt.NoError(t, tie.Upsert("new", []float32{0, 0, 2})).Required()

		results, err := tie.Search([]float32{0, 0, 1}, 2)
		gt.NoError(t, err).Required()
		gt.Value(t, results[0].ID).Equal(model.KnowledgeID("new"))
	})
}

func TestIndex_Upsert(t *testing.T) {
	t.Run("replaces existing vector", func(t *testing.T) {
		idx := newIndex(t)
		gt.NoError(t, idx.Upsert("a", []float32{1, 0, 0})).Required()
		gt.NoError(t, idx.Upsert("a", []float32{0, 1, 0})).Required()

		gt.Value(t, idx.Len()).Equal(1)
		results, err := idx.Search([]float32{0, 1, 0}, 1)
		gt.NoError(t, err).Required()
		gt.Bool(t, math.Abs(results[0].Score-1) < 1e-6).True()
	})

	t.Run("stores a normalized copy", func(t *testing.T) {
		idx := newIndex(t)
		vec := []float32{3, 4, 0}
		gt.NoError(t, idx.Upsert("a", vec)).Required()
		vec[0] = 100

		stored, ok := idx.Vector("a")
		gt.Bool(t, ok).True()
		gt.Bool(t, math.Abs(float64(stored[0])-0.6) < 1e-6).True()
		gt.Bool(t, math.Abs(float64(stored[1])-0.8) < 1e-6).True()
	})

	t.Run("rejects zero vectors and wrong dimension", func(t *testing.T) {
		idx := newIndex(t)
		gt.Error(t, idx.Upsert("a", []float32{0, 0, 0})).Is(model.ErrInvalidInput)
		gt.Error(t, idx.Upsert("a", []float32{1, 2, 3, 4})).Is(model.ErrInvalidInput)
		gt.Error(t, idx.Upsert("", []float32{1, 2, 3})).Is(model.ErrInvalidInput)
		gt.Value(t, idx.Len()).Equal(0)
	})
}

func TestIndex_Remove(t *testing.T) {
	t.Run("removed id is never returned", func(t *testing.T) {
		idx := newIndex(t)
		gt.NoError(t, idx.Upsert("a", []float32{1, 0, 0})).Required()
		gt.NoError(t, idx.Upsert("b", []float32{0.9, 0.1, 0})).Required()

		idx.Remove("a")
		results, err := idx.Search([]float32{1, 0, 0}, 5)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1)
		gt.Value(t, results[0].ID).Equal(model.KnowledgeID("b"))
		gt.Bool(t, idx.Contains("a")).False()
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		idx := newIndex(t)
		gt.NoError(t, idx.Upsert("a", []float32{1, 0, 0})).Required()
		idx.Remove("missing")
		gt.Value(t, idx.Len()).Equal(1)
	})

	t.Run("compaction keeps every live entry in order", func(t *testing.T) {
		idx := newIndex(t, vectorindex.WithCompactRatio(0.1))
		var want []model.KnowledgeID
		for i := range 50 {
			id := model.KnowledgeID(fmt.Sprintf("id-%02d", i))
			gt.NoError(t, idx.Upsert(id, []float32{float32(i + 1), 1, 0})).Required()
			if i%3 != 0 {
				want = append(want, id)
			}
		}
		for i := 0; i < 50; i += 3 {
			idx.Remove(model.KnowledgeID(fmt.Sprintf("id-%02d", i)))
		}

		gt.Value(t, idx.IDs()).Equal(want)
		gt.Value(t, idx.Len()).Equal(len(want))

		for _, id := range want {
			vec, ok := idx.Vector(id)
			gt.Bool(t, ok).True()
			results, err := idx.Search(vec, 1)
			gt.NoError(t, err).Required()
			gt.Bool(t, math.Abs(results[0].Score-1) < 1e-6).True()
		}

		// reinsert after compaction
		gt.NoError(t, idx.Upsert("id-00", []float32{0, 0, 1})).Required()
		gt.Value(t, idx.Len()).Equal(len(want) + 1)
	})
}

func TestIndex_Reset(t *testing.T) {
	idx := newIndex(t)
	gt.NoError(t, idx.Upsert("a", []float32{1, 0, 0})).Required()
	idx.Reset()
	gt.Value(t, idx.Len()).Equal(0)
	results, err := idx.Search([]float32{1, 0, 0}, 1)
	gt.NoError(t, err).Required()
	gt.Array(t, results).Length(0)
}

func TestIndex_Concurrent(t *testing.T) {
	idx := newIndex(t)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				id := model.KnowledgeID(fmt.Sprintf("w%d-%d", w, i))
				_ = idx.Upsert(id, []float32{float32(w + 1), float32(i + 1), 1})
				if i%2 == 0 {
					idx.Remove(id)
				}
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				results, err := idx.Search([]float32{1, 1, 1}, 5)
				if err != nil || len(results) > 5 {
					t.Errorf("unexpected search result: %v %d", err, len(results))
					return
				}
			}
		}()
	}
	wg.Wait()

	gt.Value(t, idx.Len()).Equal(200)
}

func TestIndex_Persist(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip keeps ids and search results", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index", "kb.idx")
		idx := newIndex(t, vectorindex.WithPath(path))
		gt.NoError(t, idx.Upsert("a", []float32{1, 0, 0})).Required()
		gt.NoError(t, idx.Upsert("b", []float32{0, 1, 0})).Required()
		gt.NoError(t, idx.Upsert("c", []float32{0, 0, 1})).Required()
		idx.Remove("b")

		gt.Bool(t, idx.Dirty()).True()
		gt.NoError(t, idx.Persist(ctx)).Required()
		gt.Bool(t, idx.Dirty()).False()

		loaded := newIndex(t, vectorindex.WithPath(path))
		gt.NoError(t, loaded.Load(ctx)).Required()
		gt.Value(t, loaded.IDs()).Equal(idx.IDs())
		gt.Bool(t, loaded.Dirty()).False()

		for _, q := range [][]float32{{1, 0, 0}, {0, 0, 1}, {1, 1, 1}} {
			want, err := idx.Search(q, 2)
			gt.NoError(t, err).Required()
			got, err := loaded.Search(q, 2)
			gt.NoError(t, err).Required()
			gt.Value(t, got).Equal(want)
		}
	})

	t.Run("missing file loads empty", func(t *testing.T) {
		idx := newIndex(t, vectorindex.WithPath(filepath.Join(t.TempDir(), "none.idx")))
		gt.NoError(t, idx.Load(ctx)).Required()
		gt.Value(t, idx.Len()).Equal(0)
	})

	t.Run("no path is a no-op", func(t *testing.T) {
		idx := newIndex(t)
		gt.NoError(t, idx.Upsert("a", []float32{1, 0, 0})).Required()
		gt.NoError(t, idx.Persist(ctx)).Required()
		gt.NoError(t, idx.Load(ctx)).Required()
		gt.Value(t, idx.Len()).Equal(1)
	})

	t.Run("no temp files are left behind", func(t *testing.T) {
		dir := t.TempDir()
		idx := newIndex(t, vectorindex.WithPath(filepath.Join(dir, "kb.idx")))
		gt.NoError(t, idx.Upsert("a", []float32{1, 0, 0})).Required()
		gt.NoError(t, idx.Persist(ctx)).Required()
		gt.NoError(t, idx.Persist(ctx)).Required()

		entries, err := os.ReadDir(dir)
		gt.NoError(t, err).Required()
		gt.Array(t, entries).Length(1)
	})

	t.Run("concurrent persists leave the newest snapshot on disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kb.idx")
		idx := newIndex(t, vectorindex.WithPath(path))

		for round := range 10 {
			var wg sync.WaitGroup
			for w := range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					id := model.KnowledgeID(fmt.Sprintf("r%d-w%d", round, w))
					if err := idx.Upsert(id, []float32{float32(w + 1), float32(round + 1), 1}); err != nil {
						t.Errorf("upsert failed: %v", err)
						return
					}
					if err := idx.Persist(ctx); err != nil {
						t.Errorf("persist failed: %v", err)
					}
				}()
			}
			wg.Wait()

			gt.Bool(t, idx.Dirty()).False()
			loaded := newIndex(t, vectorindex.WithPath(path))
			gt.NoError(t, loaded.Load(ctx)).Required()
			gt.Value(t, loaded.Len()).Equal(idx.Len())
			gt.Value(t, loaded.Len()).Equal((round + 1) * 4)
		}
	})
}

func TestIndex_LoadCorruption(t *testing.T) {
	ctx := context.Background()

	persisted := func(t *testing.T) (string, []byte) {
		path := filepath.Join(t.TempDir(), "kb.idx")
		idx := newIndex(t, vectorindex.WithPath(path))
		gt.NoError(t, idx.Upsert("a", []float32{1, 0, 0})).Required()
		gt.NoError(t, idx.Persist(ctx)).Required()
		data, err := os.ReadFile(path)
		gt.NoError(t, err).Required()
		return path, data
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"bad version", func(b []byte) []byte { b[7] = 99; return b }},
		{"flipped payload byte", func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-3] }},
		{"shorter than header", func(b []byte) []byte { return b[:5] }},
		{"empty", func([]byte) []byte { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, data := persisted(t)
			gt.NoError(t, os.WriteFile(path, tt.mutate(data), 0o600)).Required()

			idx := newIndex(t, vectorindex.WithPath(path))
			gt.NoError(t, idx.Upsert("keep", []float32{0, 1, 0})).Required()

			err := idx.Load(ctx)
			gt.Error(t, err).Is(model.ErrIndexCorruption)
			gt.Bool(t, idx.Contains("keep")).True()
		})
	}

	t.Run("dimension mismatch", func(t *testing.T) {
		path, _ := persisted(t)
		other, err := vectorindex.New(4, vectorindex.WithPath(path))
		gt.NoError(t, err).Required()
		gt.Error(t, other.Load(ctx)).Is(model.ErrIndexCorruption)
	})
}
