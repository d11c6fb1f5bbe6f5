package vectorindex

import (
	"container/heap"
	"math"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
)

// Index is an exact cosine-similarity index. Vectors live at dense positions;
// removal tombstones a position and compaction rebuilds the dense arrays once
// the tombstones outweigh compactRatio of live entries.
type Index struct {
	mu sync.RWMutex
	// persistMu orders Persist and Load so the file always holds the newest snapshot
	persistMu sync.Mutex

	dimension    int
	path         string
	compactRatio float64

	ids       []model.KnowledgeID // position -> id, "" when tombstoned
	vectors   [][]float32         // position -> normalized vector, nil when tombstoned
	positions map[model.KnowledgeID]int
	tombs     int

	gen      uint64 // bumped by every mutation
	savedGen uint64 // gen at the last Persist or Load
}

var _ interfaces.VectorIndex = &Index{}

// Option is a functional option for Index configuration
type Option func(*Index)

// WithPath sets the blob path used by Persist and Load
func WithPath(path string) Option {
	return func(x *Index) {
		x.path = path
	}
}

// WithCompactRatio sets the tombstone/live ratio that triggers compaction
func WithCompactRatio(ratio float64) Option {
	return func(x *Index) {
		x.compactRatio = ratio
	}
}

// New creates an empty index for vectors of the given dimension
func New(dimension int, opts ...Option) (*Index, error) {
	if dimension <= 0 {
		return nil, goerr.New("index dimension must be positive", goerr.V("dimension", dimension))
	}

	x := &Index{
		dimension:    dimension,
		compactRatio: 0.25,
		positions:    make(map[model.KnowledgeID]int),
	}
	for _, opt := range opts {
		opt(x)
	}

	if x.compactRatio <= 0 {
		return nil, goerr.New("compact ratio must be positive", goerr.V("ratio", x.compactRatio))
	}
	return x, nil
}

// Dimension returns the vector length
func (x *Index) Dimension() int {
	return x.dimension
}

// Path returns the persistence path, empty when persistence is disabled
func (x *Index) Path() string {
	return x.path
}

// Upsert inserts or replaces the vector for id
func (x *Index) Upsert(id model.KnowledgeID, vector []float32) error {
	if id == "" {
		return goerr.Wrap(model.ErrInvalidInput, "index id is empty")
	}
	normalized, err := x.normalize(vector)
	if err != nil {
		return goerr.Wrap(err, "failed to upsert vector", goerr.V(model.KnowledgeIDKey, id))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if pos, ok := x.positions[id]; ok {
		x.vectors[pos] = normalized
	} else {
		x.positions[id] = len(x.ids)
		x.ids = append(x.ids, id)
		x.vectors = append(x.vectors, normalized)
	}
	x.gen++
	return nil
}

// Remove deletes id from the index. Unknown ids are ignored.
func (x *Index) Remove(id model.KnowledgeID) {
	x.mu.Lock()
	defer x.mu.Unlock()

	pos, ok := x.positions[id]
	if !ok {
		return
	}
	delete(x.positions, id)
	x.ids[pos] = ""
	x.vectors[pos] = nil
	x.tombs++
	x.gen++

	if float64(x.tombs) > x.compactRatio*float64(len(x.positions)) {
		x.compact()
	}
}

// compact rebuilds dense arrays without tombstones, preserving insertion order.
// Caller must hold the write lock.
func (x *Index) compact() {
	ids := make([]model.KnowledgeID, 0, len(x.positions))
	vectors := make([][]float32, 0, len(x.positions))
	for pos, id := range x.ids {
		if id == "" {
			continue
		}
		x.positions[id] = len(ids)
		ids = append(ids, id)
		vectors = append(vectors, x.vectors[pos])
	}
	x.ids = ids
	x.vectors = vectors
	x.tombs = 0
}

// Search returns up to k ids ordered by cosine similarity, highest first
func (x *Index) Search(query []float32, k int) ([]model.ScoredID, error) {
	if k <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "k must be positive", goerr.V("k", k))
	}
	q, err := x.normalize(query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search index")
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	h := &minHeap{}
	for pos, vec := range x.vectors {
		if vec == nil {
			continue
		}
		item := scored{pos: pos, score: dot(q, vec)}
		if h.Len() < k {
			heap.Push(h, item)
		} else if h.better(item, (*h)[0]) {
			(*h)[0] = item
			heap.Fix(h, 0)
		}
	}

	results := make([]model.ScoredID, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		item := heap.Pop(h).(scored)
		results[i] = model.ScoredID{ID: x.ids[item.pos], Score: item.score}
	}
	return results, nil
}

// Vector returns a copy of the stored normalized vector for id
func (x *Index) Vector(id model.KnowledgeID) ([]float32, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	pos, ok := x.positions[id]
	if !ok {
		return nil, false
	}
	vec := make([]float32, len(x.vectors[pos]))
	copy(vec, x.vectors[pos])
	return vec, true
}

// Contains reports whether id has a vector
func (x *Index) Contains(id model.KnowledgeID) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.positions[id]
	return ok
}

// IDs returns live ids in insertion order
func (x *Index) IDs() []model.KnowledgeID {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]model.KnowledgeID, 0, len(x.positions))
	for _, id := range x.ids {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of live entries
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.positions)
}

// Dirty reports whether the index changed since the last Persist or Load
func (x *Index) Dirty() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.gen != x.savedGen
}

// Reset drops every entry
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.ids = nil
	x.vectors = nil
	x.positions = make(map[model.KnowledgeID]int)
	x.tombs = 0
	x.gen++
}

func (x *Index) normalize(v []float32) ([]float32, error) {
	if len(v) != x.dimension {
		return nil, goerr.Wrap(model.ErrInvalidInput, "vector dimension mismatch",
			goerr.V("expected", x.dimension), goerr.V("actual", len(v)))
	}

	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, goerr.Wrap(model.ErrInvalidInput, "vector has no direction")
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

type scored struct {
	pos   int
	score float64
}

// minHeap keeps the k best scores with the worst on top. Equal scores favour
// the later position so that newer entries win ties.
type minHeap []scored

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h.better(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (minHeap) better(a, b scored) bool {
	if a.score == b.score {
		return a.pos > b.pos
	}
	return a.score > b.score
}

func (h *minHeap) Push(x any) {
	*h = append(*h, x.(scored))
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
