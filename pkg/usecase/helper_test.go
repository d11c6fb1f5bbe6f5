package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/repository/memory"
	"github.com/nik45114/kbcore/pkg/service/embedding"
	"github.com/nik45114/kbcore/pkg/service/vectorindex"
	"github.com/nik45114/kbcore/pkg/usecase"
)

const testDimension = 256

type testEnv struct {
	repo     *memory.Memory
	embedder *embedding.Service
	index    *vectorindex.Index
	uc       *usecase.UseCases
}

func newTestEnv(t *testing.T, opts ...usecase.Option) *testEnv {
	t.Helper()

	embedder, err := embedding.New(embedding.NewHashProvider(), embedding.WithDimension(testDimension))
	gt.NoError(t, err).Required()
	index, err := vectorindex.New(testDimension)
	gt.NoError(t, err).Required()

	repo := memory.New()
	return &testEnv{
		repo:     repo,
		embedder: embedder,
		index:    index,
		uc:       usecase.New(repo, embedder, index, opts...),
	}
}

// assertIndexMatchesStore checks that the index holds exactly the current records
func (e *testEnv) assertIndexMatchesStore(t *testing.T) {
	t.Helper()

	current, err := e.repo.Knowledge().ListCurrent(context.Background())
	gt.NoError(t, err).Required()

	gt.Value(t, e.index.Len()).Equal(len(current))
	for _, k := range current {
		gt.Bool(t, e.index.Contains(k.ID)).True()
	}
}

// recordingGaps collects reported coverage gaps
type recordingGaps struct {
	mu   sync.Mutex
	gaps []*model.CoverageGap
}

func (r *recordingGaps) Report(ctx context.Context, gap *model.CoverageGap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gaps = append(r.gaps, gap)
}

func (r *recordingGaps) list() []*model.CoverageGap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.CoverageGap{}, r.gaps...)
}

// mockLLMSession is a mock gollem Session for testing
type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{
		Texts: []string{"This is a test response from the LLM."},
	}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient is a mock gollem LLMClient for testing
type mockLLMClient struct {
	mu           sync.Mutex
	sessions     int
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	c.mu.Lock()
	c.sessions++
	c.mu.Unlock()
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

func (c *mockLLMClient) sessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions
}
