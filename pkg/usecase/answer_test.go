package usecase_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/model/config"
	"github.com/nik45114/kbcore/pkg/domain/types"
	"github.com/nik45114/kbcore/pkg/repository/memory"
	"github.com/nik45114/kbcore/pkg/usecase"
)

// fixedIndex returns preset hits regardless of the query
type fixedIndex struct {
	hits []model.ScoredID
	err  error
}

func (x *fixedIndex) Upsert(id model.KnowledgeID, vector []float32) error { return nil }
func (x *fixedIndex) Remove(id model.KnowledgeID)                         {}
func (x *fixedIndex) Contains(id model.KnowledgeID) bool                  { return false }
func (x *fixedIndex) IDs() []model.KnowledgeID                            { return nil }
func (x *fixedIndex) Reset()                                              {}

func (x *fixedIndex) Search(query []float32, k int) ([]model.ScoredID, error) {
	if x.err != nil {
		return nil, x.err
	}
	return x.hits, nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

func (constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1}
	}
	return result, nil
}

type answerFixture struct {
	repo  *memory.Memory
	index *fixedIndex
	gaps  *recordingGaps
	llm   *mockLLMClient
	uc    *usecase.AnswerUseCase
	rec   *model.Knowledge
}

func newAnswerFixture(t *testing.T) *answerFixture {
	t.Helper()
	ctx := context.Background()

	repo := memory.New()
	rec, err := repo.Knowledge().Create(ctx, model.NewKnowledge("Где находится клуб?", "  Ленина 5  ", model.KnowledgeMeta{}))
	gt.NoError(t, err).Required()

	f := &answerFixture{
		repo:  repo,
		index: &fixedIndex{},
		gaps:  &recordingGaps{},
		llm:   &mockLLMClient{},
		rec:   rec,
	}
	f.uc = usecase.NewAnswerUseCase(repo, constEmbedder{}, f.index, config.DefaultAnswerPolicy(), f.llm, f.gaps)
	return f
}

func TestAnswerUseCase_ConfidenceTiers(t *testing.T) {
	ctx := context.Background()
	policy := config.DefaultAnswerPolicy()
	below := func(v float64) float64 { return math.Nextafter(v, 0) }

	tests := []struct {
		name  string
		score float64
		mode  types.AnswerMode
	}{
		{name: "exactly high is corpus", score: policy.HighThreshold, mode: types.AnswerModeCorpus},
		{name: "just below high is uncertain", score: below(policy.HighThreshold), mode: types.AnswerModeUncertain},
		{name: "exactly medium is uncertain", score: policy.MediumThreshold, mode: types.AnswerModeUncertain},
		{name: "just below medium is fallback", score: below(policy.MediumThreshold), mode: types.AnswerModeFallback},
		{name: "perfect match is corpus", score: 1, mode: types.AnswerModeCorpus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAnswerFixture(t)
			f.index.hits = []model.ScoredID{{ID: f.rec.ID, Score: tt.score}}

			ans, err := f.uc.Answer(ctx, "где клуб", "u1")
			gt.NoError(t, err).Required()
			gt.Value(t, ans.Mode).Equal(tt.mode)
			gt.Value(t, ans.Score).Equal(tt.score)
		})
	}
}

func TestAnswerUseCase_Corpus(t *testing.T) {
	ctx := context.Background()
	f := newAnswerFixture(t)
	f.index.hits = []model.ScoredID{{ID: f.rec.ID, Score: 0.93}}

	ans, err := f.uc.Answer(ctx, "где клуб", "u1")
	gt.NoError(t, err).Required()

	gt.Value(t, ans.Text).Equal("Ленина 5")
	gt.Value(t, ans.ProvenanceIDs).Equal([]model.KnowledgeID{f.rec.ID})
	gt.Value(t, f.llm.sessionCount()).Equal(0)
	gt.Array(t, f.gaps.list()).Length(0)
}

func TestAnswerUseCase_Uncertain(t *testing.T) {
	ctx := context.Background()
	f := newAnswerFixture(t)
	f.index.hits = []model.ScoredID{{ID: f.rec.ID, Score: 0.6}}

	ans, err := f.uc.Answer(ctx, "где клуб", "u1")
	gt.NoError(t, err).Required()

	gt.Value(t, ans.SuggestionID).Equal(f.rec.ID)
	gt.Array(t, ans.ProvenanceIDs).Length(0)
	gt.String(t, ans.Text).Contains(config.DefaultAnswerPolicy().UncertainText)
	gt.String(t, ans.Text).Contains(f.rec.Question)
	gt.Value(t, f.llm.sessionCount()).Equal(0)
}

func TestAnswerUseCase_Fallback(t *testing.T) {
	ctx := context.Background()

	t.Run("low score asks the LLM and reports a gap", func(t *testing.T) {
		f := newAnswerFixture(t)
		f.index.hits = []model.ScoredID{{ID: f.rec.ID, Score: 0.2}}

		ans, err := f.uc.Answer(ctx, "есть ли сауна", "u7")
		gt.NoError(t, err).Required()

		gt.Value(t, ans.Mode).Equal(types.AnswerModeFallback)
		gt.Value(t, ans.Text).Equal("This is a test response from the LLM.")
		gt.Array(t, ans.ProvenanceIDs).Length(0)
		gt.Value(t, f.llm.sessionCount()).Equal(1)

		gaps := f.gaps.list()
		gt.Array(t, gaps).Length(1)
		gt.Value(t, gaps[0].Question).Equal("есть ли сауна")
		gt.Value(t, gaps[0].AskedBy).Equal("u7")
		gt.Value(t, gaps[0].TopScore).Equal(0.2)
	})

	t.Run("LLM failure yields the static reply", func(t *testing.T) {
		f := newAnswerFixture(t)
		f.llm.newSessionFn = func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					return nil, errors.New("quota exceeded")
				},
			}, nil
		}

		ans, err := f.uc.Answer(ctx, "есть ли сауна", "u1")
		gt.NoError(t, err).Required()
		gt.Value(t, ans.Mode).Equal(types.AnswerModeFallback)
		gt.Value(t, ans.Text).Equal(config.DefaultAnswerPolicy().FallbackText)
	})

	t.Run("no LLM configured yields the static reply", func(t *testing.T) {
		f := newAnswerFixture(t)
		uc := usecase.NewAnswerUseCase(f.repo, constEmbedder{}, f.index, config.DefaultAnswerPolicy(), nil, nil)

		ans, err := uc.Answer(ctx, "есть ли сауна", "u1")
		gt.NoError(t, err).Required()
		gt.Value(t, ans.Text).Equal(config.DefaultAnswerPolicy().FallbackText)
	})

	t.Run("search failure falls back instead of failing", func(t *testing.T) {
		f := newAnswerFixture(t)
		f.index.err = errors.New("index unavailable")

		ans, err := f.uc.Answer(ctx, "где клуб", "u1")
		gt.NoError(t, err).Required()
		gt.Value(t, ans.Mode).Equal(types.AnswerModeFallback)
		gt.Value(t, ans.Score).Equal(0.0)
	})

	t.Run("embedding failure falls back instead of failing", func(t *testing.T) {
		f := newAnswerFixture(t)
		uc := usecase.NewAnswerUseCase(f.repo, failingEmbedder{}, f.index, config.DefaultAnswerPolicy(), f.llm, f.gaps)

		ans, err := uc.Answer(ctx, "где клуб", "u1")
		gt.NoError(t, err).Required()
		gt.Value(t, ans.Mode).Equal(types.AnswerModeFallback)
	})
}

func TestAnswerUseCase_SkipsDrift(t *testing.T) {
	ctx := context.Background()
	f := newAnswerFixture(t)

	v2 := f.rec.NextVersion("Мира 12", model.KnowledgeMeta{})
	_, created, err := f.repo.Knowledge().Supersede(ctx, f.rec.TopicID, v2)
	gt.NoError(t, err).Required()

	// stale and missing ids score higher than the current record
	f.index.hits = []model.ScoredID{
		{ID: f.rec.ID, Score: 0.99},
		{ID: model.NewKnowledgeID(), Score: 0.98},
		{ID: created.ID, Score: 0.8},
	}

	ans, err := f.uc.Answer(ctx, "где клуб", "u1")
	gt.NoError(t, err).Required()
	gt.Value(t, ans.Mode).Equal(types.AnswerModeCorpus)
	gt.Value(t, ans.Text).Equal("Мира 12")
	gt.Value(t, ans.ProvenanceIDs).Equal([]model.KnowledgeID{created.ID})
}

func TestAnswerUseCase_TieBreak(t *testing.T) {
	ctx := context.Background()
	f := newAnswerFixture(t)

	newer, err := f.repo.Knowledge().Create(ctx, model.NewKnowledge("Где клуб?", "Мира 12", model.KnowledgeMeta{}))
	gt.NoError(t, err).Required()

	f.index.hits = []model.ScoredID{
		{ID: f.rec.ID, Score: 0.9},
		{ID: newer.ID, Score: 0.9},
	}

	ans, err := f.uc.Answer(ctx, "где клуб", "u1")
	gt.NoError(t, err).Required()
	gt.Value(t, ans.ProvenanceIDs).Equal([]model.KnowledgeID{newer.ID})

	// order of hits does not matter
	f.index.hits = []model.ScoredID{
		{ID: newer.ID, Score: 0.9},
		{ID: f.rec.ID, Score: 0.9},
	}
	ans, err = f.uc.Answer(ctx, "где клуб", "u1")
	gt.NoError(t, err).Required()
	gt.Value(t, ans.ProvenanceIDs).Equal([]model.KnowledgeID{newer.ID})
}

func TestAnswerUseCase_EmptyQuestion(t *testing.T) {
	f := newAnswerFixture(t)
	_, err := f.uc.Answer(context.Background(), " \n ", "u1")
	gt.Error(t, err).Is(model.ErrInvalidInput)
}
