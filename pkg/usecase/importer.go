package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/model/config"
	"github.com/nik45114/kbcore/pkg/utils/logging"
	"github.com/nik45114/kbcore/pkg/utils/safe"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/errgroup"
)

// ImportItem is one question/answer pair of an import file
type ImportItem struct {
	Question string   `json:"question" toml:"question"`
	Answer   string   `json:"answer" toml:"answer"`
	Category string   `json:"category,omitempty" toml:"category"`
	Tags     []string `json:"tags,omitempty" toml:"tags"`
	Source   string   `json:"source,omitempty" toml:"source"`
}

type importFile struct {
	Items []ImportItem `toml:"item"`
}

// ImportOptions controls a single import run
type ImportOptions struct {
	AsDrafts bool   // enqueue drafts instead of writing knowledge
	Proposer string // defaults to the policy proposer
}

// ImportReport counts the outcome of every item
type ImportReport struct {
	Imported int
	Skipped  int
	Failed   int
}

// ImportUseCase bulk-loads question/answer pairs
type ImportUseCase struct {
	repo      interfaces.Repository
	embedder  interfaces.Embedder
	knowledge *KnowledgeUseCase
	drafts    *DraftUseCase
	policy    config.ImportPolicy
}

func NewImportUseCase(repo interfaces.Repository, embedder interfaces.Embedder, knowledge *KnowledgeUseCase, drafts *DraftUseCase, policy config.ImportPolicy) *ImportUseCase {
	return &ImportUseCase{
		repo:      repo,
		embedder:  embedder,
		knowledge: knowledge,
		drafts:    drafts,
		policy:    policy,
	}
}

// LoadImportFile reads items from a .jsonl or .toml file
func LoadImportFile(ctx context.Context, path string) ([]ImportItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open import file", goerr.V("path", path))
	}
	defer safe.Close(ctx, f)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return ParseJSONL(f)
	case ".toml":
		return ParseTOML(f)
	default:
		return nil, goerr.Wrap(model.ErrInvalidInput, "unsupported import file type", goerr.V("path", path))
	}
}

// ParseJSONL reads one JSON object per line. Blank lines are ignored.
func ParseJSONL(r io.Reader) ([]ImportItem, error) {
	var items []ImportItem
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var item ImportItem
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return nil, goerr.Wrap(model.ErrInvalidInput, "malformed import line",
				goerr.V("line", line), goerr.V("error", err.Error()))
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read import file")
	}
	return items, nil
}

// ParseTOML reads a document of [[item]] tables
func ParseTOML(r io.Reader) ([]ImportItem, error) {
	var file importFile
	if err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "malformed import file", goerr.V("error", err.Error()))
	}
	return file.Items, nil
}

// Import writes items that have no current record yet, so an interrupted run
// can simply be repeated. Chunks are embedded concurrently; cancellation stops
// before the next chunk and returns the partial report with the context error.
func (uc *ImportUseCase) Import(ctx context.Context, items []ImportItem, opts ImportOptions) (*ImportReport, error) {
	if opts.Proposer == "" {
		opts.Proposer = uc.policy.Proposer
	}

	report := &ImportReport{}
	pending, err := uc.filter(ctx, items, report)
	if err != nil {
		return report, err
	}

	if opts.AsDrafts {
		return report, uc.importDrafts(ctx, pending, opts, report)
	}

	var mu sync.Mutex
	chunkSize := max(uc.policy.ChunkSize, 1)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(uc.policy.Concurrency, 1))

	for start := 0; start < len(pending); start += chunkSize {
		if egCtx.Err() != nil {
			break
		}
		chunk := pending[start:min(start+chunkSize, len(pending))]

		eg.Go(func() error {
			imported, failed := uc.importChunk(egCtx, chunk, opts)
			mu.Lock()
			report.Imported += imported
			report.Failed += failed
			mu.Unlock()
			return egCtx.Err()
		})
	}

	if err := eg.Wait(); err != nil {
		return report, goerr.Wrap(err, "import interrupted",
			goerr.V("imported", report.Imported), goerr.V("skipped", report.Skipped))
	}
	if err := ctx.Err(); err != nil {
		return report, goerr.Wrap(err, "import interrupted", goerr.V("imported", report.Imported))
	}

	logging.From(ctx).Info("import finished",
		"imported", report.Imported,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report, nil
}

// filter drops invalid items, items repeated within the run, and items whose
// question already has a current record
func (uc *ImportUseCase) filter(ctx context.Context, items []ImportItem, report *ImportReport) ([]ImportItem, error) {
	seen := make(map[string]bool, len(items))
	var pending []ImportItem

	for i, item := range items {
		if err := model.ValidateQA(item.Question, item.Answer); err != nil {
			logging.From(ctx).Warn("skipping invalid import item", "index", i, "error", err.Error())
			report.Failed++
			continue
		}

		key := model.QuestionKey(item.Question)
		if seen[key] {
			report.Skipped++
			continue
		}
		seen[key] = true

		existing, err := uc.repo.Knowledge().ListByQuestionKey(ctx, key)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to check existing knowledge", goerr.V("question", item.Question))
		}
		if hasCurrent(existing) {
			report.Skipped++
			continue
		}
		pending = append(pending, item)
	}
	return pending, nil
}

func hasCurrent(records []*model.Knowledge) bool {
	for _, k := range records {
		if k.IsCurrent {
			return true
		}
	}
	return false
}

// importChunk embeds chunk in one batch and writes its records. A failed
// batch counts every item of the chunk as failed.
func (uc *ImportUseCase) importChunk(ctx context.Context, chunk []ImportItem, opts ImportOptions) (imported, failed int) {
	questions := make([]string, len(chunk))
	for i, item := range chunk {
		questions[i] = item.Question
	}

	vectors, err := uc.embedder.EmbedBatch(ctx, questions)
	if err != nil {
		if ctx.Err() == nil {
			logging.From(ctx).Error("failed to embed import chunk", "size", len(chunk), "error", err.Error())
		}
		return 0, len(chunk)
	}

	for i, item := range chunk {
		if ctx.Err() != nil {
			return imported, failed
		}
		k := model.NewKnowledge(item.Question, item.Answer, itemMeta(item, opts))
		if _, err := uc.knowledge.addEmbedded(ctx, k, vectors[i]); err != nil {
			logging.From(ctx).Error("failed to import item", "question", item.Question, "error", err.Error())
			failed++
			continue
		}
		imported++
	}
	return imported, failed
}

func (uc *ImportUseCase) importDrafts(ctx context.Context, items []ImportItem, opts ImportOptions, report *ImportReport) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return goerr.Wrap(err, "import interrupted", goerr.V("imported", report.Imported))
		}
		if _, err := uc.drafts.Enqueue(ctx, item.Question, item.Answer, itemMeta(item, opts), uc.policy.DraftConfidence, opts.Proposer); err != nil {
			logging.From(ctx).Error("failed to enqueue import item", "question", item.Question, "error", err.Error())
			report.Failed++
			continue
		}
		report.Imported++
	}

	logging.From(ctx).Info("import finished as drafts",
		"imported", report.Imported,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return nil
}

func itemMeta(item ImportItem, opts ImportOptions) model.KnowledgeMeta {
	source := item.Source
	if source == "" {
		source = "import"
	}
	return model.KnowledgeMeta{
		Category:  item.Category,
		Tags:      item.Tags,
		Source:    source,
		CreatedBy: opts.Proposer,
	}
}
