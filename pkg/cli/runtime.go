package cli

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/nik45114/kbcore/pkg/cli/config"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
	domainConfig "github.com/nik45114/kbcore/pkg/domain/model/config"
	"github.com/nik45114/kbcore/pkg/service/embedding"
	"github.com/nik45114/kbcore/pkg/service/learner"
	"github.com/nik45114/kbcore/pkg/service/vectorindex"
	"github.com/nik45114/kbcore/pkg/usecase"
	"github.com/nik45114/kbcore/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// components groups the flag sets every knowledge command needs
type components struct {
	repoCfg      config.Repository
	llmCfg       config.LLM
	embeddingCfg config.Embedding
	indexCfg     config.Index
	policyCfg    config.Policy
}

func (x *components) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, x.policyCfg.Flags()...)
	flags = append(flags, x.repoCfg.Flags()...)
	flags = append(flags, x.llmCfg.Flags()...)
	flags = append(flags, x.embeddingCfg.Flags()...)
	flags = append(flags, x.indexCfg.Flags()...)
	return flags
}

// runtime is the wired object graph of one process
type runtime struct {
	repo     interfaces.Repository
	llm      gollem.LLMClient
	embedder *embedding.Service
	index    *vectorindex.Index
	policy   *domainConfig.Policy
	uc       *usecase.UseCases
}

// build opens every component, wires the use cases, loads the index and
// reconciles it against the store
func (x *components) build(ctx context.Context, ucOpts ...usecase.Option) (*runtime, error) {
	rt, err := x.open(ctx)
	if err != nil {
		return nil, err
	}
	if err := rt.wire(ucOpts...); err != nil {
		rt.close(ctx)
		return nil, err
	}
	if err := rt.loadIndex(ctx); err != nil {
		rt.close(ctx)
		return nil, err
	}
	if err := rt.reconcile(ctx); err != nil {
		rt.close(ctx)
		return nil, err
	}
	return rt, nil
}

// open configures repository, models and index. Use cases are not wired yet.
func (x *components) open(ctx context.Context) (*runtime, error) {
	logging.Default().Info("Configuration",
		"policy", x.policyCfg,
		"repository", x.repoCfg,
		"llm", x.llmCfg,
		"embedding", x.embeddingCfg,
		"index", x.indexCfg,
	)

	policy, err := x.policyCfg.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load policy")
	}

	llmClient, err := x.llmCfg.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure LLM client")
	}

	var provider embedding.Provider
	if llmClient != nil {
		provider = llmClient
	} else {
		logging.Default().Warn("No LLM provider configured, using local hashing embeddings without fallback answers")
	}
	embedder, err := x.embeddingCfg.Configure(provider)
	if err != nil {
		return nil, err
	}

	index, err := x.indexCfg.Configure(embedder.Dimension())
	if err != nil {
		return nil, err
	}

	repo, err := x.repoCfg.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize repository")
	}

	return &runtime{
		repo:     repo,
		llm:      llmClient,
		embedder: embedder,
		index:    index,
		policy:   policy,
	}, nil
}

// wire creates the use cases on top of the opened components
func (rt *runtime) wire(ucOpts ...usecase.Option) error {
	classifier, err := newClassifier(rt.policy.Learner, rt.llm)
	if err != nil {
		return err
	}

	opts := []usecase.Option{
		usecase.WithPolicy(rt.policy),
		usecase.WithClassifier(classifier),
	}
	if rt.llm != nil {
		opts = append(opts, usecase.WithLLMClient(rt.llm))
	}
	opts = append(opts, ucOpts...)

	rt.uc = usecase.New(rt.repo, rt.embedder, rt.index, opts...)
	return nil
}

func newClassifier(policy domainConfig.LearnerPolicy, llmClient gollem.LLMClient) (interfaces.Classifier, error) {
	switch policy.Classifier {
	case config.ClassifierLLM:
		if llmClient == nil {
			return nil, goerr.New("llm classifier requires an LLM provider")
		}
		c, err := learner.NewLLM(llmClient,
			learner.WithLLMMinLength(policy.MinLength),
			learner.WithCategories(policy.Categories...),
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create LLM classifier")
		}
		return c, nil

	default:
		return learner.NewHeuristic(learner.WithMinLength(policy.MinLength)), nil
	}
}

// loadIndex restores the persisted index. A corrupted blob is discarded and
// the index is rebuilt from the store.
func (rt *runtime) loadIndex(ctx context.Context) error {
	err := rt.index.Load(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrIndexCorruption) {
		return goerr.Wrap(err, "failed to load vector index")
	}

	logging.Default().Error("vector index is corrupted, rebuilding from store", "error", err.Error())
	report, err := rt.uc.Knowledge.Rebuild(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to rebuild vector index")
	}
	logging.Default().Info("vector index rebuilt", "entries", len(report.Added), "duration", report.Duration)
	return rt.persist(ctx)
}

func (rt *runtime) reconcile(ctx context.Context) error {
	report, err := rt.uc.Knowledge.Reconcile(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to reconcile vector index")
	}
	if len(report.Added) > 0 || len(report.Removed) > 0 {
		logging.Default().Warn("vector index drift repaired",
			"added", len(report.Added),
			"removed", len(report.Removed),
			"checked", report.Checked,
		)
	}
	return nil
}

func (rt *runtime) persist(ctx context.Context) error {
	if !rt.index.Dirty() {
		return nil
	}
	if err := rt.index.Persist(ctx); err != nil {
		return goerr.Wrap(err, "failed to persist vector index")
	}
	return nil
}

// close persists the index and releases the repository
func (rt *runtime) close(ctx context.Context) {
	if err := rt.persist(ctx); err != nil {
		logging.Default().Error("failed to persist vector index on close", "error", err.Error())
	}
	if err := rt.repo.Close(); err != nil {
		logging.Default().Error("failed to close repository", "error", err.Error())
	}
}
