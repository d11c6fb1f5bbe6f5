package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	domainConfig "github.com/nik45114/kbcore/pkg/domain/model/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// AppConfig represents the policy file. Omitted keys keep their defaults.
type AppConfig struct {
	Answer     AnswerConfig     `toml:"answer"`
	Moderation ModerationConfig `toml:"moderation"`
	Learner    LearnerConfig    `toml:"learner"`
	Dedup      DedupConfig      `toml:"dedup"`
	Import     ImportConfig     `toml:"import"`
}

// AnswerConfig is the [answer] section
type AnswerConfig struct {
	HighThreshold   *float64 `toml:"high_threshold"`
	MediumThreshold *float64 `toml:"medium_threshold"`
	TopK            *int     `toml:"top_k"`
	UncertainText   *string  `toml:"uncertain_text"`
	SuggestionText  *string  `toml:"suggestion_text"`
	FallbackText    *string  `toml:"fallback_text"`
	FallbackPrompt  *string  `toml:"fallback_prompt"`
}

// ModerationConfig is the [moderation] section
type ModerationConfig struct {
	AutoApproveThreshold *float64 `toml:"auto_approve_threshold"`
}

// LearnerConfig is the [learner] section
type LearnerConfig struct {
	Classifier *string  `toml:"classifier"`
	MinLength  *int     `toml:"min_length"`
	Categories []string `toml:"categories"`
}

// DedupConfig is the [dedup] section
type DedupConfig struct {
	QuestionThreshold *float64 `toml:"question_threshold"`
	AnswerThreshold   *float64 `toml:"answer_threshold"`
	Neighbours        *int     `toml:"neighbours"`
}

// ImportConfig is the [import] section
type ImportConfig struct {
	ChunkSize       *int     `toml:"chunk_size"`
	Concurrency     *int     `toml:"concurrency"`
	DraftConfidence *float64 `toml:"draft_confidence"`
	Proposer        *string  `toml:"proposer"`
}

// Policy holds the --config flag
type Policy struct {
	path string
}

// Flags returns CLI flags for policy configuration
func (x *Policy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Policy file (TOML). Defaults apply when the file is absent",
			Value:       "kbcore.toml",
			Sources:     cli.EnvVars("KBCORE_CONFIG"),
			Destination: &x.path,
		},
	}
}

// LogValue implements slog.LogValuer
func (x Policy) LogValue() slog.Value {
	return slog.GroupValue(slog.String("path", x.path))
}

// Configure loads the policy file
func (x *Policy) Configure() (*domainConfig.Policy, error) {
	return LoadPolicy(x.path)
}

// LoadPolicy reads a TOML policy file and overlays it on the defaults. A
// missing file yields the defaults.
func LoadPolicy(path string) (*domainConfig.Policy, error) {
	if path == "" {
		return domainConfig.DefaultPolicy(), nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domainConfig.DefaultPolicy(), nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	policy, err := ParsePolicy(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load policy", goerr.V(ConfigPathKey, path))
	}
	return policy, nil
}

// ParsePolicy decodes TOML policy data, applies it over the defaults and validates the result
func ParsePolicy(data []byte) (*domainConfig.Policy, error) {
	var cfg AppConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config", goerr.V("error", err.Error()))
	}

	policy := cfg.ToDomainPolicy()
	if err := ValidatePolicy(policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// ToDomainPolicy overlays the file values on the default policy
func (a *AppConfig) ToDomainPolicy() *domainConfig.Policy {
	p := domainConfig.DefaultPolicy()

	set(&p.Answer.HighThreshold, a.Answer.HighThreshold)
	set(&p.Answer.MediumThreshold, a.Answer.MediumThreshold)
	set(&p.Answer.TopK, a.Answer.TopK)
	set(&p.Answer.UncertainText, a.Answer.UncertainText)
	set(&p.Answer.SuggestionText, a.Answer.SuggestionText)
	set(&p.Answer.FallbackText, a.Answer.FallbackText)
	set(&p.Answer.FallbackPrompt, a.Answer.FallbackPrompt)

	set(&p.Moderation.AutoApproveThreshold, a.Moderation.AutoApproveThreshold)

	set(&p.Learner.Classifier, a.Learner.Classifier)
	set(&p.Learner.MinLength, a.Learner.MinLength)
	if a.Learner.Categories != nil {
		p.Learner.Categories = a.Learner.Categories
	}

	set(&p.Dedup.QuestionThreshold, a.Dedup.QuestionThreshold)
	set(&p.Dedup.AnswerThreshold, a.Dedup.AnswerThreshold)
	set(&p.Dedup.Neighbours, a.Dedup.Neighbours)

	set(&p.Import.ChunkSize, a.Import.ChunkSize)
	set(&p.Import.Concurrency, a.Import.Concurrency)
	set(&p.Import.DraftConfidence, a.Import.DraftConfidence)
	set(&p.Import.Proposer, a.Import.Proposer)

	return p
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// ValidatePolicy checks value ranges across every section
func ValidatePolicy(p *domainConfig.Policy) error {
	unit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return goerr.Wrap(ErrInvalidConfig, "threshold must be within [0, 1]",
				goerr.V(FieldKey, name), goerr.V(ValueKey, v))
		}
		return nil
	}
	positive := func(name string, v int) error {
		if v < 1 {
			return goerr.Wrap(ErrInvalidConfig, "value must be positive",
				goerr.V(FieldKey, name), goerr.V(ValueKey, v))
		}
		return nil
	}

	checks := []error{
		unit("answer.high_threshold", p.Answer.HighThreshold),
		unit("answer.medium_threshold", p.Answer.MediumThreshold),
		positive("answer.top_k", p.Answer.TopK),
		unit("moderation.auto_approve_threshold", p.Moderation.AutoApproveThreshold),
		positive("learner.min_length", p.Learner.MinLength),
		unit("dedup.question_threshold", p.Dedup.QuestionThreshold),
		unit("dedup.answer_threshold", p.Dedup.AnswerThreshold),
		positive("dedup.neighbours", p.Dedup.Neighbours),
		positive("import.chunk_size", p.Import.ChunkSize),
		positive("import.concurrency", p.Import.Concurrency),
		unit("import.draft_confidence", p.Import.DraftConfidence),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if p.Answer.MediumThreshold > p.Answer.HighThreshold {
		return goerr.Wrap(ErrInvalidConfig, "medium threshold exceeds high threshold",
			goerr.V("high", p.Answer.HighThreshold), goerr.V("medium", p.Answer.MediumThreshold))
	}

	switch p.Learner.Classifier {
	case ClassifierHeuristic, ClassifierLLM:
	default:
		return goerr.Wrap(ErrInvalidConfig, "unknown classifier",
			goerr.V(FieldKey, "learner.classifier"), goerr.V(ValueKey, p.Learner.Classifier))
	}

	return nil
}
