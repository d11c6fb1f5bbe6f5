package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/nik45114/kbcore/pkg/cli/config"
	domainConfig "github.com/nik45114/kbcore/pkg/domain/model/config"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, p *domainConfig.Policy)
	}{
		{
			name:    "empty file keeps defaults",
			content: "",
			check: func(t *testing.T, p *domainConfig.Policy) {
				gt.Value(t, p).Equal(domainConfig.DefaultPolicy())
			},
		},
		{
			name: "overrides only the given keys",
			content: `
[answer]
high_threshold = 0.8
fallback_text = "Спросите у администратора"

[moderation]
auto_approve_threshold = 0.95

[learner]
classifier = "llm"
categories = ["правила", "расписание"]
`,
			check: func(t *testing.T, p *domainConfig.Policy) {
				gt.Value(t, p.Answer.HighThreshold).Equal(0.8)
				gt.Value(t, p.Answer.MediumThreshold).Equal(0.55)
				gt.Value(t, p.Answer.FallbackText).Equal("Спросите у администратора")
				gt.Value(t, p.Moderation.AutoApproveThreshold).Equal(0.95)
				gt.Value(t, p.Learner.Classifier).Equal("llm")
				gt.Value(t, p.Learner.MinLength).Equal(12)
				gt.Value(t, p.Learner.Categories).Equal([]string{"правила", "расписание"})
				gt.Value(t, p.Import.ChunkSize).Equal(50)
			},
		},
		{
			name: "threshold out of range",
			content: `
[dedup]
question_threshold = 1.2
`,
			wantErr: true,
		},
		{
			name: "medium above high",
			content: `
[answer]
high_threshold = 0.6
medium_threshold = 0.65
`,
			wantErr: true,
		},
		{
			name: "zero top_k",
			content: `
[answer]
top_k = 0
`,
			wantErr: true,
		},
		{
			name: "unknown classifier",
			content: `
[learner]
classifier = "regex"
`,
			wantErr: true,
		},
		{
			name:    "malformed TOML",
			content: "[answer\nhigh_threshold = ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := config.ParsePolicy([]byte(tt.content))
			if tt.wantErr {
				gt.Error(t, err).Is(config.ErrInvalidConfig)
				return
			}
			gt.NoError(t, err).Required()
			tt.check(t, p)
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		p, err := config.LoadPolicy(filepath.Join(t.TempDir(), "absent.toml"))
		gt.NoError(t, err).Required()
		gt.Value(t, p).Equal(domainConfig.DefaultPolicy())
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kbcore.toml")
		gt.NoError(t, os.WriteFile(path, []byte("[import]\nconcurrency = 2\n"), 0o600)).Required()

		p, err := config.LoadPolicy(path)
		gt.NoError(t, err).Required()
		gt.Value(t, p.Import.Concurrency).Equal(2)
	})

	t.Run("invalid file reports the path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kbcore.toml")
		gt.NoError(t, os.WriteFile(path, []byte("[answer]\ntop_k = -1\n"), 0o600)).Required()

		_, err := config.LoadPolicy(path)
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})
}

func TestLLM_Configure(t *testing.T) {
	ctx := context.Background()

	t.Run("none provider has no client", func(t *testing.T) {
		client, err := config.NewLLMForTest(config.ProviderNone, "", "").Configure(ctx)
		gt.NoError(t, err)
		gt.Value(t, client).Nil()
	})

	t.Run("gemini requires a project", func(t *testing.T) {
		_, err := config.NewLLMForTest(config.ProviderGemini, "", "").Configure(ctx)
		gt.Error(t, err)
	})

	t.Run("openai requires an API key", func(t *testing.T) {
		_, err := config.NewLLMForTest(config.ProviderOpenAI, "", "").Configure(ctx)
		gt.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := config.NewLLMForTest("claude", "", "").Configure(ctx)
		gt.Error(t, err)
	})
}

func TestRepository_Configure(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		repo, err := config.NewRepositoryForTest("memory", "", "").Configure(ctx)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kb.db")
		repo, err := config.NewRepositoryForTest("sqlite", path, "").Configure(ctx)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Close())

		_, err = os.Stat(path)
		gt.NoError(t, err)
	})

	t.Run("firestore requires a project", func(t *testing.T) {
		_, err := config.NewRepositoryForTest("firestore", "", "").Configure(ctx)
		gt.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := config.NewRepositoryForTest("postgres", "", "").Configure(ctx)
		gt.Error(t, err)
	})
}

func TestEmbedding_Configure(t *testing.T) {
	svc, err := config.NewEmbeddingForTest(64).Configure(nil)
	gt.NoError(t, err).Required()
	gt.Value(t, svc.Dimension()).Equal(64)
	gt.Value(t, svc.ModelID()).Equal("local-hash")

	vec, err := svc.Embed(context.Background(), "где клуб")
	gt.NoError(t, err).Required()
	gt.Array(t, vec).Length(64)

	_, err = config.NewEmbeddingForTest(0).Configure(nil)
	gt.Error(t, err)
}

func TestIndex_Configure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.index")
	index, err := config.NewIndexForTest(path).Configure(32)
	gt.NoError(t, err).Required()
	gt.Value(t, index.Path()).Equal(path)
	gt.Value(t, index.Dimension()).Equal(32)

	index, err = config.NewIndexForTest("").Configure(32)
	gt.NoError(t, err).Required()
	gt.Value(t, index.Path()).Equal("")
}

func TestLogger_Configure(t *testing.T) {
	orig := logging.Default()
	t.Cleanup(func() { logging.SetDefault(orig) })

	t.Run("writes to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kb.log")
		closer, err := config.NewLoggerForTest("debug", "json", path).Configure()
		gt.NoError(t, err).Required()
		closer()

		_, err = os.Stat(path)
		gt.NoError(t, err)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := config.NewLoggerForTest("verbose", "console", "stdout").Configure()
		gt.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := config.NewLoggerForTest("info", "xml", "stdout").Configure()
		gt.Error(t, err)
	})
}
