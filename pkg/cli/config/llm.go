package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/urfave/cli/v3"
)

// LLM provider names
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// LLM holds configuration for the language model client used for embeddings,
// fallback answers and message classification
type LLM struct {
	provider       string
	geminiProject  string
	geminiLocation string
	geminiModel    string
	openaiAPIKey   string
	openaiModel    string
}

// Flags returns CLI flags for LLM configuration
func (x *LLM) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "LLM provider (gemini, openai, none). none uses local hashing embeddings and no fallback model",
			Value:       ProviderGemini,
			Sources:     cli.EnvVars("KBCORE_LLM_PROVIDER"),
			Destination: &x.provider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Sources:     cli.EnvVars("KBCORE_GEMINI_PROJECT"),
			Destination: &x.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Value:       "us-central1",
			Sources:     cli.EnvVars("KBCORE_GEMINI_LOCATION"),
			Destination: &x.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini generation model (provider default when empty)",
			Sources:     cli.EnvVars("KBCORE_GEMINI_MODEL"),
			Destination: &x.geminiModel,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("KBCORE_OPENAI_API_KEY"),
			Destination: &x.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI generation model (provider default when empty)",
			Sources:     cli.EnvVars("KBCORE_OPENAI_MODEL"),
			Destination: &x.openaiModel,
		},
	}
}

// Provider returns the configured provider name
func (x *LLM) Provider() string {
	return x.provider
}

// LogValue implements slog.LogValuer. The API key is never logged.
func (x LLM) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", x.provider),
		slog.String("gemini_project", x.geminiProject),
		slog.String("gemini_location", x.geminiLocation),
		slog.Bool("openai_api_key_set", x.openaiAPIKey != ""),
	)
}

// Configure creates the LLM client. It returns nil for the none provider.
func (x *LLM) Configure(ctx context.Context) (gollem.LLMClient, error) {
	switch x.provider {
	case ProviderGemini:
		if x.geminiProject == "" {
			return nil, goerr.New("gemini-project is required when using gemini provider")
		}
		var opts []gemini.Option
		if x.geminiModel != "" {
			opts = append(opts, gemini.WithModel(x.geminiModel))
		}
		client, err := gemini.New(ctx, x.geminiProject, x.geminiLocation, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		return client, nil

	case ProviderOpenAI:
		if x.openaiAPIKey == "" {
			return nil, goerr.New("openai-api-key is required when using openai provider")
		}
		var opts []openai.Option
		if x.openaiModel != "" {
			opts = append(opts, openai.WithModel(x.openaiModel))
		}
		client, err := openai.New(ctx, x.openaiAPIKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		return client, nil

	case ProviderNone:
		return nil, nil

	default:
		return nil, goerr.New("invalid LLM provider", goerr.V("provider", x.provider))
	}
}
