package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/service/embedding"
	"github.com/urfave/cli/v3"
)

// Embedding holds CLI flags for the embedding service
type Embedding struct {
	modelID   string
	dimension int64
	maxBatch  int64
	timeout   time.Duration
	retries   int64
	rateLimit float64
	burst     int64
	cacheSize int64
	cacheTTL  time.Duration
}

// Flags returns CLI flags for embedding configuration
func (x *Embedding) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model identifier, part of every cache key",
			Value:       "text-embedding-004",
			Sources:     cli.EnvVars("KBCORE_EMBEDDING_MODEL"),
			Destination: &x.modelID,
		},
		&cli.Int64Flag{
			Name:        "embedding-dimension",
			Usage:       "Embedding vector length",
			Value:       embedding.DefaultDimension,
			Sources:     cli.EnvVars("KBCORE_EMBEDDING_DIMENSION"),
			Destination: &x.dimension,
		},
		&cli.Int64Flag{
			Name:        "embedding-max-batch",
			Usage:       "Largest number of texts per provider call",
			Value:       100,
			Sources:     cli.EnvVars("KBCORE_EMBEDDING_MAX_BATCH"),
			Destination: &x.maxBatch,
		},
		&cli.DurationFlag{
			Name:        "embedding-timeout",
			Usage:       "Timeout of a single provider call",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("KBCORE_EMBEDDING_TIMEOUT"),
			Destination: &x.timeout,
		},
		&cli.Int64Flag{
			Name:        "embedding-retries",
			Usage:       "Retries of a failed provider call",
			Value:       3,
			Sources:     cli.EnvVars("KBCORE_EMBEDDING_RETRIES"),
			Destination: &x.retries,
		},
		&cli.FloatFlag{
			Name:        "embedding-rate-limit",
			Usage:       "Provider calls per second, 0 disables limiting",
			Sources:     cli.EnvVars("KBCORE_EMBEDDING_RATE_LIMIT"),
			Destination: &x.rateLimit,
		},
		&cli.Int64Flag{
			Name:        "embedding-burst",
			Usage:       "Burst size of the provider rate limiter",
			Value:       1,
			Sources:     cli.EnvVars("KBCORE_EMBEDDING_BURST"),
			Destination: &x.burst,
		},
		&cli.Int64Flag{
			Name:        "embedding-cache-size",
			Usage:       "Number of cached vectors",
			Value:       10000,
			Sources:     cli.EnvVars("KBCORE_EMBEDDING_CACHE_SIZE"),
			Destination: &x.cacheSize,
		},
		&cli.DurationFlag{
			Name:        "embedding-cache-ttl",
			Usage:       "Maximum age of a cached vector",
			Value:       7 * 24 * time.Hour,
			Sources:     cli.EnvVars("KBCORE_EMBEDDING_CACHE_TTL"),
			Destination: &x.cacheTTL,
		},
	}
}

// Dimension returns the configured vector length
func (x *Embedding) Dimension() int {
	return int(x.dimension)
}

// LogValue implements slog.LogValuer
func (x Embedding) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("model", x.modelID),
		slog.Int64("dimension", x.dimension),
		slog.Int64("max_batch", x.maxBatch),
		slog.Float64("rate_limit", x.rateLimit),
		slog.Int64("cache_size", x.cacheSize),
	)
}

// Configure creates the embedding service on top of provider. A nil provider
// selects the local hashing provider, which needs no network access.
func (x *Embedding) Configure(provider embedding.Provider) (*embedding.Service, error) {
	modelID := x.modelID
	if provider == nil {
		provider = embedding.NewHashProvider()
		modelID = "local-hash"
	}

	svc, err := embedding.New(provider,
		embedding.WithModelID(modelID),
		embedding.WithDimension(int(x.dimension)),
		embedding.WithMaxBatch(int(x.maxBatch)),
		embedding.WithTimeout(x.timeout),
		embedding.WithRetry(int(x.retries), 200*time.Millisecond, 5*time.Second),
		embedding.WithRateLimit(x.rateLimit, int(x.burst)),
		embedding.WithCache(int(x.cacheSize), x.cacheTTL),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding service")
	}
	return svc, nil
}
