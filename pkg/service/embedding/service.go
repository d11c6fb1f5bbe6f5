package embedding

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/utils/logging"
	"golang.org/x/time/rate"
)

// DefaultDimension matches Gemini text-embedding-004
const DefaultDimension = 768

// Provider generates embeddings. gollem.LLMClient satisfies it.
type Provider interface {
	GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

// Service is a memoizing embedding client. Same (model, normalized text)
// always yields the same vector while the entry is cached.
type Service struct {
	provider  Provider
	modelID   string
	dimension int
	maxBatch  int
	timeout   time.Duration

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	retryable  func(error) bool

	limiter *rate.Limiter

	cacheSize int
	cacheTTL  time.Duration
	cache     *expirable.LRU[uint64, []float32]

	hits          atomic.Int64
	misses        atomic.Int64
	providerCalls atomic.Int64
}

var _ interfaces.Embedder = &Service{}

// Option is a functional option for Service configuration
type Option func(*Service)

// WithModelID sets the model identifier mixed into cache keys
func WithModelID(id string) Option {
	return func(s *Service) {
		s.modelID = id
	}
}

// WithDimension sets the vector length requested from the provider
func WithDimension(dim int) Option {
	return func(s *Service) {
		s.dimension = dim
	}
}

// WithMaxBatch sets the largest number of texts sent in one provider call
func WithMaxBatch(n int) Option {
	return func(s *Service) {
		s.maxBatch = n
	}
}

// WithTimeout bounds each provider call
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithRetry configures exponential backoff for failed provider calls
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(s *Service) {
		s.maxRetries = maxRetries
		s.baseDelay = baseDelay
		s.maxDelay = maxDelay
	}
}

// WithRetryable replaces the default retry classification
func WithRetryable(fn func(error) bool) Option {
	return func(s *Service) {
		s.retryable = fn
	}
}

// WithRateLimit limits provider calls per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Service) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache sets the cache capacity and the maximum age of an entry
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		s.cacheSize = size
		s.cacheTTL = ttl
	}
}

// New creates a new embedding Service
func New(provider Provider, opts ...Option) (*Service, error) {
	if provider == nil {
		return nil, goerr.New("embedding provider is required")
	}

	s := &Service{
		provider:   provider,
		modelID:    "default",
		dimension:  DefaultDimension,
		maxBatch:   100,
		timeout:    30 * time.Second,
		maxRetries: 3,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   5 * time.Second,
		retryable:  IsRetryable,
		cacheSize:  10000,
		cacheTTL:   7 * 24 * time.Hour,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive", goerr.V("dimension", s.dimension))
	}
	if s.maxBatch <= 0 {
		return nil, goerr.New("max batch must be positive", goerr.V("max_batch", s.maxBatch))
	}
	if s.maxRetries < 0 {
		return nil, goerr.New("max retries must not be negative", goerr.V("max_retries", s.maxRetries))
	}
	if s.cacheSize <= 0 {
		return nil, goerr.New("cache size must be positive", goerr.V("cache_size", s.cacheSize))
	}
	if s.cacheTTL <= 0 {
		return nil, goerr.New("cache TTL must be positive", goerr.V("cache_ttl", s.cacheTTL))
	}

	s.cache = expirable.NewLRU[uint64, []float32](s.cacheSize, nil, s.cacheTTL)
	return s, nil
}

// ModelID returns the model identifier used in cache keys
func (s *Service) ModelID() string {
	return s.modelID
}

// Dimension returns the vector length
func (s *Service) Dimension() int {
	return s.dimension
}

// Embed returns the vector for a single text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text, in order. Any empty text fails the
// whole batch before the provider is called. Cache misses are deduplicated and
// sent to the provider in chunks of at most maxBatch.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	normalized := make([]string, len(texts))
	for i, text := range texts {
		n := model.NormalizeText(text)
		if n == "" {
			return nil, goerr.Wrap(model.ErrInvalidInput, "text is empty", goerr.V("index", i))
		}
		normalized[i] = n
	}

	result := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var order []string

	for i, text := range normalized {
		if vec, ok := s.cache.Get(s.cacheKey(text)); ok {
			s.hits.Add(1)
			result[i] = copyVector(vec)
			continue
		}
		s.misses.Add(1)
		if _, seen := pending[text]; !seen {
			order = append(order, text)
		}
		pending[text] = append(pending[text], i)
	}

	for start := 0; start < len(order); start += s.maxBatch {
		end := min(start+s.maxBatch, len(order))
		chunk := order[start:end]

		vectors, err := s.generate(ctx, chunk)
		if err != nil {
			return nil, err
		}

		for j, text := range chunk {
			s.cache.Add(s.cacheKey(text), vectors[j])
			for _, i := range pending[text] {
				result[i] = copyVector(vectors[j])
			}
		}
	}

	return result, nil
}

// Cached reports whether text already has a cached vector
func (s *Service) Cached(text string) bool {
	n := model.NormalizeText(text)
	if n == "" {
		return false
	}
	_, ok := s.cache.Peek(s.cacheKey(n))
	return ok
}

// Stats is a snapshot of cache and provider counters
type Stats struct {
	Hits          int64
	Misses        int64
	ProviderCalls int64
	CacheLen      int
}

// Stats returns current counters
func (s *Service) Stats() Stats {
	return Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		ProviderCalls: s.providerCalls.Load(),
		CacheLen:      s.cache.Len(),
	}
}

func (s *Service) cacheKey(normalized string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(s.modelID)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(normalized)
	return d.Sum64()
}

// newBackOff returns the exponential wait policy between provider retries
func (s *Service) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.baseDelay
	b.MaxInterval = s.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	return b
}

// generate calls the provider with retries and bounded exponential backoff.
// Errors that IsRetryable rejects stop the loop at once.
func (s *Service) generate(ctx context.Context, texts []string) ([][]float32, error) {
	attempt := 0
	vectors, err := backoff.Retry(ctx, func() ([][]float32, error) {
		attempt++
		vectors, err := s.call(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if ctx.Err() != nil || !s.retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logging.From(ctx).Warn("embedding provider call failed",
				"attempt", attempt,
				"max_retries", s.maxRetries,
				"batch", len(texts),
				"wait", wait,
				"error", err.Error(),
			)
		}),
	)
	if err == nil {
		return vectors, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, goerr.Wrap(ctxErr, "embedding cancelled", goerr.V("last_error", err.Error()))
	}
	return nil, goerr.Wrap(model.ErrProviderUnavailable, "embedding provider failed",
		goerr.V("model", s.modelID),
		goerr.V("batch", len(texts)),
		goerr.V("attempts", attempt),
		goerr.V("error", err.Error()),
	)
}

func (s *Service) call(ctx context.Context, texts []string) ([][]float32, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, goerr.Wrap(err, "rate limiter wait failed")
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.providerCalls.Add(1)
	raw, err := s.provider.GenerateEmbedding(callCtx, s.dimension, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}

	if len(raw) != len(texts) {
		return nil, goerr.Wrap(errMalformedResponse, "provider returned wrong number of vectors",
			goerr.V("expected", len(texts)), goerr.V("actual", len(raw)))
	}

	vectors := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != s.dimension {
			return nil, goerr.Wrap(errMalformedResponse, "provider returned wrong dimension",
				goerr.V("expected", s.dimension), goerr.V("actual", len(v)))
		}
		vec := make([]float32, len(v))
		for j, x := range v {
			vec[j] = float32(x)
		}
		vectors[i] = vec
	}

	return vectors, nil
}

func copyVector(v []float32) []float32 {
	copied := make([]float32, len(v))
	copy(copied, v)
	return copied
}
