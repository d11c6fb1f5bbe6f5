package embedding

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
)

// HashProvider is an offline, deterministic Provider: a hashed bag of words
// over QuestionKey tokens. Texts sharing most words land close together.
// It is meant for development mode and tests, not for production retrieval.
type HashProvider struct{}

// NewHashProvider creates a HashProvider
func NewHashProvider() *HashProvider {
	return &HashProvider{}
}

// GenerateEmbedding implements Provider
func (p *HashProvider) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make([][]float64, len(input))
	for i, text := range input {
		vec := make([]float64, dimension)
		tokens := strings.Fields(model.QuestionKey(text))
		if len(tokens) == 0 {
			tokens = []string{text}
		}
		for _, token := range tokens {
			h := xxhash.Sum64String(token)
			vec[h%uint64(dimension)] += 1
		}
		result[i] = vec
	}
	return result, nil
}
