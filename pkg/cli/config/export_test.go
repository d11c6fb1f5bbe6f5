package config

import "time"

// NewLLMForTest creates an LLM config for testing purposes
func NewLLMForTest(provider, geminiProject, openaiAPIKey string) *LLM {
	return &LLM{
		provider:       provider,
		geminiProject:  geminiProject,
		geminiLocation: "us-central1",
		openaiAPIKey:   openaiAPIKey,
	}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, sqlitePath, projectID string) *Repository {
	return &Repository{
		backend:    backend,
		sqlitePath: sqlitePath,
		projectID:  projectID,
	}
}

// NewEmbeddingForTest creates an Embedding config for testing purposes
func NewEmbeddingForTest(dimension int64) *Embedding {
	return &Embedding{
		modelID:   "test",
		dimension: dimension,
		maxBatch:  10,
		timeout:   time.Second,
		retries:   0,
		burst:     1,
		cacheSize: 100,
		cacheTTL:  time.Hour,
	}
}

// NewIndexForTest creates an Index config for testing purposes
func NewIndexForTest(path string) *Index {
	return &Index{
		path:          path,
		compactRatio:  0.25,
		flushInterval: time.Minute,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}
