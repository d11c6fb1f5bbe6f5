package model

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors shared by every layer. Wrap them with goerr.Wrap so that
// errors.Is keeps working across repository, service and use case boundaries.
var (
	// ErrInvalidInput is a malformed or empty input. Fails fast with no side effects.
	ErrInvalidInput = goerr.New("invalid input")

	// ErrNotFound is an unknown identifier.
	ErrNotFound = goerr.New("not found")

	// ErrInvalidState is an operation that the entity's current state does not allow,
	// e.g. approving a draft twice.
	ErrInvalidState = goerr.New("invalid state")

	// ErrProviderUnavailable means the embedding provider or LLM kept failing after retries.
	ErrProviderUnavailable = goerr.New("provider unavailable")

	// ErrIndexCorruption means the persisted vector index failed its integrity check.
	ErrIndexCorruption = goerr.New("index corruption")
)

// Context keys for error values
const (
	KnowledgeIDKey = "knowledge_id"
	DraftIDKey     = "draft_id"
	TopicIDKey     = "topic_id"
	StatusKey      = "status"
)
