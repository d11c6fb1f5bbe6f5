package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrInvalidConfig = goerr.New("invalid configuration")
)

// Context keys for error values
const (
	ConfigPathKey = "config_path"
	FieldKey      = "field"
	ValueKey      = "value"
)

// Classifier names accepted in [learner]
const (
	ClassifierHeuristic = "heuristic"
	ClassifierLLM       = "llm"
)
