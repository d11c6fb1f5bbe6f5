package types

// AnswerMode tells how an answer was produced
type AnswerMode string

const (
	// AnswerModeCorpus is an answer taken verbatim from a matched knowledge record
	AnswerModeCorpus AnswerMode = "corpus"
	// AnswerModeUncertain is a "no confident match" reply, optionally with a suggestion
	AnswerModeUncertain AnswerMode = "uncertain"
	// AnswerModeFallback is a general-purpose LLM completion with no provenance
	AnswerModeFallback AnswerMode = "fallback"
)

// IsValid checks if the answer mode is valid
func (m AnswerMode) IsValid() bool {
	switch m {
	case AnswerModeCorpus, AnswerModeUncertain, AnswerModeFallback:
		return true
	default:
		return false
	}
}

// String returns the string representation of the answer mode
func (m AnswerMode) String() string {
	return string(m)
}
