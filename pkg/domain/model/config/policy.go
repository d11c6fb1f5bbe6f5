package config

// AnswerPolicy holds the confidence thresholds and reply texts of the Answerer
type AnswerPolicy struct {
	HighThreshold   float64 // scores at or above are answered from the corpus
	MediumThreshold float64 // scores at or above, below High, are uncertain
	TopK            int
	UncertainText   string // reply when the best match is below High
	SuggestionText  string // prefix for the nearest record in uncertain mode
	FallbackText    string // reply when the LLM fallback is unavailable
	FallbackPrompt  string // system prompt of the LLM fallback
}

// DefaultAnswerPolicy returns the production thresholds
func DefaultAnswerPolicy() AnswerPolicy {
	return AnswerPolicy{
		HighThreshold:   0.70,
		MediumThreshold: 0.55,
		TopK:            5,
		UncertainText:   "Не нашёл точного ответа в базе знаний.",
		SuggestionText:  "Возможно, вы имели в виду:",
		FallbackText:    "Пока не знаю ответа на этот вопрос. Я передал его модераторам.",
		FallbackPrompt:  "You are a helpful community assistant. Answer briefly in the language of the question. If you are not sure, say so.",
	}
}

// ModerationPolicy configures the draft queue
type ModerationPolicy struct {
	// AutoApproveThreshold approves drafts at or above this confidence on enqueue. 0 disables.
	AutoApproveThreshold float64
}

// LearnerPolicy configures chat message classification
type LearnerPolicy struct {
	Classifier string // "heuristic" or "llm"
	MinLength  int
	Categories []string
}

// DefaultLearnerPolicy returns the heuristic classifier defaults
func DefaultLearnerPolicy() LearnerPolicy {
	return LearnerPolicy{
		Classifier: "heuristic",
		MinLength:  12,
	}
}

// DedupPolicy configures duplicate detection
type DedupPolicy struct {
	QuestionThreshold float64 // minimum question cosine
	AnswerThreshold   float64 // minimum answer similarity ratio
	Neighbours        int     // index neighbours inspected per record
}

// DefaultDedupPolicy returns conservative dedup thresholds
func DefaultDedupPolicy() DedupPolicy {
	return DedupPolicy{
		QuestionThreshold: 0.92,
		AnswerThreshold:   0.85,
		Neighbours:        5,
	}
}

// ImportPolicy configures bulk import
type ImportPolicy struct {
	ChunkSize       int
	Concurrency     int
	DraftConfidence float64 // confidence of drafts created by import
	Proposer        string
}

// DefaultImportPolicy returns bulk import defaults
func DefaultImportPolicy() ImportPolicy {
	return ImportPolicy{
		ChunkSize:       50,
		Concurrency:     4,
		DraftConfidence: 0.5,
		Proposer:        "import",
	}
}

// Policy is the complete runtime policy
type Policy struct {
	Answer     AnswerPolicy
	Moderation ModerationPolicy
	Learner    LearnerPolicy
	Dedup      DedupPolicy
	Import     ImportPolicy
}

// DefaultPolicy returns every section at its default
func DefaultPolicy() *Policy {
	return &Policy{
		Answer:  DefaultAnswerPolicy(),
		Learner: DefaultLearnerPolicy(),
		Dedup:   DefaultDedupPolicy(),
		Import:  DefaultImportPolicy(),
	}
}
