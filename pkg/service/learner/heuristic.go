package learner

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
)

// DefaultMinLength is the shortest message, in runes, worth classifying
const DefaultMinLength = 12

const (
	maxSubjectRunes = 120
	maxClauseWords  = 8
)

var interrogatives = map[string]bool{
	// ru
	"кто": true, "что": true, "где": true, "когда": true, "почему": true, "зачем": true,
	"как": true, "какой": true, "какая": true, "какое": true, "какие": true, "сколько": true,
	"куда": true, "откуда": true, "чей": true, "чья": true, "чьё": true, "ли": true, "разве": true,
	"неужели": true, "подскажите": true, "скажите": true,
	// en
	"who": true, "what": true, "where": true, "when": true, "why": true, "how": true,
	"which": true, "whose": true, "whom": true, "is": true, "are": true, "do": true,
	"does": true, "did": true, "can": true, "could": true, "should": true, "would": true,
	"will": true, "may": true,
}

var smallTalk = map[string]bool{
	"привет": true, "здравствуй": true, "здравствуйте": true, "добрый день": true,
	"доброе утро": true, "добрый вечер": true, "спасибо": true, "благодарю": true,
	"пока": true, "до свидания": true, "ок": true, "окей": true, "ага": true, "да": true,
	"нет": true, "хорошо": true, "понятно": true, "спокойной ночи": true, "всем привет": true,
	"hi": true, "hello": true, "hey": true, "thanks": true, "thank you": true, "bye": true,
	"good morning": true, "good night": true, "ok": true, "okay": true, "yes": true,
	"no": true, "lol": true, "sure": true, "hi all": true, "hello everyone": true,
}

// subject — fact, subject: fact, subject = fact
var separator = regexp.MustCompile(`\s+[—–-]\s+|:\s+|\s*=\s*`)

var hasDetail = regexp.MustCompile(`\d|https?://`)

// a question mark closing a sentence, not one inside a URL or code
var sentenceQuestion = regexp.MustCompile(`\?+["'»)\]]*(\s|$)`)

// Heuristic is a deterministic Classifier built from pattern and length filters
type Heuristic struct {
	minLength int
}

var _ interfaces.Classifier = &Heuristic{}

// Option is a functional option for Heuristic configuration
type Option func(*Heuristic)

// WithMinLength sets the minimum message length in runes
func WithMinLength(n int) Option {
	return func(h *Heuristic) {
		h.minLength = n
	}
}

// NewHeuristic creates a Heuristic classifier
func NewHeuristic(opts ...Option) *Heuristic {
	h := &Heuristic{minLength: DefaultMinLength}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Classify returns nil when text is not worth remembering
func (h *Heuristic) Classify(ctx context.Context, text string) (*model.Classification, error) {
	text = model.NormalizeText(text)
	if Reject(text, h.minLength) != "" {
		return nil, nil
	}
	return extract(text), nil
}

// Reject returns the reason text must not be memorized, or "" when it may be.
// The reasons are "short", "command", "question" and "small_talk".
func Reject(text string, minLength int) string {
	text = strings.TrimSpace(text)
	switch {
	case utf8.RuneCountInString(text) < minLength:
		return "short"
	case strings.HasPrefix(text, "/") || strings.HasPrefix(text, "!"):
		return "command"
	case isQuestion(text):
		return "question"
	case isSmallTalk(text):
		return "small_talk"
	}
	return ""
}

func isQuestion(text string) bool {
	if sentenceQuestion.MatchString(text) {
		return true
	}
	words := strings.Fields(model.QuestionKey(text))
	if len(words) == 0 {
		return false
	}
	if interrogatives[words[0]] {
		return true
	}
	// "а где ...", "and where ..."
	if len(words) > 1 && (words[0] == "а" || words[0] == "и" || words[0] == "and" || words[0] == "so") && interrogatives[words[1]] {
		return true
	}
	return false
}

func isSmallTalk(text string) bool {
	key := model.QuestionKey(text)
	if smallTalk[key] {
		return true
	}
	// greeting followed by a name or a couple of words
	words := strings.Fields(key)
	if len(words) <= 3 {
		for n := min(len(words), 2); n > 0; n-- {
			if smallTalk[strings.Join(words[:n], " ")] {
				return true
			}
		}
	}
	return false
}

func extract(text string) *model.Classification {
	if loc := separator.FindStringIndex(text); loc != nil && loc[0] > 0 {
		subject := strings.TrimSpace(text[:loc[0]])
		fact := strings.TrimSpace(text[loc[1]:])
		if subject != "" && fact != "" && utf8.RuneCountInString(subject) <= maxSubjectRunes {
			confidence := 0.6
			if hasDetail.MatchString(fact) {
				confidence = 0.7
			}
			return &model.Classification{
				Question:   subject,
				Answer:     fact,
				Confidence: confidence,
			}
		}
	}

	return &model.Classification{
		Question:   leadingClause(text),
		Answer:     strings.TrimRightFunc(text, unicode.IsPunct),
		Confidence: 0.4,
	}
}

// leadingClause is the text up to the first clause break, at most maxClauseWords words
func leadingClause(text string) string {
	clause := text
	if i := strings.IndexAny(clause, ",;.!"); i > 0 {
		clause = clause[:i]
	}
	words := strings.Fields(clause)
	if len(words) > maxClauseWords {
		words = words[:maxClauseWords]
	}
	return strings.Join(words, " ")
}
