package learner

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

// LLM classifies messages with a language model after the same hard filters
// the Heuristic applies. Texts that fail the filters never reach the model.
type LLM struct {
	llmClient  gollem.LLMClient
	minLength  int
	categories []string
}

var _ interfaces.Classifier = &LLM{}

// LLMOption is a functional option for LLM configuration
type LLMOption func(*LLM)

// WithLLMMinLength sets the minimum message length in runes
func WithLLMMinLength(n int) LLMOption {
	return func(c *LLM) {
		c.minLength = n
	}
}

// WithCategories lists the categories the model may choose from
func WithCategories(categories ...string) LLMOption {
	return func(c *LLM) {
		c.categories = categories
	}
}

type llmResponse struct {
	WorthRemembering bool    `json:"worth_remembering"`
	Question         string  `json:"question"`
	Answer           string  `json:"answer"`
	Category         string  `json:"category"`
	Confidence       float64 `json:"confidence"`
}

// NewLLM creates an LLM classifier with the provided client
func NewLLM(llmClient gollem.LLMClient, opts ...LLMOption) (*LLM, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	c := &LLM{
		llmClient: llmClient,
		minLength: DefaultMinLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify asks the model whether text holds a reusable fact. Model failures
// are returned as model.ErrProviderUnavailable.
func (c *LLM) Classify(ctx context.Context, text string) (*model.Classification, error) {
	text = model.NormalizeText(text)
	if reason := Reject(text, c.minLength); reason != "" {
		logging.From(ctx).Debug("message filtered before classification", "reason", reason)
		return nil, nil
	}

	session, err := c.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(buildResponseSchema()),
		gollem.WithSessionSystemPrompt(c.buildSystemPrompt()),
	)
	if err != nil {
		return nil, goerr.Wrap(model.ErrProviderUnavailable, "failed to create LLM session", goerr.V("error", err.Error()))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(text))
	if err != nil {
		return nil, goerr.Wrap(model.ErrProviderUnavailable, "failed to generate content from LLM", goerr.V("error", err.Error()))
	}
	if resp == nil || len(resp.Texts) == 0 {
		return nil, goerr.Wrap(model.ErrProviderUnavailable, "LLM returned no content")
	}

	var llmResp llmResponse
	if err := json.Unmarshal([]byte(resp.Texts[0]), &llmResp); err != nil {
		return nil, goerr.Wrap(model.ErrProviderUnavailable, "failed to parse LLM response",
			goerr.V("response", resp.Texts[0]), goerr.V("error", err.Error()))
	}

	if !llmResp.WorthRemembering {
		return nil, nil
	}

	question := model.NormalizeText(llmResp.Question)
	answer := model.NormalizeText(llmResp.Answer)
	if question == "" || answer == "" {
		logging.From(ctx).Warn("LLM marked message worth remembering without a question or answer")
		return nil, nil
	}

	category := strings.TrimSpace(llmResp.Category)
	if category != "" && len(c.categories) > 0 && !slices.Contains(c.categories, category) {
		logging.From(ctx).Debug("dropping category outside the configured list", "category", category)
		category = ""
	}

	return &model.Classification{
		Question:   question,
		Answer:     answer,
		Category:   category,
		Confidence: clamp(llmResp.Confidence),
	}, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func (c *LLM) buildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You decide whether a chat message states a fact that is worth adding to a community FAQ.\n\n")
	sb.WriteString("## Instructions:\n\n")
	sb.WriteString("1. Set worth_remembering to true only for stable, reusable facts: addresses, schedules, prices, rules, credentials meant to be shared, how-to steps.\n")
	sb.WriteString("2. Questions, greetings, jokes, opinions and one-off coordination are not worth remembering.\n")
	sb.WriteString("3. When worth remembering, write the question a member would ask to get this fact, and the answer as a self-contained sentence.\n")
	sb.WriteString("4. Keep the language of the original message.\n")
	sb.WriteString("5. Set confidence between 0 and 1 for how sure you are that the fact is correct and reusable.\n")
	if len(c.categories) > 0 {
		fmt.Fprintf(&sb, "6. Choose category from: %s. Leave it empty if none fits.\n", strings.Join(c.categories, ", "))
	}

	return sb.String()
}

func buildResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "MessageClassification",
		Description: "Whether the message holds a reusable fact, and the fact as a question and answer pair",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"worth_remembering": {
				Type:        gollem.TypeBoolean,
				Description: "True when the message states a reusable fact",
			},
			"question": {
				Type:        gollem.TypeString,
				Description: "The question this fact answers",
			},
			"answer": {
				Type:        gollem.TypeString,
				Description: "The fact as a self-contained answer",
			},
			"category": {
				Type:        gollem.TypeString,
				Description: "Short topic category",
			},
			"confidence": {
				Type:        gollem.TypeNumber,
				Description: "Certainty between 0 and 1",
			},
		},
	}
}
