package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rahul/vidya/internal/capability"
	"github.com/tmc/langchaingo/llms"
)

// FileRef points at an uploaded file. Content extraction happens inside the
// file_ingest capability, not here.
type FileRef struct {
	Name string
	Path string
}

// Intent is the structured interpretation of a user message: a capability
// plus its extracted parameters. The first intent of a classification
// result is the primary one.
type Intent struct {
	Capability string
	Params     map[string]string
	// Confidence is advisory: 1.0 for structural signals (attachments),
	// lower for pattern and model guesses. The planner does not read it.
	Confidence float64
}

// Classifier maps a raw message and attachments to intents. Rule matches
// are the fast path; an LLM call is the fallback when no rule fires. Rule
// results always take precedence for determinism.
//
// Classify is pure over the session snapshot; it never mutates the session.
type Classifier struct {
	Model    llms.Model
	Registry *capability.Registry
}

func NewClassifier(model llms.Model, registry *capability.Registry) *Classifier {
	return &Classifier{Model: model, Registry: registry}
}

type rule struct {
	capability string
	pattern    *regexp.Regexp
}

// Rules are tried in order; among matches, the longest matched text wins
// the primary slot. Patterns mirror the request phrasings the assistant
// actually receives (course setup, study planning, review, research).
var rules = []rule{
	{capability.NameResolveCourse, regexp.MustCompile(`(?i)\b(create|add|set up|new)\b.{0,30}\bcourse\b`)},
	{capability.NameStudyPlan, regexp.MustCompile(`(?i)\bstudy\s+plan\b|\bplan\b.{0,20}\bstud(y|ies|ying)\b`)},
	{capability.NameUpdateStudyPlan, regexp.MustCompile(`(?i)\bupdate\b.{0,30}\bplan\b`)},
	{capability.NameFlashcards, regexp.MustCompile(`(?i)\bflash\s?cards?\b`)},
	{capability.NameQuiz, regexp.MustCompile(`(?i)\bquiz\b|\btest\s+me\b|\bpractice\s+exam\b`)},
	{capability.NameAnalyzeContent, regexp.MustCompile(`(?i)\banaly[sz]e\b|\bsummar(y|ize|ise)\b`)},
	{capability.NameResearch, regexp.MustCompile(`(?i)\bresearch\b|\blook\s+up\b|\bsearch\b.{0,15}\bweb\b|\bcurrent\s+(examples?|developments?)\b`)},
	{capability.NameKnowledgeQuery, regexp.MustCompile(`(?i)\bmy\s+(notes?|materials?)\b|\bwhat\s+did\s+(i|we)\b|\breview\b`)},
	{capability.NameRecordProgress, regexp.MustCompile(`(?i)\b(record|log|finished|completed)\b.{0,30}\b(session|progress|studying)\b`)},
}

var (
	quotedTitle = regexp.MustCompile(`['"\x60]([^'"\x60]{1,120})['"\x60]`)
	namedTitle  = regexp.MustCompile(`(?i)\b(?:called|named|titled|on)\s+([A-Z][\w\- ]{1,60})`)
)

// Classify derives the intents for one message. The message may be empty
// only when attachments are present.
func (c *Classifier) Classify(ctx context.Context, message string, attachments []FileRef, session *Session) ([]Intent, error) {
	message = strings.TrimSpace(message)
	if message == "" && len(attachments) == 0 {
		return nil, &ClassificationError{Message: "empty message with no attachments"}
	}

	var intents []Intent

	// An attached file always implies ingestion, and is the whole intent
	// when there is no text to go on.
	if len(attachments) > 0 {
		intents = append(intents, Intent{
			Capability: capability.NameFileIngest,
			Params:     map[string]string{"path": attachments[0].Path, "name": attachments[0].Name},
			Confidence: 1.0,
		})
	}

	ruled := c.matchRules(message)
	if len(attachments) > 0 && len(ruled) > 0 {
		// Text names the real primary; ingestion becomes auxiliary.
		intents = append(ruled, intents...)
	} else {
		intents = append(intents, ruled...)
	}

	if len(intents) > 0 {
		// An upload with free text no rule matched still deserves the
		// model's read on the text. Best effort: the ingest intent stands
		// on its own if the model has nothing to add.
		if message != "" && len(ruled) == 0 && c.Model != nil {
			if extra, err := c.classifyWithModel(ctx, message, session); err == nil {
				intents = append(intents, extra...)
			}
		}
		return intents, nil
	}

	llmIntents, err := c.classifyWithModel(ctx, message, session)
	if err != nil {
		return nil, &ClassificationError{Message: err.Error()}
	}
	if len(llmIntents) == 0 {
		return nil, &ClassificationError{Message: fmt.Sprintf("no capability matches %q", message)}
	}
	return llmIntents, nil
}

// matchRules returns rule-based intents ordered by specificity: the rule
// with the longest matched text is primary.
func (c *Classifier) matchRules(message string) []Intent {
	type match struct {
		intent Intent
		length int
	}
	var matches []match

	for _, r := range rules {
		loc := r.pattern.FindStringIndex(message)
		if loc == nil {
			continue
		}
		params := extractParams(r.capability, message)
		matches = append(matches, match{
			intent: Intent{Capability: r.capability, Params: params, Confidence: 0.9},
			length: loc[1] - loc[0],
		})
	}

	// Stable selection: longest match first, rule order breaks ties.
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].length > matches[i].length {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}

	intents := make([]Intent, 0, len(matches))
	seen := make(map[string]bool)
	for _, m := range matches {
		if seen[m.intent.Capability] {
			continue
		}
		seen[m.intent.Capability] = true
		intents = append(intents, m.intent)
	}
	return intents
}

func extractParams(name, message string) map[string]string {
	params := make(map[string]string)
	switch name {
	case capability.NameResolveCourse:
		if m := quotedTitle.FindStringSubmatch(message); m != nil {
			params["title"] = strings.TrimSpace(m[1])
		} else if m := namedTitle.FindStringSubmatch(message); m != nil {
			params["title"] = strings.TrimSpace(m[1])
		}
	case capability.NameResearch:
		if m := quotedTitle.FindStringSubmatch(message); m != nil {
			params["topic"] = strings.TrimSpace(m[1])
		} else {
			params["topic"] = message
		}
	case capability.NameKnowledgeQuery:
		params["question"] = message
	case capability.NameQuiz, capability.NameFlashcards:
		if m := quotedTitle.FindStringSubmatch(message); m != nil {
			params["topic"] = strings.TrimSpace(m[1])
		}
	}
	return params
}

// classifyWithModel asks the LLM for a structured classification via a
// single forced tool call, mirroring how plans are proposed elsewhere.
func (c *Classifier) classifyWithModel(ctx context.Context, message string, session *Session) ([]Intent, error) {
	var names []string
	var lines []string
	for _, d := range c.Registry.Descriptors() {
		names = append(names, d.Name)
		lines = append(lines, fmt.Sprintf("- %s: %s", d.Name, d.Description))
	}

	system := "You classify a student's message into capabilities of a study assistant. " +
		"Call classify_intent exactly once with every capability the message asks for, most important first.\n\n" +
		"Available capabilities:\n" + strings.Join(lines, "\n")
	if stage := session.Fact(FactWorkflowStage); stage != "" {
		system += "\n\nCurrent workflow stage: " + stage
	}

	classifierTools := []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "classify_intent",
				Description: "Report the capabilities a student message asks for, with extracted parameters.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"intents": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"capability": map[string]any{
										"type": "string",
										"enum": names,
									},
									"params": map[string]any{
										"type": "object",
										"additionalProperties": map[string]any{
											"type": "string",
										},
									},
								},
								"required": []string{"capability"},
							},
						},
					},
					"required": []string{"intents"},
				},
			},
		},
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(message)},
		},
	}

	resp, err := c.Model.GenerateContent(ctx, messages, llms.WithTools(classifierTools))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	choice := resp.Choices[0]
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall.Name != "classify_intent" {
			continue
		}
		var parsed struct {
			Intents []struct {
				Capability string            `json:"capability"`
				Params     map[string]string `json:"params"`
			} `json:"intents"`
		}
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse classify_intent arguments: %v", err)
		}

		var intents []Intent
		for _, in := range parsed.Intents {
			if _, ok := c.Registry.Descriptor(in.Capability); !ok {
				continue
			}
			params := in.Params
			if params == nil {
				params = make(map[string]string)
			}
			intents = append(intents, Intent{Capability: in.Capability, Params: params, Confidence: 0.6})
		}
		return intents, nil
	}

	return nil, fmt.Errorf("model did not produce a classification")
}
