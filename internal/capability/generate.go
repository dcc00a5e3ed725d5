package capability

import (
	"context"
	"strings"

	"github.com/rahul/vidya/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

// Capability names. The planner and classifier refer to these; they are
// fixed at startup along with the registry.
const (
	NameResolveCourse   = "resolve_or_create_course"
	NameStudyPlan       = "generate_study_plan"
	NameUpdateStudyPlan = "update_study_plan"
	NameAnalyzeContent  = "analyze_course_content"
	NameFileIngest      = "file_ingest"
	NameResearch        = "research_topic"
	NameKnowledgeQuery  = "knowledge_query"
	NameKnowledgeStore  = "knowledge_store"
	NameFlashcards      = "generate_flashcards"
	NameQuiz            = "generate_quiz"
	NameRecordProgress  = "record_progress"
)

// Generator wraps the hosted model behind the single generate(prompt,
// context) contract every LLM-backed capability uses. The call is opaque,
// possibly slow, possibly rate limited.
type Generator struct {
	Model  llms.Model
	Logger *observability.Logger
}

func NewGenerator(model llms.Model, logger *observability.Logger) *Generator {
	return &Generator{Model: model, Logger: logger}
}

func (g *Generator) Generate(ctx context.Context, prompt, contextText string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}
	if contextText != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(contextText)},
		})
	}

	resp, err := g.Model.GenerateContent(ctx, messages)
	if err != nil {
		return "", classifyModelErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", Transient("generate", ErrRateLimited)
	}

	out := resp.Choices[0].Content
	if g.Logger != nil {
		g.Logger.LogLLM("", "", prompt, out)
	}
	return out, nil
}

// classifyModelErr sorts provider failures into the retryable bucket when
// they look like throttling or upstream flakiness.
func classifyModelErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "overloaded"):
		return Transient("generate", err)
	}
	return Permanent("generate", err)
}
