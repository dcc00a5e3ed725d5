package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/vidya/internal/store"
)

// KnowledgeStore saves material into a course's knowledge base so future
// questions can be answered from it.
type KnowledgeStore struct {
	Store *store.Store
}

func NewKnowledgeStore(st *store.Store) *KnowledgeStore {
	return &KnowledgeStore{Store: st}
}

func (k *KnowledgeStore) Descriptor() Descriptor {
	return Descriptor{
		Name:           NameKnowledgeStore,
		Description:    "Store notes or extracted material in the course knowledge base.",
		RequiresCourse: true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"course_id": map[string]any{
					"type": "string",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "A short title for the material",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The material text to store",
				},
			},
			"required": []string{"course_id", "content"},
		},
	}
}

func (k *KnowledgeStore) Execute(ctx context.Context, inv Invocation) (string, error) {
	courseID := inv.Param("course_id")
	if courseID == "" {
		return "", Permanent(NameKnowledgeStore, fmt.Errorf("no course established"))
	}
	content := contentFrom(inv)
	if content == "" {
		return "", Permanent(NameKnowledgeStore, fmt.Errorf("no content to store"))
	}

	title := inv.Param("title")
	if title == "" {
		title = firstLine(content)
	}

	id, err := k.Store.SaveMaterial(ctx, courseID, title, content)
	if err != nil {
		return "", Permanent(NameKnowledgeStore, err)
	}
	return fmt.Sprintf("Stored %q (%s)", title, id), nil
}

// KnowledgeQuery answers a question from stored course material. Matching
// snippets go to the model as grounding; with no model configured the raw
// snippets are returned as-is.
type KnowledgeQuery struct {
	Store     *store.Store
	Generator *Generator
}

func NewKnowledgeQuery(st *store.Store, gen *Generator) *KnowledgeQuery {
	return &KnowledgeQuery{Store: st, Generator: gen}
}

func (k *KnowledgeQuery) Descriptor() Descriptor {
	return Descriptor{
		Name:           NameKnowledgeQuery,
		Description:    "Answer a question using the course's stored material.",
		RequiresCourse: true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"course_id": map[string]any{
					"type": "string",
				},
				"question": map[string]any{
					"type":        "string",
					"description": "The question to answer",
				},
			},
			"required": []string{"course_id", "question"},
		},
	}
}

func (k *KnowledgeQuery) Execute(ctx context.Context, inv Invocation) (string, error) {
	courseID := inv.Param("course_id")
	if courseID == "" {
		return "", Permanent(NameKnowledgeQuery, fmt.Errorf("no course established"))
	}
	question := strings.TrimSpace(inv.Param("question"))
	if question == "" {
		return "", Permanent(NameKnowledgeQuery, fmt.Errorf("question is required"))
	}

	materials, err := k.Store.SearchMaterials(ctx, courseID, question, 5)
	if err != nil {
		return "", Permanent(NameKnowledgeQuery, err)
	}
	if len(materials) == 0 {
		return "I couldn't find anything in the course material about that yet. " +
			"Upload the relevant material and ask again.", nil
	}

	var sb strings.Builder
	for _, m := range materials {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", m.Title, truncate(m.Content, 2000))
	}

	if k.Generator == nil {
		return sb.String(), nil
	}

	prompt := "Answer the student's question using only the provided course material. " +
		"If the material does not cover the answer, say so."
	answer, err := k.Generator.Generate(ctx, prompt,
		fmt.Sprintf("Question: %s\n\nMaterial:\n%s", question, sb.String()))
	if err != nil {
		return "", err
	}
	return answer, nil
}

func firstLine(s string) string {
	line := s
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		line = s[:i]
	}
	line = strings.TrimSpace(line)
	if len(line) > 80 {
		line = line[:80]
	}
	if line == "" {
		line = "Untitled material"
	}
	return line
}
