package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/vidya/internal/store"
)

// Flashcards generates question/answer cards from course material.
type Flashcards struct {
	Store     *store.Store
	Generator *Generator
}

func NewFlashcards(st *store.Store, gen *Generator) *Flashcards {
	return &Flashcards{Store: st, Generator: gen}
}

func (f *Flashcards) Descriptor() Descriptor {
	return Descriptor{
		Name:           NameFlashcards,
		Description:    "Generate flashcards from course material on a topic.",
		RequiresCourse: true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"course_id": map[string]any{
					"type": "string",
				},
				"topic": map[string]any{
					"type":        "string",
					"description": "The topic to make cards for; omit to cover recent material",
				},
				"count": map[string]any{
					"type":        "string",
					"description": "How many cards to generate",
				},
			},
			"required": []string{"course_id"},
		},
	}
}

func (f *Flashcards) Execute(ctx context.Context, inv Invocation) (string, error) {
	material, err := gatherMaterial(ctx, f.Store, inv)
	if err != nil {
		return "", Permanent(NameFlashcards, err)
	}

	count := inv.Param("count")
	if count == "" {
		count = "10"
	}
	prompt := fmt.Sprintf("Create %s flashcards from the material. "+
		"Format each card as 'Q: ...' then 'A: ...' on the next line, cards separated by a blank line. "+
		"Cover the most important concepts first.", count)

	cards, err := f.Generator.Generate(ctx, prompt, material)
	if err != nil {
		return "", err
	}
	return cards, nil
}

// Quiz generates a short multiple-choice quiz from course material, with
// the answer key at the end.
type Quiz struct {
	Store     *store.Store
	Generator *Generator
}

func NewQuiz(st *store.Store, gen *Generator) *Quiz {
	return &Quiz{Store: st, Generator: gen}
}

func (q *Quiz) Descriptor() Descriptor {
	return Descriptor{
		Name:           NameQuiz,
		Description:    "Generate a multiple-choice practice quiz from course material.",
		RequiresCourse: true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"course_id": map[string]any{
					"type": "string",
				},
				"topic": map[string]any{
					"type":        "string",
					"description": "The topic to quiz on; omit to cover recent material",
				},
				"count": map[string]any{
					"type":        "string",
					"description": "How many questions to generate",
				},
			},
			"required": []string{"course_id"},
		},
	}
}

func (q *Quiz) Execute(ctx context.Context, inv Invocation) (string, error) {
	material, err := gatherMaterial(ctx, q.Store, inv)
	if err != nil {
		return "", Permanent(NameQuiz, err)
	}

	count := inv.Param("count")
	if count == "" {
		count = "5"
	}
	prompt := fmt.Sprintf("Write a %s-question multiple-choice quiz from the material. "+
		"Number the questions, give options A-D, and put the answer key at the very end "+
		"under a line reading 'Answers:'.", count)

	quiz, err := q.Generator.Generate(ctx, prompt, material)
	if err != nil {
		return "", err
	}
	return quiz, nil
}

// gatherMaterial assembles the source text for card and quiz generation:
// inline content or dependency outputs first, stored course material as the
// fallback.
func gatherMaterial(ctx context.Context, st *store.Store, inv Invocation) (string, error) {
	if content := contentFrom(inv); content != "" {
		return truncate(content, 8000), nil
	}

	courseID := inv.Param("course_id")
	if courseID == "" {
		return "", fmt.Errorf("no course established")
	}
	materials, err := st.SearchMaterials(ctx, courseID, inv.Param("topic"), 5)
	if err != nil {
		return "", err
	}
	if len(materials) == 0 {
		return "", fmt.Errorf("no stored material to draw from; upload some first")
	}

	var sb strings.Builder
	for _, m := range materials {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", m.Title, truncate(m.Content, 2000))
	}
	return sb.String(), nil
}
