package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rahul/vidya/internal/store"
)

// ResolveCourse establishes a course identity for the turn: it returns the
// existing course for (owner, title) or creates it. Its output is the
// course id, and the coordinator records it as the session's last course.
type ResolveCourse struct {
	Store *store.Store
}

func NewResolveCourse(st *store.Store) *ResolveCourse {
	return &ResolveCourse{Store: st}
}

func (r *ResolveCourse) Descriptor() Descriptor {
	return Descriptor{
		Name:        NameResolveCourse,
		Description: "Find or create a course record by title so later steps have a course to work against.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "The course title, e.g. 'Algebra I'",
				},
				"outline": map[string]any{
					"type":        "string",
					"description": "Optional course outline or syllabus text",
				},
			},
			"required": []string{"title"},
		},
	}
}

func (r *ResolveCourse) Execute(ctx context.Context, inv Invocation) (string, error) {
	title := strings.TrimSpace(inv.Param("title"))
	if title == "" {
		return "", Permanent(NameResolveCourse, fmt.Errorf("title is required"))
	}

	id, err := r.Store.ResolveOrCreate(ctx, inv.UserID, title, inv.Param("outline"))
	if err != nil {
		return "", Permanent(NameResolveCourse, err)
	}
	return id, nil
}

// AnalyzeContent extracts topics, objectives, and a study-time estimate
// from raw course content. Heuristic line scanning keeps it deterministic;
// the model only gets involved downstream.
type AnalyzeContent struct{}

func NewAnalyzeContent() *AnalyzeContent {
	return &AnalyzeContent{}
}

func (a *AnalyzeContent) Descriptor() Descriptor {
	return Descriptor{
		Name:        NameAnalyzeContent,
		Description: "Analyze course content or a syllabus: topics, learning objectives, difficulty, estimated study hours.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The course content or outline text to analyze",
				},
			},
			"required": []string{"content"},
		},
	}
}

// ContentAnalysis is the structured output of AnalyzeContent.
type ContentAnalysis struct {
	Topics         []string `json:"topics_identified"`
	Objectives     []string `json:"learning_objectives"`
	KeyConcepts    []string `json:"key_concepts"`
	Prerequisites  []string `json:"prerequisites"`
	Difficulty     string   `json:"difficulty_level"`
	EstimatedHours int      `json:"estimated_hours"`
}

func (a *AnalyzeContent) Execute(ctx context.Context, inv Invocation) (string, error) {
	content := contentFrom(inv)
	if strings.TrimSpace(content) == "" {
		return "", Permanent(NameAnalyzeContent, fmt.Errorf("no content to analyze"))
	}

	analysis := analyzeLines(content)
	out, err := json.Marshal(analysis)
	if err != nil {
		return "", Permanent(NameAnalyzeContent, err)
	}
	return string(out), nil
}

func analyzeLines(content string) ContentAnalysis {
	var analysis ContentAnalysis
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case containsAny(lower, "chapter", "unit", "topic", "lesson", "week"):
			analysis.Topics = appendCapped(analysis.Topics, line, 10)
		case containsAny(lower, "objective", "goal", "aim", "learn", "understand"):
			analysis.Objectives = appendCapped(analysis.Objectives, line, 8)
		case containsAny(lower, "concept", "principle", "theory", "definition"):
			analysis.KeyConcepts = appendCapped(analysis.KeyConcepts, line, 15)
		case containsAny(lower, "prerequisite", "required", "background", "prior"):
			analysis.Prerequisites = appendCapped(analysis.Prerequisites, line, 5)
		}
	}

	analysis.Difficulty = "intermediate"
	lower := strings.ToLower(content)
	for _, level := range []string{"advanced", "complex", "intermediate", "basic", "introduction"} {
		if strings.Contains(lower, level) {
			analysis.Difficulty = level
			break
		}
	}

	words := len(strings.Fields(content))
	analysis.EstimatedHours = clampInt(words/500, 2, 8)
	return analysis
}

// StudyPlan generates a week-by-week study plan for a course and persists
// it as course material.
type StudyPlan struct {
	Store     *store.Store
	Generator *Generator
}

func NewStudyPlan(st *store.Store, gen *Generator) *StudyPlan {
	return &StudyPlan{Store: st, Generator: gen}
}

func (p *StudyPlan) Descriptor() Descriptor {
	return Descriptor{
		Name:           NameStudyPlan,
		Description:    "Generate a personalized week-by-week study plan for a course.",
		RequiresCourse: true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"course_id": map[string]any{
					"type":        "string",
					"description": "The course to plan for",
				},
				"sessions_per_week": map[string]any{
					"type":        "string",
					"description": "How many study sessions per week the student wants",
				},
				"duration_weeks": map[string]any{
					"type":        "string",
					"description": "Total plan length in weeks",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Course content to plan around, if already extracted",
				},
			},
			"required": []string{"course_id"},
		},
	}
}

func (p *StudyPlan) Execute(ctx context.Context, inv Invocation) (string, error) {
	courseID := inv.Param("course_id")
	if courseID == "" {
		return "", Permanent(NameStudyPlan, fmt.Errorf("no course established"))
	}

	course, err := p.Store.GetCourse(ctx, courseID)
	if err != nil {
		return "", Permanent(NameStudyPlan, err)
	}

	prompt := "You are a study planner. Produce a week-by-week study plan with concrete sessions. " +
		"Respect the student's preferred pace. Output plain text with one section per week."

	var sb strings.Builder
	fmt.Fprintf(&sb, "Course: %s\n", course.Title)
	if course.Outline != "" {
		fmt.Fprintf(&sb, "Outline:\n%s\n", course.Outline)
	}
	if content := contentFrom(inv); content != "" {
		fmt.Fprintf(&sb, "Content:\n%s\n", truncate(content, 6000))
	}
	if v := inv.Param("sessions_per_week"); v != "" {
		fmt.Fprintf(&sb, "Sessions per week: %s\n", v)
	}
	if v := inv.Param("duration_weeks"); v != "" {
		fmt.Fprintf(&sb, "Duration in weeks: %s\n", v)
	}

	plan, err := p.Generator.Generate(ctx, prompt, sb.String())
	if err != nil {
		return "", err
	}

	if _, err := p.Store.SaveMaterial(ctx, courseID, "Study plan", plan); err != nil {
		return "", Permanent(NameStudyPlan, err)
	}
	return plan, nil
}

// UpdateStudyPlan folds newly arrived material into an existing plan.
// Course content arrives periodically, so plans have to adapt.
type UpdateStudyPlan struct {
	Store     *store.Store
	Generator *Generator
}

func NewUpdateStudyPlan(st *store.Store, gen *Generator) *UpdateStudyPlan {
	return &UpdateStudyPlan{Store: st, Generator: gen}
}

func (u *UpdateStudyPlan) Descriptor() Descriptor {
	return Descriptor{
		Name:           NameUpdateStudyPlan,
		Description:    "Update an existing study plan with newly uploaded course material.",
		RequiresCourse: true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"course_id": map[string]any{
					"type": "string",
				},
				"week": map[string]any{
					"type":        "string",
					"description": "Which week the new material belongs to",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The new material, if already extracted",
				},
			},
			"required": []string{"course_id", "content"},
		},
	}
}

func (u *UpdateStudyPlan) Execute(ctx context.Context, inv Invocation) (string, error) {
	courseID := inv.Param("course_id")
	if courseID == "" {
		return "", Permanent(NameUpdateStudyPlan, fmt.Errorf("no course established"))
	}
	content := contentFrom(inv)
	if content == "" {
		return "", Permanent(NameUpdateStudyPlan, fmt.Errorf("no new material provided"))
	}

	plans, err := u.Store.SearchMaterials(ctx, courseID, "Study plan", 1)
	if err != nil {
		return "", Permanent(NameUpdateStudyPlan, err)
	}

	prompt := "You maintain a student's study plan. Revise the plan so the new material is scheduled " +
		"into the named week, keeping earlier weeks intact. Output the full revised plan."

	var sb strings.Builder
	if len(plans) > 0 {
		fmt.Fprintf(&sb, "Current plan:\n%s\n\n", truncate(plans[0].Content, 6000))
	}
	if week := inv.Param("week"); week != "" {
		fmt.Fprintf(&sb, "Target week: %s\n", week)
	}
	fmt.Fprintf(&sb, "New material:\n%s\n", truncate(content, 6000))

	revised, err := u.Generator.Generate(ctx, prompt, sb.String())
	if err != nil {
		return "", err
	}

	if _, err := u.Store.SaveMaterial(ctx, courseID, "Study plan", revised); err != nil {
		return "", Permanent(NameUpdateStudyPlan, err)
	}
	return revised, nil
}

// contentFrom resolves the content input: an inline parameter wins,
// otherwise the outputs of dependency tasks (ingestion, analysis) are
// joined.
func contentFrom(inv Invocation) string {
	if c := inv.Param("content"); c != "" {
		return c
	}
	ids := make([]string, 0, len(inv.DepOutputs))
	for id := range inv.DepOutputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var parts []string
	for _, id := range ids {
		if out := inv.DepOutputs[id]; out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n\n")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func appendCapped(list []string, item string, max int) []string {
	if len(list) >= max {
		return list
	}
	return append(list, item)
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[truncated]"
}
