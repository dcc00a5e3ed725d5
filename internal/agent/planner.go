package agent

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rahul/vidya/internal/capability"
)

// TaskStatus tracks a task through its lifecycle. Every task ends in
// succeeded, failed, or skipped.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Task is one scheduled invocation of a capability. Tasks are owned by
// their Plan and never shared across plans. Structure is immutable after
// planning; only Status mutates.
type Task struct {
	ID         string
	Capability string
	Params     map[string]string
	DependsOn  []string
	Status     TaskStatus
}

// Plan is a DAG of tasks derived from the intents of a single turn.
type Plan struct {
	ID    string
	Input string
	Tasks []*Task

	order []string
}

// Task looks up a task by id.
func (p *Plan) Task(id string) *Task {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Order returns the deterministic topological order of task ids. It is a
// default sequence, not a mandate of serial execution.
func (p *Plan) Order() []string {
	return p.order
}

// Planner expands classified intents into a dependency-ordered plan.
type Planner struct {
	Registry *capability.Registry
}

func NewPlanner(registry *capability.Registry) *Planner {
	return &Planner{Registry: registry}
}

// BuildPlan constructs the task DAG for one turn.
//
// Database-first invariant: any task whose capability requires course-scoped
// data may not run before a course identity is established. If the session
// has no last_course_id and the intent does not name a course, a
// resolve_or_create_course task is synthesized and every course-scoped task
// depends on it.
func (pl *Planner) BuildPlan(intents []Intent, session *Session) (*Plan, error) {
	if len(intents) == 0 {
		return nil, &PlanningError{Reason: "no intents to plan"}
	}

	plan := &Plan{ID: uuid.NewString()}

	// An explicit course-creation intent doubles as the course-establishing
	// task; plan it first so later tasks can hang off it.
	var courseTask *Task
	for _, it := range intents {
		if it.Capability == capability.NameResolveCourse {
			courseTask = pl.newTask(it.Capability, it.Params)
			plan.Tasks = append(plan.Tasks, courseTask)
			break
		}
	}

	var ingestTask *Task
	for _, it := range intents {
		if it.Capability == capability.NameFileIngest {
			ingestTask = pl.newTask(it.Capability, it.Params)
			plan.Tasks = append(plan.Tasks, ingestTask)
			break
		}
	}

	// The early-planned tasks bypass the main loop, so validate their
	// parameters here.
	for _, t := range []*Task{courseTask, ingestTask} {
		if t == nil {
			continue
		}
		desc, ok := pl.Registry.Descriptor(t.Capability)
		if !ok {
			return nil, &PlanningError{Reason: fmt.Sprintf("unknown capability %q", t.Capability)}
		}
		if err := pl.checkParams(desc, t, ingestTask != nil); err != nil {
			return nil, err
		}
	}

	courseEstablished := session.Fact(FactLastCourse) != ""

	for _, it := range intents {
		if courseTask != nil && it.Capability == capability.NameResolveCourse {
			continue
		}
		if ingestTask != nil && it.Capability == capability.NameFileIngest {
			continue
		}

		desc, ok := pl.Registry.Descriptor(it.Capability)
		if !ok {
			return nil, &PlanningError{Reason: fmt.Sprintf("unknown capability %q", it.Capability)}
		}

		task := pl.newTask(it.Capability, it.Params)

		if desc.RequiresCourse && it.Params["course_id"] == "" && !courseEstablished {
			if courseTask == nil {
				courseTask = pl.newTask(capability.NameResolveCourse, courseParams(intents))
				if cdesc, ok := pl.Registry.Descriptor(capability.NameResolveCourse); ok {
					if err := pl.checkParams(cdesc, courseTask, ingestTask != nil); err != nil {
						return nil, err
					}
				}
				// Prepend: the course must exist before anything reads it.
				plan.Tasks = append([]*Task{courseTask}, plan.Tasks...)
			}
			task.DependsOn = append(task.DependsOn, courseTask.ID)
		}

		// Content consumers feed off the ingest output when the turn also
		// carries an upload and no content was given inline.
		if ingestTask != nil && consumesContent(it.Capability) && it.Params["content"] == "" {
			task.DependsOn = append(task.DependsOn, ingestTask.ID)
		}

		if err := pl.checkParams(desc, task, ingestTask != nil); err != nil {
			return nil, err
		}

		plan.Tasks = append(plan.Tasks, task)
	}

	order, err := topoOrder(plan.Tasks)
	if err != nil {
		return nil, err
	}
	plan.order = order

	return plan, nil
}

func (pl *Planner) newTask(name string, params map[string]string) *Task {
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return &Task{
		ID:         uuid.NewString(),
		Capability: name,
		Params:     copied,
		Status:     TaskPending,
	}
}

// checkParams fails planning when a required parameter is missing and
// cannot be defaulted from the session or a dependency output.
func (pl *Planner) checkParams(desc capability.Descriptor, task *Task, hasIngest bool) error {
	for _, name := range desc.RequiredParams() {
		if task.Params[name] != "" {
			continue
		}
		switch name {
		case "course_id":
			// Satisfied by the database-first invariant.
			continue
		case "content", "material":
			if hasIngest {
				continue
			}
		}
		return &PlanningError{
			Reason: fmt.Sprintf("capability %s requires parameter %q", desc.Name, name),
		}
	}
	return nil
}

// courseParams pulls title/outline hints for a synthesized course task from
// any intent that carried them. A synthesized course must always identify
// itself: a topic stands in for a missing title, and a catch-all title is
// the last resort, so repeated untitled turns land in the same course.
// An explicit course-creation intent gets no such defaulting; its title is
// the user's to supply.
func courseParams(intents []Intent) map[string]string {
	params := make(map[string]string)
	for _, it := range intents {
		for _, key := range []string{"title", "outline", "description"} {
			if params[key] == "" && it.Params[key] != "" {
				params[key] = it.Params[key]
			}
		}
	}
	if params["title"] == "" {
		for _, it := range intents {
			if topic := it.Params["topic"]; topic != "" {
				params["title"] = topic
				break
			}
		}
	}
	if params["title"] == "" {
		params["title"] = "General Studies"
	}
	return params
}

func consumesContent(name string) bool {
	switch name {
	case capability.NameAnalyzeContent,
		capability.NameStudyPlan,
		capability.NameUpdateStudyPlan,
		capability.NameFlashcards,
		capability.NameQuiz,
		capability.NameKnowledgeStore:
		return true
	}
	return false
}

// topoOrder returns a stable topological order (insertion order among ready
// tasks) and rejects cycles. A cycle cannot arise from the construction
// rules above, so hitting one is an invariant violation.
func topoOrder(tasks []*Task) ([]string, error) {
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		indegree[t.ID] += 0
		for _, dep := range t.DependsOn {
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var order []string
	ready := make(map[string]bool)
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			ready[t.ID] = true
		}
	}

	for len(order) < len(tasks) {
		progressed := false
		for _, t := range tasks {
			if !ready[t.ID] {
				continue
			}
			ready[t.ID] = false
			order = append(order, t.ID)
			progressed = true
			for _, dep := range dependents[t.ID] {
				indegree[dep]--
				if indegree[dep] == 0 {
					ready[dep] = true
				}
			}
		}
		if !progressed {
			return nil, &PlanningError{Reason: "task dependencies form a cycle"}
		}
	}

	return order, nil
}
