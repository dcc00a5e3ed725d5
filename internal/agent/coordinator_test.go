package agent

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/vidya/internal/capability"
	"github.com/rahul/vidya/internal/governance"
	"github.com/rahul/vidya/internal/store"
)

func newTestCoordinator(reg *capability.Registry) *Coordinator {
	c := NewCoordinator(reg, governance.NewDefaultPolicyEngine(), nil)
	c.BackoffBase = time.Millisecond
	c.TaskTimeout = time.Second
	return c
}

func planFor(t *testing.T, reg *capability.Registry, intents []Intent, session *Session) *Plan {
	t.Helper()
	plan, err := NewPlanner(reg).BuildPlan(intents, session)
	require.NoError(t, err)
	return plan
}

func TestExecuteAppliesCourseFactToDependents(t *testing.T) {
	var seenCourse string
	reg := testRegistry(map[string]func(ctx context.Context, inv capability.Invocation) (string, error){
		capability.NameResolveCourse: func(ctx context.Context, inv capability.Invocation) (string, error) {
			return "course-123", nil
		},
		capability.NameStudyPlan: func(ctx context.Context, inv capability.Invocation) (string, error) {
			seenCourse = inv.Param("course_id")
			return "the plan", nil
		},
	})
	session := newTestSession("u1")
	plan := planFor(t, reg, []Intent{
		{Capability: capability.NameStudyPlan, Params: map[string]string{"title": "Algebra I"}},
	}, session)

	results := newTestCoordinator(reg).Execute(context.Background(), plan, session)

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, TaskSucceeded, res.Status, res.Capability)
	}
	assert.Equal(t, "course-123", seenCourse,
		"course id resolved mid-plan must reach dependent invocations")
	assert.Equal(t, "course-123", session.Fact(FactLastCourse))
	assert.Equal(t, "study_plan_ready", session.Fact(FactWorkflowStage))
	assert.Equal(t, capability.NameStudyPlan, session.Fact(FactLastAction))
}

func TestExecuteSkipsDependentsOfFailedTask(t *testing.T) {
	reg := testRegistry(map[string]func(ctx context.Context, inv capability.Invocation) (string, error){
		capability.NameResolveCourse: func(ctx context.Context, inv capability.Invocation) (string, error) {
			return "", capability.Permanent(capability.NameResolveCourse, errBoom)
		},
	})
	session := newTestSession("u1")
	plan := planFor(t, reg, []Intent{
		{Capability: capability.NameFlashcards, Params: map[string]string{}},
	}, session)

	results := newTestCoordinator(reg).Execute(context.Background(), plan, session)

	require.Len(t, results, 2)
	byCap := map[string]ExecutionResult{}
	for _, res := range results {
		byCap[res.Capability] = res
	}
	assert.Equal(t, TaskFailed, byCap[capability.NameResolveCourse].Status)
	assert.Equal(t, TaskSkipped, byCap[capability.NameFlashcards].Status)
	assert.Error(t, byCap[capability.NameFlashcards].Err)
	assert.Empty(t, session.Fact(FactLastCourse))
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	reg := testRegistry(map[string]func(ctx context.Context, inv capability.Invocation) (string, error){
		capability.NameResearch: func(ctx context.Context, inv capability.Invocation) (string, error) {
			if atomic.AddInt32(&calls, 1) <= 2 {
				return "", capability.Transient(capability.NameResearch, capability.ErrRateLimited)
			}
			return "findings", nil
		},
	})
	session := newTestSession("u1")
	plan := planFor(t, reg, []Intent{
		{Capability: capability.NameResearch, Params: map[string]string{"topic": "mitosis"}},
	}, session)

	results := newTestCoordinator(reg).Execute(context.Background(), plan, session)

	require.Len(t, results, 1)
	assert.Equal(t, TaskSucceeded, results[0].Status)
	assert.Equal(t, "findings", results[0].Output)
	assert.Equal(t, 2, results[0].Retries)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	var calls int32
	reg := testRegistry(map[string]func(ctx context.Context, inv capability.Invocation) (string, error){
		capability.NameResearch: func(ctx context.Context, inv capability.Invocation) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "", capability.Permanent(capability.NameResearch, errBoom)
		},
	})
	session := newTestSession("u1")
	plan := planFor(t, reg, []Intent{
		{Capability: capability.NameResearch, Params: map[string]string{"topic": "mitosis"}},
	}, session)

	results := newTestCoordinator(reg).Execute(context.Background(), plan, session)

	require.Len(t, results, 1)
	assert.Equal(t, TaskFailed, results[0].Status)
	assert.Equal(t, 0, results[0].Retries)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestExecuteGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	reg := testRegistry(map[string]func(ctx context.Context, inv capability.Invocation) (string, error){
		capability.NameResearch: func(ctx context.Context, inv capability.Invocation) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "", capability.Transient(capability.NameResearch, capability.ErrRateLimited)
		},
	})
	session := newTestSession("u1")
	plan := planFor(t, reg, []Intent{
		{Capability: capability.NameResearch, Params: map[string]string{"topic": "mitosis"}},
	}, session)

	coord := newTestCoordinator(reg)
	coord.MaxRetries = 2
	results := coord.Execute(context.Background(), plan, session)

	require.Len(t, results, 1)
	assert.Equal(t, TaskFailed, results[0].Status)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "initial attempt plus two retries")
}

func TestExecutePolicyDenial(t *testing.T) {
	reg := testRegistry(map[string]func(ctx context.Context, inv capability.Invocation) (string, error){
		capability.NameResearch: func(ctx context.Context, inv capability.Invocation) (string, error) {
			t.Error("denied capability must not run")
			return "", nil
		},
	})
	session := newTestSession("u1")
	plan := planFor(t, reg, []Intent{
		{Capability: capability.NameResearch, Params: map[string]string{"topic": "mitosis"}},
	}, session)

	gov := governance.NewDefaultPolicyEngine()
	gov.DenyCapability(capability.NameResearch)
	coord := newTestCoordinator(reg)
	coord.Policy = gov

	results := coord.Execute(context.Background(), plan, session)

	require.Len(t, results, 1)
	assert.Equal(t, TaskFailed, results[0].Status)
	assert.Contains(t, results[0].Err.Error(), "denied by policy")
}

func TestExecuteTurnDeadlineFailsOutstandingTasks(t *testing.T) {
	reg := testRegistry(map[string]func(ctx context.Context, inv capability.Invocation) (string, error){
		capability.NameResearch: func(ctx context.Context, inv capability.Invocation) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})
	session := newTestSession("u1")
	plan := planFor(t, reg, []Intent{
		{Capability: capability.NameResearch, Params: map[string]string{"topic": "mitosis"}},
	}, session)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results := newTestCoordinator(reg).Execute(ctx, plan, session)

	require.Len(t, results, 1)
	assert.Equal(t, TaskFailed, results[0].Status)
	assert.ErrorIs(t, results[0].Err, ErrTimeout)
}

func TestExecuteBoundsFanOut(t *testing.T) {
	var running, peak int32
	block := make(chan struct{})
	fn := func(ctx context.Context, inv capability.Invocation) (string, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-block
		atomic.AddInt32(&running, -1)
		return "ok", nil
	}
	reg := testRegistry(map[string]func(ctx context.Context, inv capability.Invocation) (string, error){
		capability.NameResearch:       fn,
		capability.NameAnalyzeContent: fn,
		capability.NameFileIngest:     fn,
		capability.NameRecordProgress: fn,
	})
	session := newTestSession("u1")
	session.SetFact(FactLastCourse, "course-1")
	plan := planFor(t, reg, []Intent{
		{Capability: capability.NameResearch, Params: map[string]string{"topic": "a"}},
		{Capability: capability.NameAnalyzeContent, Params: map[string]string{"content": "b"}},
		{Capability: capability.NameFileIngest, Params: map[string]string{"path": "/tmp/c", "name": "c"}},
		{Capability: capability.NameRecordProgress, Params: map[string]string{}},
	}, session)
	require.Len(t, plan.Tasks, 4)

	coord := newTestCoordinator(reg)
	coord.FanOut = 2

	go func() {
		// Let dispatch saturate the semaphore, then drain.
		time.Sleep(50 * time.Millisecond)
		close(block)
	}()
	results := coord.Execute(context.Background(), plan, session)

	require.Len(t, results, 4)
	for _, res := range results {
		assert.Equal(t, TaskSucceeded, res.Status)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestExecuteOneResultPerTask(t *testing.T) {
	reg := testRegistry(nil)
	session := newTestSession("u1")
	session.SetFact(FactLastCourse, "course-1")
	plan := planFor(t, reg, []Intent{
		{Capability: capability.NameAnalyzeContent, Params: map[string]string{"content": "x"}},
		{Capability: capability.NameFlashcards, Params: map[string]string{}},
		{Capability: capability.NameQuiz, Params: map[string]string{}},
	}, session)

	results := newTestCoordinator(reg).Execute(context.Background(), plan, session)

	require.Len(t, results, len(plan.Tasks))
	seen := map[string]bool{}
	for _, res := range results {
		require.False(t, seen[res.TaskID], "duplicate result for task %s", res.TaskID)
		seen[res.TaskID] = true
	}
}

func TestExecuteIngestArchivesIntoEstablishedCourse(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "vidya.db"))
	require.NoError(t, err)
	defer st.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Mitosis has four phases."), 0o644))

	ctx := context.Background()
	courseID, err := st.ResolveOrCreate(ctx, "u1", "Biology", "")
	require.NoError(t, err)

	reg := capability.NewRegistry()
	reg.Register(capability.NewIngest(st))

	session := newTestSession("u1")
	session.SetFact(FactLastCourse, courseID)
	plan := planFor(t, reg, []Intent{
		{Capability: capability.NameFileIngest, Params: map[string]string{"path": path, "name": "notes.txt"}},
	}, session)

	results := newTestCoordinator(reg).Execute(ctx, plan, session)
	require.Len(t, results, 1)
	require.Equal(t, TaskSucceeded, results[0].Status)

	// The uploaded text lands in the established course's material.
	materials, err := st.SearchMaterials(ctx, courseID, "Mitosis", 5)
	require.NoError(t, err)
	require.NotEmpty(t, materials)
	assert.Contains(t, materials[0].Content, "four phases")
}
