package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rahul/vidya/internal/capability"
	"github.com/rahul/vidya/internal/governance"
	"github.com/rahul/vidya/internal/observability"
	"golang.org/x/sync/semaphore"
)

// ExecutionResult is the per-task outcome of one plan execution. The output
// payload is opaque here; the synthesizer interprets it.
type ExecutionResult struct {
	TaskID     string
	Capability string
	Status     TaskStatus
	Output     string
	Err        error
	Retries    int
}

// Coordinator walks a plan respecting dependencies, invokes capabilities
// with bounded fan-out, retries transient failures, and skips the
// dependents of failed tasks. Every planned task gets exactly one result.
type Coordinator struct {
	Registry *capability.Registry
	Policy   governance.PolicyEngine
	Logger   *observability.Logger

	FanOut      int
	MaxRetries  int
	TaskTimeout time.Duration
	// BackoffBase is the first retry delay; doubled per attempt, jittered.
	BackoffBase time.Duration
}

func NewCoordinator(registry *capability.Registry, policy governance.PolicyEngine, logger *observability.Logger) *Coordinator {
	return &Coordinator{
		Registry:    registry,
		Policy:      policy,
		Logger:      logger,
		FanOut:      4,
		MaxRetries:  2,
		TaskTimeout: 60 * time.Second,
		BackoffBase: 200 * time.Millisecond,
	}
}

// Execute runs the plan to completion. Session facts are mutated only from
// this goroutine, immediately after the establishing task succeeds, so
// later tasks in the same plan observe them.
func (c *Coordinator) Execute(ctx context.Context, plan *Plan, session *Session) []ExecutionResult {
	results := make(map[string]*ExecutionResult, len(plan.Tasks))
	outputs := make(map[string]string, len(plan.Tasks))
	sem := semaphore.NewWeighted(int64(c.FanOut))
	done := make(chan *ExecutionResult, len(plan.Tasks))
	inFlight := 0

	record := func(res *ExecutionResult) {
		results[res.TaskID] = res
		if t := plan.Task(res.TaskID); t != nil {
			t.Status = res.Status
		}
		if res.Status == TaskSucceeded {
			outputs[res.TaskID] = res.Output
			c.applyFacts(session, res)
		}
		if c.Logger != nil {
			c.Logger.LogTask(session.UserID, res.TaskID, res.Capability, string(res.Status))
		}
	}

	for {
		// Dispatch every task whose dependencies are settled. Walking the
		// topological order means skip cascades resolve in one pass.
		for _, id := range plan.Order() {
			t := plan.Task(id)
			if t.Status != TaskPending {
				continue
			}
			switch c.depState(plan, t) {
			case depsSucceeded:
				t.Status = TaskRunning
				inFlight++
				inv := c.buildInvocation(t, session, outputs)
				go c.runTask(ctx, sem, t, inv, done)
			case depsFailed:
				record(&ExecutionResult{
					TaskID:     t.ID,
					Capability: t.Capability,
					Status:     TaskSkipped,
					Err:        fmt.Errorf("dependency did not succeed"),
				})
			}
		}

		if len(results) == len(plan.Tasks) {
			break
		}
		if inFlight == 0 {
			// Cannot happen for a well-formed DAG; fail the stragglers
			// rather than spin.
			for _, t := range plan.Tasks {
				if results[t.ID] == nil {
					record(&ExecutionResult{
						TaskID:     t.ID,
						Capability: t.Capability,
						Status:     TaskFailed,
						Err:        fmt.Errorf("task unreachable in plan"),
					})
				}
			}
			break
		}

		select {
		case res := <-done:
			inFlight--
			record(res)
		case <-ctx.Done():
			// Caller-level timeout: every not-yet-terminal task still gets
			// a terminal result. In-flight invocations are abandoned to
			// their context cancellation.
			for _, t := range plan.Tasks {
				if results[t.ID] == nil {
					record(&ExecutionResult{
						TaskID:     t.ID,
						Capability: t.Capability,
						Status:     TaskFailed,
						Err:        fmt.Errorf("%w: turn deadline reached", ErrTimeout),
					})
				}
			}
			return c.collect(plan, results)
		}
	}

	return c.collect(plan, results)
}

type depState int

const (
	depsPending depState = iota
	depsSucceeded
	depsFailed
)

func (c *Coordinator) depState(plan *Plan, t *Task) depState {
	state := depsSucceeded
	for _, dep := range t.DependsOn {
		d := plan.Task(dep)
		if d == nil {
			return depsFailed
		}
		switch d.Status {
		case TaskSucceeded:
		case TaskFailed, TaskSkipped:
			return depsFailed
		default:
			state = depsPending
		}
	}
	return state
}

// buildInvocation resolves parameters at dispatch time, on the coordinator
// goroutine, so workers never read session state concurrently.
func (c *Coordinator) buildInvocation(t *Task, session *Session, outputs map[string]string) capability.Invocation {
	params := make(map[string]string, len(t.Params)+1)
	for k, v := range t.Params {
		params[k] = v
	}
	if desc, ok := c.Registry.Descriptor(t.Capability); ok && params["course_id"] == "" {
		// file_ingest does not require a course but archives into the
		// established one when the session has it.
		if desc.RequiresCourse || t.Capability == capability.NameFileIngest {
			params["course_id"] = session.Fact(FactLastCourse)
		}
	}

	deps := make(map[string]string, len(t.DependsOn))
	for _, dep := range t.DependsOn {
		if out, ok := outputs[dep]; ok {
			deps[dep] = out
		}
	}

	return capability.Invocation{
		UserID:     session.UserID,
		Params:     params,
		DepOutputs: deps,
	}
}

func (c *Coordinator) runTask(ctx context.Context, sem *semaphore.Weighted, t *Task, inv capability.Invocation, done chan<- *ExecutionResult) {
	res := &ExecutionResult{TaskID: t.ID, Capability: t.Capability, Status: TaskFailed}
	defer func() { done <- res }()

	if err := sem.Acquire(ctx, 1); err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrTimeout, err)
		return
	}
	defer sem.Release(1)

	impl := c.Registry.Get(t.Capability)
	if impl == nil {
		res.Err = capability.Permanent(t.Capability, fmt.Errorf("capability not registered"))
		return
	}

	if c.Policy != nil {
		verdict, err := c.Policy.Evaluate(ctx, governance.Request{
			Capability: t.Capability,
			Params:     inv.Params,
			UserID:     inv.UserID,
		})
		if err == nil && c.Logger != nil {
			c.Logger.LogPolicyCheck(inv.UserID, t.Capability, string(verdict.Effect), verdict.Reason)
		}
		if err == nil && verdict.Effect == governance.EffectDeny {
			res.Err = capability.Permanent(t.Capability, fmt.Errorf("denied by policy: %s", verdict.Reason))
			return
		}
	}

	for attempt := 0; ; attempt++ {
		res.Retries = attempt
		if attempt > 0 {
			if c.Logger != nil {
				c.Logger.LogRetry(inv.UserID, t.ID, attempt, res.Err.Error())
			}
			if !c.sleep(ctx, c.backoff(attempt)) {
				res.Err = fmt.Errorf("%w: canceled during backoff", ErrTimeout)
				return
			}
		}

		out, err := c.invoke(ctx, impl, inv)
		if err == nil {
			res.Status = TaskSucceeded
			res.Output = out
			res.Err = nil
			return
		}

		res.Err = err
		if !IsTransient(err) || attempt >= c.MaxRetries {
			return
		}
	}
}

// invoke runs a single capability call under the per-task timeout. Deadline
// expiry is reported as a transient timeout.
func (c *Coordinator) invoke(ctx context.Context, impl capability.Capability, inv capability.Invocation) (string, error) {
	callCtx := ctx
	if c.TaskTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.TaskTimeout)
		defer cancel()
	}

	out, err := impl.Execute(callCtx, inv)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return out, err
}

func (c *Coordinator) backoff(attempt int) time.Duration {
	base := c.BackoffBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := base << (attempt - 1)
	// Up to 25% jitter so concurrent retries against a throttled backend
	// don't land together.
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// applyFacts records session facts established by a succeeded task.
func (c *Coordinator) applyFacts(session *Session, res *ExecutionResult) {
	switch res.Capability {
	case capability.NameResolveCourse:
		if res.Output != "" {
			session.SetFact(FactLastCourse, res.Output)
		}
	case capability.NameStudyPlan:
		session.SetFact(FactWorkflowStage, "study_plan_ready")
	}
	session.SetFact(FactLastAction, res.Capability)
}

// collect flattens results into plan order, one entry per task.
func (c *Coordinator) collect(plan *Plan, results map[string]*ExecutionResult) []ExecutionResult {
	out := make([]ExecutionResult, 0, len(plan.Tasks))
	for _, id := range plan.Order() {
		if res := results[id]; res != nil {
			out = append(out, *res)
		}
	}
	return out
}
