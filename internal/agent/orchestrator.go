package agent

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/rahul/vidya/internal/observability"
)

// Orchestrator is the single entry point for the web/chat layer: one call
// per user turn, classify -> plan -> execute -> synthesize. Turns for the
// same user are processed strictly in arrival order; different users run
// concurrently.
type Orchestrator struct {
	Classifier  *Classifier
	Planner     *Planner
	Coordinator *Coordinator
	Synthesizer *Synthesizer
	Sessions    *Manager
	Logger      *observability.Logger

	TurnTimeout time.Duration
}

// HandleTurn processes one user message end to end. The user always gets a
// reply: classification problems come back as a clarification request,
// planning problems as an apology, task failures as a degraded answer.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID, message string, attachments []FileRef) Reply {
	session, release := o.Sessions.Acquire(userID)
	defer release()

	if o.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.TurnTimeout)
		defer cancel()
	}

	observability.BeginTurn(userID)
	defer observability.EndTurn()
	observability.SetStatus(observability.PhaseClassifying, userID)

	intents, err := o.Classifier.Classify(ctx, message, attachments, session)
	if err != nil {
		var classErr *ClassificationError
		if errors.As(err, &classErr) {
			return Reply{
				Response: "I'm not sure what you'd like me to do. Could you rephrase that, " +
					"or tell me whether you want a course set up, a study plan, flashcards, or research?",
			}
		}
		log.Printf("classification error for %s: %v", userID, err)
		return Reply{Response: "Something went wrong understanding your request. Please try again."}
	}
	for _, it := range intents {
		if o.Logger != nil {
			o.Logger.LogIntent(userID, it.Capability, it.Params)
		}
	}

	observability.SetStatus(observability.PhasePlanning, userID)
	plan, err := o.Planner.BuildPlan(intents, session)
	if err != nil {
		// Planning errors are invariant violations: log loudly, apologize
		// blandly.
		log.Printf("planning error for %s: %v", userID, err)
		return Reply{Response: "Sorry, I couldn't work out how to handle that request. Please try again."}
	}
	plan.Input = message
	if o.Logger != nil {
		o.Logger.LogPlan(userID, plan.ID, plan.Order())
	}

	observability.SetStatus(observability.PhaseExecuting, userID)
	session.SetFact(FactPendingPlan, plan.ID)
	results := o.Coordinator.Execute(ctx, plan, session)
	session.SetFact(FactPendingPlan, "")

	observability.SetStatus(observability.PhaseSynthesis, userID)
	reply := o.Synthesizer.Synthesize(ctx, message, plan, results, session)

	if o.Logger != nil {
		o.Logger.LogTurn(userID, plan.ID, len(plan.Tasks))
	}
	return reply
}
