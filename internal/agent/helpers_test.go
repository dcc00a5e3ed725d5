package agent

import (
	"context"
	"errors"

	"github.com/rahul/vidya/internal/capability"
	"github.com/tmc/langchaingo/llms"
)

// fakeCapability wraps a real descriptor around a test execute function so
// planner and coordinator behavior is tested against the production
// metadata.
type fakeCapability struct {
	desc capability.Descriptor
	fn   func(ctx context.Context, inv capability.Invocation) (string, error)
}

func (f *fakeCapability) Descriptor() capability.Descriptor { return f.desc }

func (f *fakeCapability) Execute(ctx context.Context, inv capability.Invocation) (string, error) {
	if f.fn == nil {
		return "", nil
	}
	return f.fn(ctx, inv)
}

func fake(desc capability.Descriptor, fn func(ctx context.Context, inv capability.Invocation) (string, error)) *fakeCapability {
	return &fakeCapability{desc: desc, fn: fn}
}

// testRegistry registers fakes behind every production descriptor.
func testRegistry(overrides map[string]func(ctx context.Context, inv capability.Invocation) (string, error)) *capability.Registry {
	reg := capability.NewRegistry()
	descriptors := []capability.Descriptor{
		capability.NewResolveCourse(nil).Descriptor(),
		capability.NewAnalyzeContent().Descriptor(),
		capability.NewStudyPlan(nil, nil).Descriptor(),
		capability.NewUpdateStudyPlan(nil, nil).Descriptor(),
		capability.NewIngest(nil).Descriptor(),
		capability.NewKnowledgeStore(nil).Descriptor(),
		capability.NewKnowledgeQuery(nil, nil).Descriptor(),
		capability.NewFlashcards(nil, nil).Descriptor(),
		capability.NewQuiz(nil, nil).Descriptor(),
		capability.NewResearch(nil, false).Descriptor(),
		capability.NewProgress(nil).Descriptor(),
	}
	for _, d := range descriptors {
		reg.Register(fake(d, overrides[d.Name]))
	}
	return reg
}

func newTestSession(userID string) *Session {
	s, release := NewManager(nil, 20).Acquire(userID)
	release()
	return s
}

// fakeModel scripts the LLM: tool-call responses for classification,
// content responses for synthesis.
type fakeModel struct {
	content   string
	toolCalls []llms.ToolCall
	noChoices bool
	err       error
	calls     int
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.noChoices {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: m.content, ToolCalls: m.toolCalls},
		},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.content, nil
}

var errBoom = errors.New("boom")
