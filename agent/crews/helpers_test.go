package crews

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/strengthflow/llm"
	"github.com/BaSui01/strengthflow/llm/budget"
)

// scriptedProvider answers per category from req.Metadata["category"].
type scriptedProvider struct {
	mu       sync.Mutex
	replies  map[string][]reply
	fallback reply
	requests []*llm.ChatRequest
}

type reply struct {
	content string
	err     error
	usage   llm.ChatUsage
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{replies: make(map[string][]reply)}
}

func (p *scriptedProvider) on(category string, replies ...reply) *scriptedProvider {
	p.replies[category] = append(p.replies[category], replies...)
	return p
}

func (p *scriptedProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)

	category := req.Metadata["category"]
	r := p.fallback
	if queue := p.replies[category]; len(queue) > 0 {
		r = queue[0]
		p.replies[category] = queue[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &llm.ChatResponse{
		ID:       "resp-" + category,
		Provider: "scripted",
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Message: llm.Message{Role: llm.RoleAssistant, Content: r.content},
		}},
		Usage: r.usage,
	}, nil
}

func (p *scriptedProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// stepClock advances instantly whenever the governor sleeps.
type stepClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *stepClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

type recordingRecorder struct {
	mu          sync.Mutex
	calls       map[string]int
	fallbacks   map[string]string
	transitions []string
	runs        []string
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{calls: make(map[string]int), fallbacks: make(map[string]string)}
}

func (r *recordingRecorder) RecordCrewCall(category, outcome string, _ time.Duration, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[category+"/"+outcome]++
}

func (r *recordingRecorder) RecordFallback(category, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[category] = kind
}

func (r *recordingRecorder) RecordCallTransition(category, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, category+":"+from+"->"+to)
}

func (r *recordingRecorder) RecordCrewRun(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, status)
}

func validJSON(name string) string {
	return `{"agent_name":"` + name + `","strengths":["strong brand","loyal customers","healthy margins"]}`
}

func generousGovernor(t *testing.T, opts ...budget.Option) *budget.Governor {
	t.Helper()
	g, err := budget.NewGovernor(budget.Config{
		RPMLimit:      100,
		TPMLimit:      1_000_000,
		TokensPerCall: 630,
		Window:        time.Minute,
	}, zap.NewNop(), opts...)
	require.NoError(t, err)
	return g
}

func newTestCrew(t *testing.T, provider llm.Provider, governor *budget.Governor, opts ...Option) *Crew {
	t.Helper()
	crew, err := NewCrew(CrewConfig{
		Name:          "test-crew",
		TokensPerCall: 630,
		Call: CallOptions{
			Model:          "llama-3.1-8b-instant",
			MaxTokens:      512,
			Temperature:    0.2,
			ResponseFormat: llm.ResponseFormatJSONObject,
		},
	}, provider, governor, zap.NewNop(), opts...)
	require.NoError(t, err)
	return crew
}
