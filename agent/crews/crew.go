package crews

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/strengthflow/agent/structured"
	"github.com/BaSui01/strengthflow/llm"
	"github.com/BaSui01/strengthflow/llm/budget"
	"github.com/BaSui01/strengthflow/llm/retry"
	"github.com/BaSui01/strengthflow/llm/tokenizer"
	"github.com/BaSui01/strengthflow/types"
)

const instrumentationName = "github.com/BaSui01/strengthflow/agent/crews"

// Member is one strength analyst of the crew.
type Member struct {
	Category  string `json:"category" yaml:"category"`
	Role      string `json:"role" yaml:"role"`
	Goal      string `json:"goal" yaml:"goal"`
	Backstory string `json:"backstory,omitempty" yaml:"backstory"`
}

// DefaultMembers returns the standard four-category crew.
func DefaultMembers() []Member {
	return []Member{
		{
			Category:  "competitive",
			Role:      "Competitive Strengths Analyst",
			Goal:      "Identify what sets the subject apart from its competitors",
			Backstory: "You have spent years benchmarking companies against their rivals.",
		},
		{
			Category:  "market",
			Role:      "Market Position Analyst",
			Goal:      "Identify the subject's strengths in market reach, brand and customer base",
			Backstory: "You study market share, brand perception and customer loyalty.",
		},
		{
			Category:  "product",
			Role:      "Product Strengths Analyst",
			Goal:      "Identify the strongest aspects of the subject's products and services",
			Backstory: "You evaluate product quality, innovation and fit.",
		},
		{
			Category:  "operational",
			Role:      "Operational Excellence Analyst",
			Goal:      "Identify the subject's operational and organizational strengths",
			Backstory: "You assess supply chains, execution and talent.",
		},
	}
}

// CallOptions are passed to every provider call.
type CallOptions struct {
	Model       string        `json:"model" yaml:"model"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature float32       `json:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	// ResponseFormat is forwarded as a hint ("json_object" or "text"); output
	// is always validated locally.
	ResponseFormat string `json:"response_format" yaml:"response_format"`
}

// CrewConfig configures a crew.
type CrewConfig struct {
	Name    string
	Members []Member
	Call    CallOptions
	// TokensPerCall overrides the tokenizer estimate of each call when > 0.
	TokensPerCall int
}

// Recorder receives pipeline metrics. internal/metrics.Collector implements it.
type Recorder interface {
	RecordCrewCall(category, outcome string, duration time.Duration, promptTokens, completionTokens int)
	RecordFallback(category, kind string)
	RecordCallTransition(category, from, to string)
	RecordCrewRun(status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordCrewCall(string, string, time.Duration, int, int) {}
func (nopRecorder) RecordFallback(string, string) {}
func (nopRecorder) RecordCallTransition(string, string, string) {}
func (nopRecorder) RecordCrewRun(string, time.Duration) {}

// Option configures a Crew.
type Option func(*Crew)

// WithRetryer sets the provider retry policy. Each retried attempt is
// admitted by the governor again.
func WithRetryer(r retry.Retryer) Option {
	return func(c *Crew) { c.retryer = r }
}

func WithRecorder(r Recorder) Option {
	return func(c *Crew) { c.recorder = r }
}

func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(c *Crew) { c.tokenizer = t }
}

func WithValidator(v *structured.Validator) Option {
	return func(c *Crew) { c.validator = v }
}

// WithNow overrides the wall clock used for report timestamps.
func WithNow(now func() time.Time) Option {
	return func(c *Crew) { c.now = now }
}

// Crew runs one strength analyst per category against a single subject.
// Calls are issued sequentially; a Crew is safe for concurrent Run calls and
// all runs share the governor's budget.
type Crew struct {
	cfg          CrewConfig
	provider     llm.Provider
	governor     *budget.Governor
	retryer      retry.Retryer
	recorder     Recorder
	tokenizer    tokenizer.Tokenizer
	validator    *structured.Validator
	tracer       trace.Tracer
	now          func() time.Time
	instructions string
	logger       *zap.Logger
}

// NewCrew creates a crew.
func NewCrew(cfg CrewConfig, provider llm.Provider, governor *budget.Governor, logger *zap.Logger, opts ...Option) (*Crew, error) {
	if provider == nil {
		return nil, types.NewInvalidRequestError("crew requires a provider")
	}
	if governor == nil {
		return nil, types.NewInvalidRequestError("crew requires a budget governor")
	}
	if len(cfg.Members) == 0 {
		cfg.Members = DefaultMembers()
	}
	seen := make(map[string]struct{}, len(cfg.Members))
	for i, m := range cfg.Members {
		if strings.TrimSpace(m.Category) == "" {
			return nil, types.NewInvalidRequestError(fmt.Sprintf("member %d has no category", i))
		}
		if _, dup := seen[m.Category]; dup {
			return nil, types.NewInvalidRequestError(fmt.Sprintf("duplicate category %q", m.Category))
		}
		seen[m.Category] = struct{}{}
	}
	if cfg.Name == "" {
		cfg.Name = "strength-analysis"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Crew{
		cfg:      cfg,
		provider: provider,
		governor: governor,
		tracer:   otel.Tracer(instrumentationName),
		now:      time.Now,
		logger:   logger.With(zap.String("component", "crew"), zap.String("crew", cfg.Name)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryer == nil {
		c.retryer = retry.NewBackoffRetryer(retry.DefaultRetryPolicy(), logger)
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.tokenizer == nil {
		c.tokenizer = tokenizer.ForModel(cfg.Call.Model)
	}
	if c.validator == nil {
		c.validator = structured.NewValidator()
	}

	instructions, err := structured.BuildOutputInstructions(c.validator.Schema())
	if err != nil {
		return nil, err
	}
	c.instructions = instructions
	return c, nil
}

// Members returns a copy of the crew members.
func (c *Crew) Members() []Member {
	out := make([]Member, len(c.cfg.Members))
	copy(out, c.cfg.Members)
	return out
}

type callPlan struct {
	member   Member
	messages []llm.Message
	estimate int
}

// Run analyzes subject with every member and aggregates the results.
//
// Unusable agent output is replaced by a fallback entry and the run still
// completes. A budget violation, a provider error or cancellation aborts the
// run: the returned report is failed and err is the cause, unmodified.
func (c *Crew) Run(ctx context.Context, subject Subject) (*Report, error) {
	if strings.TrimSpace(subject.Name) == "" {
		return nil, types.NewInvalidRequestError("subject must not be empty")
	}

	report := newReport(subject, c.now())
	ctx = types.WithRunID(ctx, report.ID)
	ctx, span := c.tracer.Start(ctx, "crew.run", trace.WithAttributes(
		attribute.String("crew.name", c.cfg.Name),
		attribute.String("crew.run_id", report.ID),
		attribute.Int("crew.members", len(c.cfg.Members)),
	))
	defer span.End()

	logger := c.logger.With(zap.String("run_id", report.ID), zap.String("subject", subject.Name))
	logger.Info("crew run started", zap.Int("members", len(c.cfg.Members)))

	abort := func(err error) (*Report, error) {
		report.fail(err, c.now())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.recorder.RecordCrewRun(string(report.Status), report.Duration())
		logger.Error("crew run failed", zap.Error(err), zap.Duration("duration", report.Duration()))
		return report, err
	}

	plans, err := c.plan(subject)
	if err != nil {
		return abort(err)
	}
	estimates := make([]int, len(plans))
	for i, p := range plans {
		estimates[i] = p.estimate
	}
	if err := c.governor.Preflight(estimates...); err != nil {
		return abort(err)
	}

	for _, p := range plans {
		result, failure, call, err := c.runMember(ctx, p, logger)
		report.Calls = append(report.Calls, call)
		if err != nil {
			return abort(err)
		}
		report.Results[p.member.Category] = result.Strengths
		if failure != nil {
			report.Failures = append(report.Failures, *failure)
		}
	}

	report.complete(c.now())
	span.SetAttributes(attribute.Int("crew.fallbacks", len(report.Failures)))
	c.recorder.RecordCrewRun(string(report.Status), report.Duration())
	logger.Info("crew run completed",
		zap.Int("fallbacks", len(report.Failures)),
		zap.Duration("duration", report.Duration()))
	return report, nil
}

func (c *Crew) plan(subject Subject) ([]callPlan, error) {
	plans := make([]callPlan, 0, len(c.cfg.Members))
	for _, m := range c.cfg.Members {
		msgs := c.buildMessages(m, subject)
		est := c.cfg.TokensPerCall
		if est <= 0 {
			tm := make([]tokenizer.Message, len(msgs))
			for i, msg := range msgs {
				tm[i] = tokenizer.Message{Role: string(msg.Role), Content: msg.Content}
			}
			n, err := tokenizer.EstimateCall(c.tokenizer, tm, c.cfg.Call.MaxTokens)
			if err != nil {
				return nil, fmt.Errorf("estimate tokens for %s: %w", m.Category, err)
			}
			est = n
		}
		plans = append(plans, callPlan{member: m, messages: msgs, estimate: est})
	}
	return plans, nil
}

func (c *Crew) buildMessages(m Member, subject Subject) []llm.Message {
	var system strings.Builder
	fmt.Fprintf(&system, "You are the %s.", m.Role)
	if m.Backstory != "" {
		system.WriteString(" " + m.Backstory)
	}
	if m.Goal != "" {
		fmt.Fprintf(&system, "\nGoal: %s", m.Goal)
	}
	system.WriteString("\n\n" + c.instructions)

	var user strings.Builder
	fmt.Fprintf(&user, "Analyze the %s strengths of %s.", m.Category, subject.Name)
	if strings.TrimSpace(subject.Context) != "" {
		fmt.Fprintf(&user, "\n\nContext:\n%s", subject.Context)
	}
	fmt.Fprintf(&user, "\n\nSet agent_name to %q and list %d to %d strengths.",
		m.Role, structured.MinStrengths, structured.MaxStrengths)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system.String()},
		{Role: llm.RoleUser, Content: user.String()},
	}
}

func (c *Crew) request(p callPlan, runID string) *llm.ChatRequest {
	req := &llm.ChatRequest{
		TraceID:     runID,
		Model:       c.cfg.Call.Model,
		Messages:    p.messages,
		MaxTokens:   c.cfg.Call.MaxTokens,
		Temperature: c.cfg.Call.Temperature,
		Timeout:     c.cfg.Call.Timeout,
		Metadata:    map[string]string{"category": p.member.Category},
	}
	if c.cfg.Call.ResponseFormat != "" {
		req.ResponseFormat = &llm.ResponseFormat{Type: c.cfg.Call.ResponseFormat}
	}
	return req
}

// runMember drives one call through PENDING -> IN_FLIGHT -> VALIDATING ->
// {DONE | FALLBACK -> DONE}. A non-nil error aborts the run.
func (c *Crew) runMember(ctx context.Context, p callPlan, logger *zap.Logger) (structured.AgentResult, *FailureRecord, CallTrace, error) {
	category := p.member.Category
	ctx = types.WithCategory(ctx, category)
	runID, _ := types.RunID(ctx)

	ctx, span := c.tracer.Start(ctx, "crew.call", trace.WithAttributes(
		attribute.String("crew.category", category),
		attribute.Int("llm.estimated_tokens", p.estimate),
	))
	defer span.End()

	logger = logger.With(zap.String("category", category))
	machine := newCallMachine(c.now, func(from, to CallState) {
		c.recorder.RecordCallTransition(category, string(from), string(to))
		logger.Debug("call transition", zap.String("from", string(from)), zap.String("to", string(to)))
	})
	call := CallTrace{Category: category, EstimatedTokens: p.estimate, StartedAt: c.now()}
	finish := func() CallTrace {
		call.State = machine.State()
		call.Transitions = machine.History()
		call.FinishedAt = c.now()
		return call
	}

	fail := func(err error) (structured.AgentResult, *FailureRecord, CallTrace, error) {
		if !machine.State().IsTerminal() {
			if terr := machine.transition(StateFailed); terr != nil {
				logger.Error("call state machine", zap.Error(terr))
			}
		}
		call.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.recorder.RecordCrewCall(category, "error", c.now().Sub(call.StartedAt), 0, 0)
		return structured.AgentResult{}, nil, finish(), err
	}

	req := c.request(p, runID)
	start := c.now()
	resp, err := retry.DoWithResultTyped(c.retryer, ctx, func() (*llm.ChatResponse, error) {
		if machine.State() == StateInFlight {
			if err := machine.transition(StatePending); err != nil {
				return nil, err
			}
		}
		admission, err := c.governor.Admit(ctx, p.estimate)
		if err != nil {
			return nil, err
		}
		if err := machine.transition(StateInFlight); err != nil {
			return nil, err
		}
		call.Attempts++

		resp, err := c.provider.Completion(ctx, req)
		if err != nil {
			logger.Warn("provider call failed", zap.Int("attempt", call.Attempts), zap.Error(err))
			return nil, err
		}
		if resp != nil && resp.Usage.TotalTokens > 0 {
			admission.Settle(resp.Usage.TotalTokens)
		}
		return resp, nil
	})
	if err != nil {
		return fail(err)
	}

	if resp != nil {
		call.ActualTokens = resp.Usage.TotalTokens
		c.recorder.RecordCrewCall(category, "success", c.now().Sub(start),
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	if err := machine.transition(StateValidating); err != nil {
		return fail(err)
	}
	result, verr := c.validator.Validate(llm.FirstContent(resp))
	if verr == nil {
		if err := machine.transition(StateDone); err != nil {
			return fail(err)
		}
		call.AgentName = result.AgentName
		logger.Info("call completed", zap.Int("strengths", len(result.Strengths)))
		return *result, nil, finish(), nil
	}

	if err := machine.transition(StateFallback); err != nil {
		return fail(err)
	}
	fallback, record := ComposeFallback(verr)
	record.Category = category
	call.AgentName = fallback.AgentName
	call.Fallback = true
	call.Error = verr.Error()
	c.recorder.RecordFallback(category, string(record.Kind))
	span.SetAttributes(attribute.Bool("crew.fallback", true))
	logger.Warn("agent output rejected, using fallback",
		zap.String("kind", string(record.Kind)),
		zap.String("reason", record.Reason))

	if err := machine.transition(StateDone); err != nil {
		return fail(err)
	}
	return fallback, &record, finish(), nil
}
