package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/strengthflow/agent/crews"
	"github.com/BaSui01/strengthflow/agent/persistence"
	"github.com/BaSui01/strengthflow/llm"
	"github.com/BaSui01/strengthflow/llm/budget"
	"github.com/BaSui01/strengthflow/types"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// fakeRunner 返回预设的报告
type fakeRunner struct {
	calls   atomic.Int32
	release chan struct{}
	run     func(ctx context.Context, subject crews.Subject) (*crews.Report, error)
}

func (f *fakeRunner) Run(ctx context.Context, subject crews.Subject) (*crews.Report, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.run(ctx, subject)
}

func completedReport(subject crews.Subject) *crews.Report {
	now := time.Now()
	return &crews.Report{
		ID:      fmt.Sprintf("rep-%d", now.UnixNano()),
		Subject: subject,
		Status:  crews.StatusCompleted,
		Results: map[string][]string{
			"competitive": {"a", "b", "c"},
		},
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
	}
}

type staticBudget struct {
	state  budget.State
	resets int
}

func (s *staticBudget) Status() budget.State { return s.state }

func (s *staticBudget) Reset() {
	s.resets++
	s.state.CallsInWindow = 0
	s.state.TokensInWindow = 0
	s.state.NextSlotIn = 0
}

func newMemoryStore(t *testing.T) *persistence.MemoryReportStore {
	t.Helper()
	store := persistence.NewMemoryReportStore(persistence.DefaultStoreConfig())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newRouter(h *AnalysisHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyses", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/analyses", h.HandleList)
	mux.HandleFunc("GET /api/v1/analyses/{id}", h.HandleGet)
	mux.HandleFunc("GET /api/v1/budget", h.HandleBudget)
	mux.HandleFunc("POST /api/v1/budget/reset", h.HandleBudgetReset)
	return mux
}

func postAnalysis(t *testing.T, mux http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

// envelope 用于解码 data 为报告的响应
type envelope struct {
	Success bool          `json:"success"`
	Data    *crews.Report `json:"data"`
	Error   *ErrorInfo    `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

// =============================================================================
// 🧪 POST /api/v1/analyses
// =============================================================================

func TestAnalysisHandler_Create_Completed(t *testing.T) {
	store := newMemoryStore(t)
	runner := &fakeRunner{run: func(_ context.Context, s crews.Subject) (*crews.Report, error) {
		return completedReport(s), nil
	}}
	mux := newRouter(NewAnalysisHandler(runner, store, nil, time.Minute, zap.NewNop()))

	w := postAnalysis(t, mux, `{"subject":"Acme","context":"B2B SaaS"}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	require.True(t, env.Success)
	require.NotNil(t, env.Data)
	assert.Equal(t, crews.StatusCompleted, env.Data.Status)
	assert.Equal(t, "Acme", env.Data.Subject.Name)
	assert.Equal(t, "B2B SaaS", env.Data.Subject.Context)
	assert.Equal(t, "/api/v1/analyses/"+env.Data.ID, w.Header().Get("Location"))

	saved, err := store.GetReport(context.Background(), env.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, env.Data.Results, saved.Results)
}

func TestAnalysisHandler_Create_ProviderErrorSurfacedUnmodified(t *testing.T) {
	store := newMemoryStore(t)
	provErr := &llm.Error{Code: llm.ErrUnauthorized, Message: "Invalid API Key", HTTPStatus: 401, Provider: "groq"}
	runner := &fakeRunner{run: func(_ context.Context, s crews.Subject) (*crews.Report, error) {
		report := completedReport(s)
		report.Status = crews.StatusFailed
		report.Results = nil
		report.Error = provErr.Error()
		return report, provErr
	}}
	mux := newRouter(NewAnalysisHandler(runner, store, nil, 0, zap.NewNop()))

	w := postAnalysis(t, mux, `{"subject":"Acme"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrProviderError), env.Error.Code)
	assert.Equal(t, "Invalid API Key", env.Error.Message)
	assert.Equal(t, "groq", env.Error.Provider)
	require.NotNil(t, env.Data)
	assert.Equal(t, crews.StatusFailed, env.Data.Status)
	assert.Equal(t, "Invalid API Key", env.Data.Error)
	assert.Nil(t, env.Data.Results)

	// 失败的报告同样保存
	_, err := store.GetReport(context.Background(), env.Data.ID)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	data := raw["data"].(map[string]any)
	assert.Equal(t, "failed", data["status"])
	assert.NotContains(t, data, "results")
}

func TestAnalysisHandler_Create_BudgetExceeded(t *testing.T) {
	runner := &fakeRunner{run: func(_ context.Context, s crews.Subject) (*crews.Report, error) {
		report := completedReport(s)
		report.Status = crews.StatusFailed
		report.Results = nil
		err := types.NewBudgetExceededError(7000, 6000)
		report.Error = err.Error()
		return report, err
	}}
	mux := newRouter(NewAnalysisHandler(runner, nil, nil, 0, zap.NewNop()))

	w := postAnalysis(t, mux, `{"subject":"Acme"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrBudgetExceeded), env.Error.Code)
}

func TestAnalysisHandler_Create_Validation(t *testing.T) {
	runner := &fakeRunner{run: func(context.Context, crews.Subject) (*crews.Report, error) {
		t.Fatal("runner must not be called")
		return nil, nil
	}}
	mux := newRouter(NewAnalysisHandler(runner, nil, nil, 0, zap.NewNop()))

	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
	}{
		{name: "blank subject", body: `{"subject":"   "}`, contentType: "application/json", wantStatus: http.StatusBadRequest},
		{name: "missing subject", body: `{"context":"x"}`, contentType: "application/json", wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"subject":"a","model":"x"}`, contentType: "application/json", wantStatus: http.StatusBadRequest},
		{name: "not json", body: `subject=a`, contentType: "application/x-www-form-urlencoded", wantStatus: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
	assert.Zero(t, runner.calls.Load())
}

func TestAnalysisHandler_Create_DetachesFromClientCancel(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, s crews.Subject) (*crews.Report, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, hasDeadline := ctx.Deadline()
		if !hasDeadline {
			return nil, errors.New("expected analysis timeout")
		}
		return completedReport(s), nil
	}}
	h := NewAnalysisHandler(runner, nil, nil, time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(`{"subject":"Acme"}`)).WithContext(ctx)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleCreate(w, r)

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestAnalysisHandler_Create_CollapsesConcurrentDuplicates(t *testing.T) {
	runner := &fakeRunner{
		release: make(chan struct{}),
		run: func(_ context.Context, s crews.Subject) (*crews.Report, error) {
			return completedReport(s), nil
		},
	}
	mux := newRouter(NewAnalysisHandler(runner, nil, nil, 0, zap.NewNop()))

	const n = 3
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := postAnalysis(t, mux, `{"subject":"Acme"}`)
			var env envelope
			if err := json.Unmarshal(w.Body.Bytes(), &env); err == nil && env.Data != nil {
				ids[i] = env.Data.ID
			}
		}(i)
	}

	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(runner.release)
	wg.Wait()

	assert.Equal(t, int32(1), runner.calls.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
		assert.NotEmpty(t, id)
	}
}

// =============================================================================
// 🧪 GET /api/v1/analyses
// =============================================================================

func TestAnalysisHandler_Get(t *testing.T) {
	store := newMemoryStore(t)
	report := completedReport(crews.Subject{Name: "Acme"})
	require.NoError(t, store.SaveReport(context.Background(), report))
	mux := newRouter(NewAnalysisHandler(&fakeRunner{}, store, nil, 0, zap.NewNop()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+report.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, report.ID, env.Data.ID)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalysisHandler_Get_ClosedStore(t *testing.T) {
	store := persistence.NewMemoryReportStore(persistence.DefaultStoreConfig())
	require.NoError(t, store.Close())
	mux := newRouter(NewAnalysisHandler(&fakeRunner{}, store, nil, 0, zap.NewNop()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAnalysisHandler_List(t *testing.T) {
	store := newMemoryStore(t)
	base := time.Now()
	for i := 0; i < 3; i++ {
		report := completedReport(crews.Subject{Name: fmt.Sprintf("s%d", i)})
		report.ID = fmt.Sprintf("r%d", i)
		report.StartedAt = base.Add(time.Duration(i) * time.Second)
		if i == 2 {
			report.Failures = []crews.FailureRecord{{AgentName: "Unknown Agent", Category: "competitive", Kind: types.ErrMalformedJSON, Reason: "invalid JSON"}}
		}
		require.NoError(t, store.SaveReport(context.Background(), report))
	}
	mux := newRouter(NewAnalysisHandler(&fakeRunner{}, store, nil, 0, zap.NewNop()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analyses?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []struct {
			ID        string `json:"id"`
			Subject   string `json:"subject"`
			Fallbacks int    `json:"fallbacks"`
			Degraded  bool   `json:"degraded"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "r2", resp.Data[0].ID)
	assert.Equal(t, "s2", resp.Data[0].Subject)
	assert.Equal(t, 1, resp.Data[0].Fallbacks)
	assert.True(t, resp.Data[0].Degraded)
	assert.False(t, resp.Data[1].Degraded)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analyses?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalysisHandler_NoStore(t *testing.T) {
	mux := newRouter(NewAnalysisHandler(&fakeRunner{}, nil, nil, 0, zap.NewNop()))

	for _, path := range []string{"/api/v1/analyses/x", "/api/v1/analyses", "/api/v1/budget"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

// =============================================================================
// 🧪 GET /api/v1/budget
// =============================================================================

func TestAnalysisHandler_Budget(t *testing.T) {
	state := budget.State{
		CallsInWindow:  2,
		TokensInWindow: 1260,
		RPMLimit:       3,
		TPMLimit:       6000,
		TokensPerCall:  630,
		Capacity:       3,
		NextSlotIn:     1500 * time.Millisecond,
	}
	mux := newRouter(NewAnalysisHandler(&fakeRunner{}, nil, &staticBudget{state: state}, 0, zap.NewNop()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/budget", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp.Data["calls_in_window"])
	assert.EqualValues(t, 1260, resp.Data["tokens_in_window"])
	assert.EqualValues(t, 3, resp.Data["capacity"])
	assert.EqualValues(t, 1500, resp.Data["next_slot_in_ms"])
}

// =============================================================================
// 🧪 端到端：真实 Crew + Governor
// =============================================================================

type jsonProvider struct{}

func (jsonProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	category := req.Metadata["category"]
	content := fmt.Sprintf(`{"agent_name":"%s analyst","strengths":["one","two","three"]}`, category)
	if category == "operational" {
		content = "not json at all"
	}
	return &llm.ChatResponse{
		Choices: []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: content}}},
		Usage:   llm.ChatUsage{TotalTokens: 300},
	}, nil
}

func (jsonProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (jsonProvider) Name() string { return "json" }

func TestAnalysisHandler_EndToEnd(t *testing.T) {
	governor, err := budget.NewGovernor(budget.Config{
		RPMLimit:      100,
		TPMLimit:      1_000_000,
		TokensPerCall: 630,
	}, zap.NewNop())
	require.NoError(t, err)

	crew, err := crews.NewCrew(crews.CrewConfig{
		Name:          "strengths",
		TokensPerCall: 630,
		Call:          crews.CallOptions{Model: "llama-3.1-8b-instant", MaxTokens: 512},
	}, jsonProvider{}, governor, zap.NewNop())
	require.NoError(t, err)

	store := newMemoryStore(t)
	mux := newRouter(NewAnalysisHandler(crew, store, governor, time.Minute, zap.NewNop()))

	w := postAnalysis(t, mux, `{"subject":"Acme"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Data)
	assert.Equal(t, crews.StatusCompleted, env.Data.Status)
	assert.Len(t, env.Data.Results, 4)
	assert.Equal(t, []string{crews.InvalidJSONStrength}, env.Data.Results["operational"])
	assert.Equal(t, []string{"one", "two", "three"}, env.Data.Results["market"])

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/budget", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var budgetResp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &budgetResp))
	assert.EqualValues(t, 4, budgetResp.Data["calls_in_window"])
	assert.EqualValues(t, 1200, budgetResp.Data["tokens_in_window"])
}

func TestAnalysisHandler_BudgetReset(t *testing.T) {
	status := &staticBudget{state: budget.State{CallsInWindow: 3, TokensInWindow: 1890, RPMLimit: 3, TPMLimit: 6000, Capacity: 3}}
	mux := newRouter(NewAnalysisHandler(&fakeRunner{}, nil, status, 0, zap.NewNop()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/budget/reset", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, status.resets)

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 0, resp.Data["calls_in_window"])
	assert.EqualValues(t, 0, resp.Data["tokens_in_window"])

	// GET 不会触发重置
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/budget/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, 1, status.resets)
}

func TestAnalysisHandler_BudgetReset_NotConfigured(t *testing.T) {
	mux := newRouter(NewAnalysisHandler(&fakeRunner{}, nil, nil, 0, zap.NewNop()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/budget/reset", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
