package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/strengthflow/agent/crews"
	"github.com/BaSui01/strengthflow/agent/persistence"
	"github.com/BaSui01/strengthflow/api"
	"github.com/BaSui01/strengthflow/llm/budget"
	"github.com/BaSui01/strengthflow/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// =============================================================================
// 📊 分析接口 Handler
// =============================================================================

// AnalysisRunner 运行一次优势分析，*crews.Crew 实现该接口
type AnalysisRunner interface {
	Run(ctx context.Context, subject crews.Subject) (*crews.Report, error)
}

// BudgetController 提供预算窗口快照与运维重置，*budget.Governor 实现该接口
type BudgetController interface {
	Status() budget.State
	Reset()
}

// AnalysisHandler 分析接口处理器
type AnalysisHandler struct {
	runner  AnalysisRunner
	store   persistence.ReportStore
	budget  BudgetController
	timeout time.Duration
	logger  *zap.Logger

	// 相同主题的并发请求只跑一次流水线，共享同一份预算
	group singleflight.Group
}

type runResult struct {
	report *crews.Report
	err    error
}

// NewAnalysisHandler 创建分析处理器；timeout <= 0 表示不额外限时
func NewAnalysisHandler(runner AnalysisRunner, store persistence.ReportStore, status BudgetController, timeout time.Duration, logger *zap.Logger) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisHandler{
		runner:  runner,
		store:   store,
		budget:  status,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "analysis_handler")),
	}
}

// HandleCreate 处理 POST /api/v1/analyses
func (h *AnalysisHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.AnalysisRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if strings.TrimSpace(req.Subject) == "" {
		WriteError(w, r, types.NewInvalidRequestError("subject is required"), nil, h.logger)
		return
	}

	key := req.Subject + "\x00" + req.Context
	v, _, shared := h.group.Do(key, func() (any, error) {
		report, err := h.run(r.Context(), req.ToSubject())
		return runResult{report: report, err: err}, nil
	})
	res := v.(runResult)

	if shared {
		h.logger.Debug("analysis shared with concurrent request", zap.String("subject", req.Subject))
	}

	if res.err != nil {
		apiErr := ToAPIError(res.err)
		var data any
		if res.report != nil {
			data = res.report
		}
		WriteError(w, r, apiErr, data, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/analyses/"+res.report.ID)
	WriteSuccess(w, r, http.StatusCreated, res.report)
}

// run 执行流水线并保存报告。请求断开不会中断已经开始的分析，
// 其他共享同一结果的请求仍在等待。
func (h *AnalysisHandler) run(parent context.Context, subject crews.Subject) (*crews.Report, error) {
	ctx := context.WithoutCancel(parent)
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	report, err := h.runner.Run(ctx, subject)
	if report == nil {
		return nil, err
	}

	if h.store != nil {
		if saveErr := h.store.SaveReport(ctx, report); saveErr != nil {
			h.logger.Warn("failed to save report",
				zap.String("report_id", report.ID),
				zap.Error(saveErr),
			)
		}
	}

	h.logger.Info("analysis finished",
		zap.String("report_id", report.ID),
		zap.String("status", string(report.Status)),
		zap.Int("fallbacks", len(report.Failures)),
		zap.Bool("degraded", report.Degraded()),
		zap.Duration("duration", report.Duration()),
	)
	return report, err
}

// HandleGet 处理 GET /api/v1/analyses/{id}
func (h *AnalysisHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, r, types.NewInvalidRequestError("report id is required"), nil, h.logger)
		return
	}
	if h.store == nil {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "report store is not configured", h.logger)
		return
	}

	report, err := h.store.GetReport(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "report "+id+" not found")
		return
	}

	WriteSuccess(w, r, http.StatusOK, report)
}

// HandleList 处理 GET /api/v1/analyses?limit=N
func (h *AnalysisHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, r, types.NewInvalidRequestError("limit must be a positive integer"), nil, h.logger)
			return
		}
		limit = min(n, maxListLimit)
	}
	if h.store == nil {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "report store is not configured", h.logger)
		return
	}

	reports, err := h.store.ListReports(r.Context(), limit)
	if err != nil {
		h.writeStoreError(w, r, err, "")
		return
	}

	summaries := make([]api.AnalysisSummary, 0, len(reports))
	for _, report := range reports {
		summaries = append(summaries, api.NewAnalysisSummary(report))
	}
	WriteSuccess(w, r, http.StatusOK, summaries)
}

// HandleBudget 处理 GET /api/v1/budget
func (h *AnalysisHandler) HandleBudget(w http.ResponseWriter, r *http.Request) {
	if h.budget == nil {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "budget governor is not configured", h.logger)
		return
	}
	WriteSuccess(w, r, http.StatusOK, api.NewBudgetResponse(h.budget.Status()))
}

// HandleBudgetReset 处理 POST /api/v1/budget/reset，清空滑动窗口并返回新状态。
// 只在确认上游额度已恢复时使用，否则下一批调用可能触发 429。
func (h *AnalysisHandler) HandleBudgetReset(w http.ResponseWriter, r *http.Request) {
	if h.budget == nil {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "budget governor is not configured", h.logger)
		return
	}
	before := h.budget.Status()
	h.budget.Reset()
	principal, _ := types.Principal(r.Context())
	h.logger.Warn("budget window reset",
		zap.Int("calls_in_window", before.CallsInWindow),
		zap.Int("tokens_in_window", before.TokensInWindow),
		zap.String("principal", principal),
	)
	WriteSuccess(w, r, http.StatusOK, api.NewBudgetResponse(h.budget.Status()))
}

func (h *AnalysisHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		WriteError(w, r, types.NewNotFoundError(notFound), nil, h.logger)
	case errors.Is(err, persistence.ErrStoreClosed):
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "report store is closed").
			WithCause(err).
			WithHTTPStatus(http.StatusServiceUnavailable), nil, h.logger)
	default:
		WriteError(w, r, types.NewError(types.ErrInternalError, "report store failure").WithCause(err), nil, h.logger)
	}
}
