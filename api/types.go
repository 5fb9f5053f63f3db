package api

import (
	"time"

	"github.com/BaSui01/strengthflow/agent/crews"
	"github.com/BaSui01/strengthflow/llm/budget"
)

// =============================================================================
// 📊 Analysis DTOs
// =============================================================================

// AnalysisRequest 分析请求
type AnalysisRequest struct {
	Subject string `json:"subject"`
	Context string `json:"context,omitempty"`
}

// ToSubject 转换为流水线输入
func (r AnalysisRequest) ToSubject() crews.Subject {
	return crews.Subject{Name: r.Subject, Context: r.Context}
}

// AnalysisSummary 报告列表项
type AnalysisSummary struct {
	ID         string       `json:"id"`
	Subject    string       `json:"subject"`
	Status     crews.Status `json:"status"`
	Fallbacks  int          `json:"fallbacks"`
	Degraded   bool         `json:"degraded"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// NewAnalysisSummary 从报告生成摘要
func NewAnalysisSummary(r *crews.Report) AnalysisSummary {
	return AnalysisSummary{
		ID:         r.ID,
		Subject:    r.Subject.Name,
		Status:     r.Status,
		Fallbacks:  len(r.Failures),
		Degraded:   r.Degraded(),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// =============================================================================
// 🔋 Budget DTOs
// =============================================================================

// BudgetResponse 预算窗口状态；时长以毫秒表示
type BudgetResponse struct {
	CallsInWindow  int       `json:"calls_in_window"`
	TokensInWindow int       `json:"tokens_in_window"`
	WindowStart    time.Time `json:"window_start"`
	RPMLimit       int       `json:"rpm_limit"`
	TPMLimit       int       `json:"tpm_limit"`
	TokensPerCall  int       `json:"tokens_per_call"`
	Capacity       int       `json:"capacity"`
	NextSlotInMs   int64     `json:"next_slot_in_ms"`
	Suspensions    int64     `json:"suspensions"`
}

// NewBudgetResponse 转换 Governor 状态
func NewBudgetResponse(s budget.State) BudgetResponse {
	return BudgetResponse{
		CallsInWindow:  s.CallsInWindow,
		TokensInWindow: s.TokensInWindow,
		WindowStart:    s.WindowStart,
		RPMLimit:       s.RPMLimit,
		TPMLimit:       s.TPMLimit,
		TokensPerCall:  s.TokensPerCall,
		Capacity:       s.Capacity,
		NextSlotInMs:   s.NextSlotIn.Milliseconds(),
		Suspensions:    s.Suspensions,
	}
}
