package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/strengthflow/types"
	"go.uber.org/zap"
)

// DefaultWindow 是 RPM / TPM 的滑动窗口长度。
const DefaultWindow = time.Minute

// Config 配置调度器的速率与 Token 上限。
type Config struct {
	RPMLimit      int           `json:"rpm_limit" yaml:"rpm_limit"`
	TPMLimit      int           `json:"tpm_limit" yaml:"tpm_limit"`
	TokensPerCall int           `json:"tokens_per_call" yaml:"tokens_per_call"`
	Window        time.Duration `json:"window" yaml:"window"`
}

// DefaultConfig 返回与 Groq 免费档相近的保守默认值。
func DefaultConfig() Config {
	return Config{
		RPMLimit:      3,
		TPMLimit:      6000,
		TokensPerCall: 630,
		Window:        DefaultWindow,
	}
}

// Capacity 返回一个窗口内可准入的调用数: min(rpm, floor(tpm / tokens_per_call))。
// TokensPerCall 为 0 时每次调用自带估算值，容量只受 RPM 约束。
func (c Config) Capacity() int {
	if c.TokensPerCall <= 0 {
		return c.RPMLimit
	}
	return min(c.RPMLimit, c.TPMLimit/c.TokensPerCall)
}

// Validate 校验配置。单次调用估算超过 TPM 上限属于致命错误。
func (c Config) Validate() error {
	if c.RPMLimit <= 0 {
		return types.NewInvalidRequestError(fmt.Sprintf("rpm_limit must be positive, got %d", c.RPMLimit))
	}
	if c.TPMLimit <= 0 {
		return types.NewInvalidRequestError(fmt.Sprintf("tpm_limit must be positive, got %d", c.TPMLimit))
	}
	if c.TokensPerCall < 0 {
		return types.NewInvalidRequestError(fmt.Sprintf("tokens_per_call must not be negative, got %d", c.TokensPerCall))
	}
	if c.Window < 0 {
		return types.NewInvalidRequestError(fmt.Sprintf("window must not be negative, got %s", c.Window))
	}
	if c.TokensPerCall > c.TPMLimit {
		return types.NewBudgetExceededError(c.TokensPerCall, c.TPMLimit)
	}
	return nil
}

// State 是调度器状态快照。
type State struct {
	CallsInWindow  int           `json:"calls_in_window"`
	TokensInWindow int           `json:"tokens_in_window"`
	WindowStart    time.Time     `json:"window_start"`
	RPMLimit       int           `json:"rpm_limit"`
	TPMLimit       int           `json:"tpm_limit"`
	TokensPerCall  int           `json:"tokens_per_call"`
	Capacity       int           `json:"capacity"`
	NextSlotIn     time.Duration `json:"next_slot_in"`
	Suspensions    int64         `json:"suspensions"`
}

// Observer 接收准入事件，用于指标采集。
type Observer interface {
	ObserveAdmission(wait time.Duration, state State)
}

// Clock 抽象时间源，测试中可替换。
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Option 配置 Governor。
type Option func(*Governor)

// WithClock 替换时间源。
func WithClock(c Clock) Option {
	return func(g *Governor) { g.clock = c }
}

// WithObserver 注册准入观察者。
func WithObserver(o Observer) Option {
	return func(g *Governor) { g.observer = o }
}

type entry struct {
	id     uint64
	at     time.Time
	tokens int
}

// Governor 以滑动窗口日志限制调用速率与 Token 吞吐。
// 一个 Governor 对应一个 API Key 的额度；多条流水线可共享同一实例。
type Governor struct {
	cfg      Config
	clock    Clock
	logger   *zap.Logger
	observer Observer

	mu          sync.Mutex
	log         []entry // 按准入时间升序
	seq         uint64
	suspensions int64
}

// NewGovernor 创建调度器。
func NewGovernor(cfg Config, logger *zap.Logger, opts ...Option) (*Governor, error) {
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Governor{
		cfg:    cfg,
		clock:  realClock{},
		logger: logger.With(zap.String("component", "governor")),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.logger.Info("governor initialized",
		zap.Int("rpm_limit", cfg.RPMLimit),
		zap.Int("tpm_limit", cfg.TPMLimit),
		zap.Int("tokens_per_call", cfg.TokensPerCall),
		zap.Int("capacity", cfg.Capacity()),
		zap.Duration("window", cfg.Window))
	return g, nil
}

// Config 返回生效配置。
func (g *Governor) Config() Config { return g.cfg }

// Capacity 返回一个窗口内的有效准入上限，取 RPM 与 TPM 推导值中较紧者。
func (g *Governor) Capacity() int { return g.cfg.Capacity() }

// Preflight 在调度开始前检查每次调用的估算值，任何一次超过 TPM 上限即致命失败，不重试。
func (g *Governor) Preflight(estimates ...int) error {
	for _, est := range estimates {
		est, err := g.normalize(est)
		if err != nil {
			return err
		}
		if est > g.cfg.TPMLimit {
			g.logger.Error("preflight rejected",
				zap.Int("estimated_tokens", est),
				zap.Int("tpm_limit", g.cfg.TPMLimit))
			return types.NewBudgetExceededError(est, g.cfg.TPMLimit)
		}
	}
	return nil
}

// Admit 阻塞直到滑动窗口允许下一次调用，然后记录该调用。
// estimatedTokens <= 0 时使用配置的 TokensPerCall，两者都未给出时返回 INVALID_REQUEST。
// 挂起时长由最早过期条目计算，不做忙等。
func (g *Governor) Admit(ctx context.Context, estimatedTokens int) (*Admission, error) {
	est, err := g.normalize(estimatedTokens)
	if err != nil {
		return nil, err
	}
	if est > g.cfg.TPMLimit {
		return nil, types.NewBudgetExceededError(est, g.cfg.TPMLimit)
	}

	start := g.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g.mu.Lock()
		now := g.clock.Now()
		g.pruneLocked(now)
		wait := g.waitLocked(now, est)
		if wait <= 0 {
			g.seq++
			id := g.seq
			g.log = append(g.log, entry{id: id, at: now, tokens: est})
			state := g.stateLocked(now)
			g.mu.Unlock()

			waited := now.Sub(start)
			g.logger.Debug("call admitted",
				zap.Uint64("admission", id),
				zap.Int("estimated_tokens", est),
				zap.Int("calls_in_window", state.CallsInWindow),
				zap.Int("tokens_in_window", state.TokensInWindow),
				zap.Duration("waited", waited))
			if g.observer != nil {
				g.observer.ObserveAdmission(waited, state)
			}
			return &Admission{governor: g, id: id, estimated: est, at: now}, nil
		}
		g.suspensions++
		g.mu.Unlock()

		g.logger.Info("window full, suspending",
			zap.Duration("wait", wait),
			zap.Int("estimated_tokens", est))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.clock.After(wait):
		}
	}
}

// Status 返回当前窗口状态。
func (g *Governor) Status() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	g.pruneLocked(now)
	return g.stateLocked(now)
}

// Reset 清空窗口（用于测试或运维重置）。
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log = nil
	g.suspensions = 0
	g.logger.Info("governor reset")
}

func (g *Governor) normalize(est int) (int, error) {
	if est > 0 {
		return est, nil
	}
	if g.cfg.TokensPerCall > 0 {
		return g.cfg.TokensPerCall, nil
	}
	return 0, types.NewInvalidRequestError("estimated tokens required when tokens_per_call is 0")
}

func (g *Governor) admissible(calls, tokens, est int) bool {
	return calls+1 <= g.cfg.RPMLimit && tokens+est <= g.cfg.TPMLimit
}

// pruneLocked 移除已滑出窗口的条目: at + window <= now。
func (g *Governor) pruneLocked(now time.Time) {
	i := 0
	for i < len(g.log) && !g.log[i].at.Add(g.cfg.Window).After(now) {
		i++
	}
	if i > 0 {
		g.log = append(g.log[:0], g.log[i:]...)
	}
}

// waitLocked 返回下一次调用可被准入前需要等待的时长，0 表示立即准入。
func (g *Governor) waitLocked(now time.Time, est int) time.Duration {
	calls := len(g.log)
	tokens := 0
	for _, e := range g.log {
		tokens += e.tokens
	}
	if g.admissible(calls, tokens, est) {
		return 0
	}
	for _, e := range g.log {
		calls--
		tokens -= e.tokens
		if g.admissible(calls, tokens, est) {
			return e.at.Add(g.cfg.Window).Sub(now)
		}
	}
	// est <= TPMLimit 保证清空窗口后必然可准入
	return 0
}

func (g *Governor) stateLocked(now time.Time) State {
	st := State{
		CallsInWindow: len(g.log),
		WindowStart:   now.Add(-g.cfg.Window),
		RPMLimit:      g.cfg.RPMLimit,
		TPMLimit:      g.cfg.TPMLimit,
		TokensPerCall: g.cfg.TokensPerCall,
		Capacity:      g.cfg.Capacity(),
		NextSlotIn:    g.waitLocked(now, g.cfg.TokensPerCall),
		Suspensions:   g.suspensions,
	}
	for _, e := range g.log {
		st.TokensInWindow += e.tokens
	}
	if len(g.log) > 0 {
		st.WindowStart = g.log[0].at
	}
	return st
}

func (g *Governor) settle(id uint64, actual int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.log {
		if g.log[i].id == id {
			g.log[i].tokens = actual
			return true
		}
	}
	return false
}

// Admission 是一次已准入的调用。
type Admission struct {
	governor  *Governor
	id        uint64
	estimated int
	at        time.Time
}

// ID 返回准入序号。
func (a *Admission) ID() uint64 { return a.id }

// Estimated 返回准入时登记的 Token 估算值。
func (a *Admission) Estimated() int { return a.estimated }

// AdmittedAt 返回准入时间。
func (a *Admission) AdmittedAt() time.Time { return a.at }

// Settle 用 Provider 返回的真实用量替换估算值，后续准入按真实用量计算。
// actualTokens <= 0 时保留估算值。条目已滑出窗口时无操作。
func (a *Admission) Settle(actualTokens int) {
	if a == nil || actualTokens <= 0 {
		return
	}
	if a.governor.settle(a.id, actualTokens) {
		a.governor.logger.Debug("admission settled",
			zap.Uint64("admission", a.id),
			zap.Int("estimated_tokens", a.estimated),
			zap.Int("actual_tokens", actualTokens))
	}
}
