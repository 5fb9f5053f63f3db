package tokenizer

import "strings"

// Tokenizer是统一的代号计数界面.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []Message) (int, error)

	// Name 返回分词器的名称.
	Name() string
}

// Message 是一个轻量级消息结构, 避免与 llm 包的循环依赖。
type Message struct {
	Role    string
	Content string
}

const (
	perMessageOverhead      = 4
	conversationEndOverhead = 3
)

// ForModel 为模型选择分词器: 已知模型族使用 tiktoken,
// 编码数据不可用时自动回退到字符估算器.
func ForModel(model string) Tokenizer {
	estimator := NewEstimatorTokenizer(model)
	if _, ok := lookupEncoding(strings.ToLower(model)); !ok {
		return estimator
	}
	return &fallbackTokenizer{
		primary:   NewTiktokenTokenizer(model),
		secondary: estimator,
	}
}

// EstimateCall 估算一次调用占用的 TPM 额度: 提示词 token 数 + max_tokens 上限.
func EstimateCall(t Tokenizer, messages []Message, maxTokens int) (int, error) {
	prompt, err := t.CountMessages(messages)
	if err != nil {
		return 0, err
	}
	if maxTokens < 0 {
		maxTokens = 0
	}
	return prompt + maxTokens, nil
}

type fallbackTokenizer struct {
	primary   Tokenizer
	secondary Tokenizer
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.secondary.CountTokens(text)
}

func (f *fallbackTokenizer) CountMessages(messages []Message) (int, error) {
	if n, err := f.primary.CountMessages(messages); err == nil {
		return n, nil
	}
	return f.secondary.CountMessages(messages)
}

func (f *fallbackTokenizer) Name() string {
	return f.primary.Name() + "|" + f.secondary.Name()
}
