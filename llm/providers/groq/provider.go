package groq

import (
	"github.com/BaSui01/strengthflow/llm/providers"
	"github.com/BaSui01/strengthflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL Groq OpenAI 兼容入口.
	DefaultBaseURL = "https://api.groq.com/openai"
	// DefaultModel 在未配置模型时使用.
	DefaultModel = "llama-3.1-8b-instant"
)

// GroqProvider 实现 Groq 托管推理服务提供者.
// Groq 使用 OpenAI 兼容的 API 格式.
type GroqProvider struct {
	*openaicompat.Provider
}

// NewGroqProvider 创建新的 Groq 提供者实例.
func NewGroqProvider(cfg providers.GroqConfig, logger *zap.Logger) *GroqProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &GroqProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:  "groq",
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			DefaultModel:  cfg.Model,
			FallbackModel: DefaultModel,
			Timeout:       cfg.Timeout,
		}, logger),
	}
}
