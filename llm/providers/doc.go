/*
包 providers 提供 OpenAI 兼容推理服务的公共基础层。

  - BaseProviderConfig / GroqConfig — Provider 配置（APIKey、BaseURL、Model、Timeout）
  - OpenAICompat* 系列 — OpenAI 兼容 API 的请求/响应结构体，含 response_format
  - MapHTTPError — 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ReadUpstreamError / MapUpstreamError — 解析错误体，按 error.code（rate_limit_exceeded、insufficient_quota 等）分类，未知 code 回退到状态码
  - ReadErrorMessage — 解析上游错误体为原文消息
  - ConvertMessagesToOpenAI / ToLLMChatResponse — 消息与响应格式转换
  - ChooseModel — 按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
