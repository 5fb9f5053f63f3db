/*
包 llm 提供托管大语言模型的统一接入层。

# 概述

本包屏蔽不同 OpenAI 兼容服务商在鉴权、错误语义上的差异，对上层流水线暴露
一致的 [ChatRequest] / [ChatResponse] 模型。调用失败统一表示为 [Error]，
由 providers.MapUpstreamError 按上游 error.code 与 HTTP 状态码映射而来。

# 子包

  - budget：RPM / TPM 滑动窗口调度器（Governor）
  - providers：OpenAI 兼容协议类型与错误映射
  - providers/openaicompat：通用 OpenAI 兼容客户端
  - providers/groq：Groq 托管推理服务
  - retry：边界层 Provider 重试策略
  - tokenizer：Token 估算（tiktoken + 字符估算回退）
*/
package llm
