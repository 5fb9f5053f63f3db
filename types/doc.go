/*
Package types 提供 strengthflow 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、api 等上层模块
提供统一的错误码与 Context 传播工具，以避免循环依赖。

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - EMPTY_RESPONSE / MALFORMED_JSON — 可本地降级的输出错误
  - BUDGET_EXCEEDED — 预检阶段的致命预算错误
  - PROVIDER_ERROR — 上游模型调用失败，原样上抛
  - Context 传播：WithRequestID / WithRunID / WithCategory / WithPrincipal
*/
package types
