/*
Package handlers 提供 StrengthFlow HTTP API 的请求处理器实现。

# 核心类型

  - AnalysisHandler  — 运行优势分析、查询与列出报告、查看预算窗口
  - HealthHandler    — 存活、就绪与版本端点
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、provider、retryable
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码，供中间件使用
  - HealthCheck      — 可插拔健康检查接口，PingCheck 适配存储与缓存

# 错误映射

ToAPIError 把流水线错误转换为 *types.Error：Provider 错误保留原始消息，
BUDGET_EXCEEDED 为 422，context 超时为 504。失败的分析在 data 中
附带 status 为 failed 的报告。

# 并发

相同 subject 与 context 的并发请求经 singleflight 合并为一次运行，
避免重复消耗同一 API Key 的速率预算。
*/
package handlers
