// Package api 定义 StrengthFlow HTTP API 的请求与响应 DTO。
//
// # API Overview
//
//   - POST /api/v1/analyses       运行一次优势分析，返回并保存报告
//   - GET  /api/v1/analyses       列出最近的报告
//   - GET  /api/v1/analyses/{id}  查询已保存的报告
//   - GET  /api/v1/budget         当前速率与 Token 预算窗口
//   - GET  /health, /healthz, /ready, /version
//
// # Authentication
//
// 配置了 API Key 时通过 X-API-Key 头认证；配置了 JWT 密钥时
// 也接受 Authorization: Bearer <token>。
package api
