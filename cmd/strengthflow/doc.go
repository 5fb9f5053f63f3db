/*
Package main 提供 StrengthFlow 服务端程序入口。

# 概述

cmd/strengthflow 装配推理服务客户端、预算调度器、分析 crew 与报告存储，
并通过 HTTP API 或单次命令行运行对外提供优势分析。

# 核心类型

  - App         — 按配置装配的组件集合，serve 与 run 共用
  - Server      — API 与 Metrics 双端口服务，负责路由、中间件与优雅关闭
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、run（报告 JSON 输出到 stdout）、migrate、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、Metrics、SecurityHeaders、
    RequestLogger、CORS，按配置启用 RateLimiter、APIKeyAuth、JWTAuth
  - Metrics：metrics_port > 0 时独立端口暴露 /metrics，否则挂在 API 上
  - 平台变量：PORT 覆盖 HTTP 端口，GROQ_API_KEY 补全推理服务密钥
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
