// Package groq 提供 Groq 托管推理服务的 Provider，基于 openaicompat 实现。
package groq
