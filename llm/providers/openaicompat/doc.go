// Package openaicompat 提供 OpenAI 兼容推理服务的通用客户端实现，
// 具体服务商（如 Groq）通过嵌入 Provider 并覆盖名称、BaseURL、默认模型接入。
package openaicompat
