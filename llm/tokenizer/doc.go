// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与 CJK 估算器，用于在调用前估算每次 agent 调用占用的 TPM 额度。
package tokenizer
