// Package retry 提供 Provider 调用边界层的指数退避重试。
// 每次重试都由调用方重新走一遍预算准入，重试本身不绕过 RPM/TPM 限制。
package retry
