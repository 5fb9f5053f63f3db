// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 StrengthFlow 的 HTTP 层与分析流水线提供 TracerProvider 和 MeterProvider。
// 当遥测功能禁用时，全局 provider 保持 noop，不连接任何外部服务。
package telemetry
