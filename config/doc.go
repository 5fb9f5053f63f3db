// Package config 提供 StrengthFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 最后运行注册的验证器。PORT 与 GROQ_API_KEY 两个平台变量
// 在前缀变量之后生效，用于兼容托管平台的约定。
package config
