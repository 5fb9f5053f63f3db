/*
包 metrics 提供基于 Prometheus 的指标采集。

Collector 覆盖 HTTP 请求、crew 运行（调用结果、状态转换、回退次数）
以及 budget.Governor 的窗口状态与准入等待。它同时实现 crews.Recorder
与 budget.Observer，在 cmd/strengthflow 中注入流水线与调度器。

指标通过 promauto.With(reg) 注册到调用方给定的 Registerer，测试中
使用独立的 prometheus.NewRegistry() 即可互不干扰。
*/
package metrics
