/*
包 budget 提供托管推理服务的 RPM / TPM 滑动窗口调度器。

# 概述

Governor 维护一个按准入时间排序的调用日志（时间戳 + Token 数），
每次准入前剔除滑出窗口的条目，并要求：

	calls_in_window + 1 <= rpm_limit
	tokens_in_window + estimate <= tpm_limit

两者任一不满足时，调用方被挂起到最早条目过期为止。因此一个窗口内的
有效上限为 min(rpm_limit, floor(tpm_limit / tokens_per_call))。

单次调用的估算值超过 tpm_limit 是致命配置错误，Preflight 与 NewGovernor
都会立即返回 BUDGET_EXCEEDED，不会重试。

# 使用方式

	gov, err := budget.NewGovernor(budget.Config{RPMLimit: 3, TPMLimit: 6000, TokensPerCall: 630}, logger)
	adm, err := gov.Admit(ctx, 0)
	resp, err := provider.Completion(ctx, req)
	adm.Settle(resp.Usage.TotalTokens)
*/
package budget
