/*
包 crews 运行 strength analyst 团队并聚合结果。

# 概述

每个 Member 对应一个分析类别（competitive、market、product、operational）。
Crew.Run 依次为每个成员发起一次 LLM 调用，调用前经过 budget.Governor 准入，
返回后交给 structured.Validator 校验；无法使用的输出由 ComposeFallback
替换为占位结果，因此聚合结果中每个类别都有条目。

# 调用状态机

	PENDING -> IN_FLIGHT -> VALIDATING -> DONE
	                                   -> FALLBACK -> DONE

重试时 IN_FLIGHT 回到 PENDING 重新准入；中止运行的调用进入 FAILED。

# 错误策略

  - EMPTY_RESPONSE / MALFORMED_JSON：本地回退，运行继续
  - BUDGET_EXCEEDED：预检阶段致命失败，不重试
  - Provider 错误与 context 取消：运行失败，错误原样返回

# 典型用法

	crew, _ := crews.NewCrew(cfg, provider, governor, logger)
	report, err := crew.Run(ctx, crews.Subject{Name: "Acme"})
*/
package crews
