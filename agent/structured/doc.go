/*
包 structured 校验 strength analyst 的结构化输出。

# 概述

LLM 的 JSON mode 只是优化提示，不是契约。本包中的 Validator 是唯一的
权威校验点：把原始响应（文本或已解析对象）转换为 AgentResult，或返回
*ValidationFailure。

# 主要类型

  - AgentResult — {agent_name, strengths[3..5]}
  - Validator — 解析、一次性 JSON 提取恢复、Schema 校验
  - ValidationFailure — Kind 为 EMPTY_RESPONSE 或 MALFORMED_JSON
  - JSONSchema / SchemaValidator — 表达 AgentResult 契约所需的 Schema 子集
  - ParseError / ValidationErrors — 字段级错误

# 典型用法

	v := structured.NewValidator()
	result, err := v.Validate(resp.Choices[0].Message.Content)
	if f, ok := structured.AsValidationFailure(err); ok {
		// 交给 crews.ComposeFallback
	}
*/
package structured
