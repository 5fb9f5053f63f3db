package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/strengthflow/types"
)

const (
	// MinStrengths and MaxStrengths bound the strengths list of a valid result.
	MinStrengths = 3
	MaxStrengths = 5
)

// AgentResult is the structured output one strength analyst must produce.
type AgentResult struct {
	AgentName string   `json:"agent_name"`
	Strengths []string `json:"strengths"`
}

// AgentResultSchema returns the schema every AgentResult payload is checked
// against. The same schema is rendered into prompts as guidance.
func AgentResultSchema() *JSONSchema {
	name := NewStringSchema().
		WithMinLength(1).
		WithNotBlank().
		WithDescription("Name of the analyst that produced the result")
	strength := NewStringSchema().
		WithMinLength(1).
		WithNotBlank().
		WithDescription("One concise strength statement")

	return NewObjectSchema().
		WithTitle("AgentResult").
		AddProperty("agent_name", name).
		AddProperty("strengths", NewArraySchema(strength).
			WithMinItems(MinStrengths).
			WithMaxItems(MaxStrengths).
			WithDescription("Between 3 and 5 strengths, most important first")).
		AddRequired("agent_name", "strengths")
}

// ValidationFailure is returned when a payload cannot become an AgentResult.
// Kind is either types.ErrEmptyResponse or types.ErrMalformedJSON.
type ValidationFailure struct {
	Kind   types.ErrorCode `json:"kind"`
	Reason string          `json:"reason"`
	Errors []ParseError    `json:"errors,omitempty"`
}

// Error implements the error interface.
func (f *ValidationFailure) Error() string {
	return fmt.Sprintf("[%s] %s", f.Kind, f.Reason)
}

// Empty reports whether the failure was caused by an empty payload.
func (f *ValidationFailure) Empty() bool {
	return f.Kind == types.ErrEmptyResponse
}

// AsValidationFailure extracts a *ValidationFailure from an error chain.
func AsValidationFailure(err error) (*ValidationFailure, bool) {
	var f *ValidationFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func emptyFailure(reason string) *ValidationFailure {
	return &ValidationFailure{Kind: types.ErrEmptyResponse, Reason: reason}
}

func malformedFailure(reason string, errs ...ParseError) *ValidationFailure {
	return &ValidationFailure{Kind: types.ErrMalformedJSON, Reason: reason, Errors: errs}
}

// Validator turns raw LLM output into an AgentResult.
type Validator struct {
	schema          *JSONSchema
	schemaValidator *SchemaValidator
}

// NewValidator creates a Validator for the AgentResult schema.
func NewValidator() *Validator {
	return &Validator{
		schema:          AgentResultSchema(),
		schemaValidator: NewSchemaValidator(),
	}
}

// Schema returns the schema used by the validator.
func (v *Validator) Schema() *JSONSchema {
	return v.schema
}

// Validate accepts nil, string, []byte, json.RawMessage, map[string]any,
// AgentResult and *AgentResult. All failures are *ValidationFailure; values of
// a valid payload are returned unchanged.
func (v *Validator) Validate(payload any) (*AgentResult, error) {
	obj, failure := v.decode(payload)
	if failure != nil {
		return nil, failure
	}

	if err := v.schemaValidator.ValidateValue(obj, v.schema); err != nil {
		var ve *ValidationErrors
		if errors.As(err, &ve) {
			return nil, malformedFailure(ve.Error(), ve.Errors...)
		}
		return nil, malformedFailure(err.Error())
	}

	return toAgentResult(obj), nil
}

func (v *Validator) decode(payload any) (map[string]any, *ValidationFailure) {
	switch p := payload.(type) {
	case nil:
		return nil, emptyFailure("payload is null")
	case string:
		return decodeText(p)
	case []byte:
		return decodeText(string(p))
	case json.RawMessage:
		return decodeText(string(p))
	case map[string]any:
		if p == nil {
			return nil, emptyFailure("payload is null")
		}
		return normalizeObject(p)
	case *AgentResult:
		if p == nil {
			return nil, emptyFailure("payload is null")
		}
		return resultToMap(*p), nil
	case AgentResult:
		return resultToMap(p), nil
	default:
		return nil, malformedFailure(fmt.Sprintf("unsupported payload type %T", payload))
	}
}

func decodeText(text string) (map[string]any, *ValidationFailure) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, emptyFailure("response is empty")
	}

	value, err := unmarshalAny(trimmed)
	if err != nil {
		extracted := ExtractJSON(trimmed)
		if extracted == trimmed {
			return nil, malformedFailure(fmt.Sprintf("invalid JSON: %v", err))
		}
		value, err = unmarshalAny(extracted)
		if err != nil {
			return nil, malformedFailure(fmt.Sprintf("invalid JSON: %v", err))
		}
	} else if s, ok := value.(string); ok && strings.Contains(s, "{") {
		// 对象被编码成 JSON 字符串时，对其内容做同一次提取
		if inner, innerErr := unmarshalAny(ExtractJSON(s)); innerErr == nil {
			if obj, ok := inner.(map[string]any); ok {
				value = obj
			}
		}
	}

	switch v := value.(type) {
	case nil:
		return nil, emptyFailure("response is JSON null")
	case map[string]any:
		return v, nil
	default:
		return nil, malformedFailure(fmt.Sprintf("expected JSON object, got %s", jsonKind(value)))
	}
}

// normalizeObject round-trips a Go-built object through JSON so typed values
// such as []string reach the schema checks in their decoded form.
func normalizeObject(obj map[string]any) (map[string]any, *ValidationFailure) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, malformedFailure(fmt.Sprintf("payload is not JSON-encodable: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, malformedFailure(fmt.Sprintf("invalid JSON: %v", err))
	}
	return out, nil
}

func unmarshalAny(text string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, err
	}
	return value, nil
}

// resultToMap mirrors the JSON decoding of an AgentResult so typed values go
// through the same schema checks as raw text.
func resultToMap(r AgentResult) map[string]any {
	var strengths any
	if r.Strengths != nil {
		items := make([]any, len(r.Strengths))
		for i, s := range r.Strengths {
			items[i] = s
		}
		strengths = items
	}
	return map[string]any{
		"agent_name": r.AgentName,
		"strengths":  strengths,
	}
}

// toAgentResult assumes obj already passed schema validation.
func toAgentResult(obj map[string]any) *AgentResult {
	name, _ := obj["agent_name"].(string)
	items, _ := obj["strengths"].([]any)
	strengths := make([]string, 0, len(items))
	for _, item := range items {
		s, _ := item.(string)
		strengths = append(strengths, s)
	}
	return &AgentResult{AgentName: name, Strengths: strengths}
}
