package structured

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// ParseError represents a validation error with field path.
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors struct {
	Errors []ParseError `json:"errors"`
}

// Error implements the error interface.
func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// SchemaValidator validates decoded JSON values against a JSONSchema.
type SchemaValidator struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// NewSchemaValidator creates a SchemaValidator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{patterns: make(map[string]*regexp.Regexp)}
}

// Validate decodes data and validates it against schema.
func (v *SchemaValidator) Validate(data []byte, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return &ValidationErrors{
			Errors: []ParseError{{Path: "", Message: fmt.Sprintf("invalid JSON: %v", err)}},
		}
	}
	return v.ValidateValue(value, schema)
}

// ValidateValue validates an already decoded value (map[string]any, []any, string...).
func (v *SchemaValidator) ValidateValue(value any, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}
	var errs []ParseError
	v.validateValue(value, schema, "", &errs)
	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

func (v *SchemaValidator) validateValue(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	switch schema.Type {
	case TypeString:
		v.validateString(value, schema, path, errs)
	case TypeObject:
		v.validateObject(value, schema, path, errs)
	case TypeArray:
		v.validateArray(value, schema, path, errs)
	}
}

func (v *SchemaValidator) validateString(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	str, ok := value.(string)
	if !ok {
		*errs = append(*errs, ParseError{
			Path:    path,
			Message: fmt.Sprintf("expected string, got %s", jsonKind(value)),
		})
		return
	}

	n := utf8.RuneCountInString(str)
	if schema.MinLength != nil && n < *schema.MinLength {
		*errs = append(*errs, ParseError{
			Path:    path,
			Message: fmt.Sprintf("string length %d is less than minimum %d", n, *schema.MinLength),
		})
	}
	if schema.MaxLength != nil && n > *schema.MaxLength {
		*errs = append(*errs, ParseError{
			Path:    path,
			Message: fmt.Sprintf("string length %d exceeds maximum %d", n, *schema.MaxLength),
		})
	}
	if schema.NotBlank && strings.TrimSpace(str) == "" {
		*errs = append(*errs, ParseError{
			Path:    path,
			Message: "string must not be blank",
		})
	}
	if schema.Pattern != "" {
		re, err := v.compile(schema.Pattern)
		if err != nil {
			*errs = append(*errs, ParseError{
				Path:    path,
				Message: fmt.Sprintf("invalid pattern %q: %v", schema.Pattern, err),
			})
		} else if !re.MatchString(str) {
			*errs = append(*errs, ParseError{
				Path:    path,
				Message: fmt.Sprintf("string does not match pattern %q", schema.Pattern),
			})
		}
	}
}

func (v *SchemaValidator) validateObject(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	obj, ok := value.(map[string]any)
	if !ok {
		*errs = append(*errs, ParseError{
			Path:    path,
			Message: fmt.Sprintf("expected object, got %s", jsonKind(value)),
		})
		return
	}

	for _, req := range schema.Required {
		val, exists := obj[req]
		if !exists {
			*errs = append(*errs, ParseError{
				Path:    joinPath(path, req),
				Message: "required field is missing",
			})
		} else if val == nil {
			*errs = append(*errs, ParseError{
				Path:    joinPath(path, req),
				Message: "required field must not be null",
			})
		}
	}

	for name, propValue := range obj {
		propPath := joinPath(path, name)
		propSchema, ok := schema.Properties[name]
		if !ok {
			if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
				*errs = append(*errs, ParseError{Path: propPath, Message: "additional property not allowed"})
			}
			continue
		}
		if propValue == nil && schema.IsRequired(name) {
			continue // already reported
		}
		v.validateValue(propValue, propSchema, propPath, errs)
	}
}

func (v *SchemaValidator) validateArray(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	arr, ok := value.([]any)
	if !ok {
		*errs = append(*errs, ParseError{
			Path:    path,
			Message: fmt.Sprintf("expected array, got %s", jsonKind(value)),
		})
		return
	}

	if schema.MinItems != nil && len(arr) < *schema.MinItems {
		*errs = append(*errs, ParseError{
			Path:    path,
			Message: fmt.Sprintf("array has %d items, minimum is %d", len(arr), *schema.MinItems),
		})
	}
	if schema.MaxItems != nil && len(arr) > *schema.MaxItems {
		*errs = append(*errs, ParseError{
			Path:    path,
			Message: fmt.Sprintf("array has %d items, maximum is %d", len(arr), *schema.MaxItems),
		})
	}

	if schema.Items != nil {
		for i, item := range arr {
			v.validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", path, i), errs)
		}
	}
}

func (v *SchemaValidator) compile(pattern string) (*regexp.Regexp, error) {
	v.mu.RLock()
	re, ok := v.patterns[pattern]
	v.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.patterns[pattern] = re
	v.mu.Unlock()
	return re, nil
}

func joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}

// jsonKind names the JSON type of a decoded value.
func jsonKind(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
