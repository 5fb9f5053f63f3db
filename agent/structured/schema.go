// Package structured provides the JSON Schema subset used to describe and
// validate agent output.
package structured

import "encoding/json"

// SchemaType represents JSON Schema types.
type SchemaType string

const (
	TypeString SchemaType = "string"
	TypeObject SchemaType = "object"
	TypeArray  SchemaType = "array"
)

// JSONSchema is the subset of JSON Schema needed for the agent result
// contract: objects with required properties, bounded arrays and strings.
type JSONSchema struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Type        SchemaType `json:"type,omitempty"`

	// Object properties
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`

	// Array items
	Items    *JSONSchema `json:"items,omitempty"`
	MinItems *int        `json:"minItems,omitempty"`
	MaxItems *int        `json:"maxItems,omitempty"`

	// String constraints
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	// NotBlank rejects strings that are empty after trimming whitespace.
	NotBlank bool `json:"x-notBlank,omitempty"`
}

// NewObjectSchema creates an object schema.
func NewObjectSchema() *JSONSchema {
	return &JSONSchema{
		Type:       TypeObject,
		Properties: make(map[string]*JSONSchema),
	}
}

// NewArraySchema creates an array schema with the given item schema.
func NewArraySchema(items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: TypeArray, Items: items}
}

// NewStringSchema creates a string schema.
func NewStringSchema() *JSONSchema {
	return &JSONSchema{Type: TypeString}
}

func (s *JSONSchema) WithTitle(title string) *JSONSchema {
	s.Title = title
	return s
}

func (s *JSONSchema) WithDescription(desc string) *JSONSchema {
	s.Description = desc
	return s
}

// AddProperty adds a property to an object schema.
func (s *JSONSchema) AddProperty(name string, prop *JSONSchema) *JSONSchema {
	if s.Properties == nil {
		s.Properties = make(map[string]*JSONSchema)
	}
	s.Properties[name] = prop
	return s
}

// AddRequired marks properties as required.
func (s *JSONSchema) AddRequired(names ...string) *JSONSchema {
	s.Required = append(s.Required, names...)
	return s
}

func (s *JSONSchema) WithAdditionalProperties(allowed bool) *JSONSchema {
	s.AdditionalProperties = &allowed
	return s
}

func (s *JSONSchema) WithMinItems(n int) *JSONSchema {
	s.MinItems = &n
	return s
}

func (s *JSONSchema) WithMaxItems(n int) *JSONSchema {
	s.MaxItems = &n
	return s
}

func (s *JSONSchema) WithMinLength(n int) *JSONSchema {
	s.MinLength = &n
	return s
}

func (s *JSONSchema) WithMaxLength(n int) *JSONSchema {
	s.MaxLength = &n
	return s
}

func (s *JSONSchema) WithPattern(pattern string) *JSONSchema {
	s.Pattern = pattern
	return s
}

func (s *JSONSchema) WithNotBlank() *JSONSchema {
	s.NotBlank = true
	return s
}

// IsRequired reports whether name is a required property.
func (s *JSONSchema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// ToJSON serializes the schema.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// ToJSONIndent serializes the schema with indentation, for prompts.
func (s *JSONSchema) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
