package structured

import (
	"fmt"
	"strings"
)

// BuildOutputInstructions renders schema guidance appended to an agent prompt.
// The guidance is advisory; Validator is the only gate that decides validity.
func BuildOutputInstructions(schema *JSONSchema) (string, error) {
	schemaJSON, err := schema.ToJSONIndent()
	if err != nil {
		return "", fmt.Errorf("failed to serialize schema: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Respond with a single JSON object that matches this JSON Schema:\n\n")
	sb.WriteString("```json\n")
	sb.Write(schemaJSON)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Output only the JSON object. Do not add explanations or markdown.")
	return sb.String(), nil
}
