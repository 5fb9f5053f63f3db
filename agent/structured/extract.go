package structured

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON pulls an embedded JSON object out of surrounding text.
// It prefers a markdown code fence, then the object that starts at the first
// '{'; text after that object is ignored. If no complete object starts there,
// the first-to-last brace span is returned so the caller reports the parse
// error. When nothing looks like an object the trimmed input is returned as-is.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if m := fencedJSON.FindStringSubmatch(text); len(m) > 1 {
		inner := strings.TrimSpace(m[1])
		if strings.HasPrefix(inner, "{") {
			return inner
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return text
	}
	if obj, ok := leadingObject(text[start:]); ok {
		return obj
	}
	if end := strings.LastIndex(text, "}"); end > start {
		return text[start : end+1]
	}
	return text
}

// leadingObject decodes the first JSON value of text, which starts with '{'.
func leadingObject(text string) (string, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(text)).Decode(&raw); err != nil {
		return "", false
	}
	return string(raw), true
}
