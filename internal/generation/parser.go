package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var errNoJSON = errors.New("no JSON object in model output")

const keywordsSchema = `{
  "type": "object",
  "required": ["keywords"],
  "properties": {
    "keywords": {"type": "array", "items": {"type": "string"}}
  }
}`

const qualitySchema = `{
  "type": "object",
  "required": ["score"],
  "properties": {
    "score": {"type": "number"},
    "tone": {"type": "number"},
    "emotion": {"type": "number"},
    "length": {"type": "number"},
    "naturalness": {"type": "number"},
    "comment": {"type": "string"}
  }
}`

const sceneSchema = `{
  "type": "object",
  "required": ["scene"],
  "properties": {
    "scene": {"type": "string", "minLength": 1},
    "elements": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	keywordsValidator = mustSchema(keywordsSchema)
	qualityValidator  = mustSchema(qualitySchema)
	sceneValidator    = mustSchema(sceneSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return schema
}

// stripFences removes a surrounding Markdown code fence, if any.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// drop the info string (e.g. "json")
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// extractObject locates the JSON object in a model answer. Models often wrap
// the object in prose or code fences.
func extractObject(text string) (string, error) {
	cleaned := stripFences(text)
	if json.Valid([]byte(cleaned)) && strings.HasPrefix(cleaned, "{") {
		return cleaned, nil
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end <= start {
		return "", errNoJSON
	}
	candidate := cleaned[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", errNoJSON
	}
	return candidate, nil
}

// decodeValidated extracts the JSON object from text, validates it against
// schema and decodes it into v.
func decodeValidated(text string, schema *gojsonschema.Schema, v any) error {
	raw, err := extractObject(text)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("model output does not match schema: %s", strings.Join(msgs, "; "))
	}

	return json.Unmarshal([]byte(raw), v)
}
