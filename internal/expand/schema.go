package expand

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"storyforge/internal/services"
)

// ResultSchema is the JSON schema a provider response must satisfy.
const ResultSchema = `{
  "type": "object",
  "required": ["fullScript", "videoPrompt", "durationEstimate"],
  "properties": {
    "fullScript": {"type": "string", "minLength": 1},
    "sceneDescription": {"type": "string"},
    "videoPrompt": {"type": "string", "minLength": 1},
    "visualNotes": {"type": "string"},
    "durationEstimate": {"type": "number", "minimum": 0, "maximum": 120},
    "characters": {"type": "array", "items": {"type": "string"}},
    "locations": {"type": "array", "items": {"type": "string"}},
    "mood": {"type": "string"}
  }
}`

var resultSchema = gojsonschema.NewStringLoader(ResultSchema)

// ParseResult validates raw provider JSON against ResultSchema and decodes it.
// A response that breaks the schema is a validation error; retrying the same
// prompt is allowed to produce a better answer, so callers decide whether to
// retry.
func ParseResult(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	report, err := gojsonschema.Validate(resultSchema, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "expand", "parse result", "response is not JSON", err)
	}
	if !report.Valid() {
		problems := make([]string, 0, len(report.Errors()))
		for _, e := range report.Errors() {
			problems = append(problems, e.String())
		}
		return Result{}, services.Wrap(services.ErrTransient, "expand", "validate result",
			"response does not match schema: "+strings.Join(problems, "; "), nil)
	}
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{}, fmt.Errorf("decode expansion result: %w", err)
	}
	result.FullScript = strings.TrimSpace(result.FullScript)
	result.VideoPrompt = strings.TrimSpace(result.VideoPrompt)
	return result, nil
}
