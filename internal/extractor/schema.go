package extractor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// extractionSchema is sent to the external extractor and used to validate its answer.
var extractionSchema = []byte(`{
  "type": "object",
  "properties": {
    "company_name":    {"type": ["string", "null"], "description": "company or organisation sending the email"},
    "job_title":       {"type": ["string", "null"], "description": "position mentioned"},
    "contact_name":    {"type": ["string", "null"], "description": "recruiter or HR contact"},
    "contact_email":   {"type": ["string", "null"], "description": "contact email address"},
    "location":        {"type": ["string", "null"], "description": "city, region or remote"},
    "date_mentioned":  {"type": ["string", "null"], "description": "important date (interview, start)"},
    "status_keywords": {"type": ["array", "null"], "items": {"type": "string"}},
    "confidence":      {"type": ["number", "null"], "minimum": 0, "maximum": 1}
  }
}`)

var schemaLoader = gojsonschema.NewBytesLoader(extractionSchema)

func validateExtraction(doc map[string]any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("extraction does not match schema: %s", strings.Join(errs, "; "))
	}
	return nil
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return strings.TrimSpace(s)
}

func stringsField(doc map[string]any, key string) []string {
	raw, _ := doc[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func numberField(doc map[string]any, key string) float64 {
	f, _ := doc[key].(float64)
	return f
}
