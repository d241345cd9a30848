package extraction

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema describes the extractor's reply: {"job": {...}} or {}.
// Nulls are accepted for every field because models emit them for
// "not mentioned".
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "job": {
      "type": ["object", "null"],
      "properties": {
        "clientName":    {"type": ["string", "null"]},
        "clientPhone":   {"type": ["string", "null"]},
        "clientEmail":   {"type": ["string", "null"]},
        "serviceType":   {"type": ["string", "null"]},
        "scheduledDate": {"type": ["string", "null"]},
        "scheduledTime": {"type": ["string", "null"]},
        "location":      {"type": ["string", "null"]},
        "notes":         {"type": ["string", "null"]},
        "urgency":       {"enum": ["low", "medium", "high", null]},
        "confidence":    {"type": ["number", "null"], "minimum": 0, "maximum": 1}
      }
    }
  }
}`

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("job-extraction.json", strings.NewReader(documentSchema)); err != nil {
		return nil, err
	}
	return c.Compile("job-extraction.json")
}
