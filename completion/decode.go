package completion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Decode validates content against schema and unmarshals it into T. Any failure
// is reported as ErrMalformedResponse.
func Decode[T any](content string, schema *jsonschema.Schema) (T, error) {
	var out T

	content = strings.TrimSpace(content)
	if content == "" {
		return out, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var instance any
	if err := json.Unmarshal([]byte(content), &instance); err != nil {
		return out, fmt.Errorf("%w: not valid JSON: %v", ErrMalformedResponse, err)
	}

	if schema != nil {
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return out, fmt.Errorf("failed to resolve output schema: %w", err)
		}
		if err := resolved.Validate(instance); err != nil {
			return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}
