package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evalforge/evalforge/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// responseSchema is the wire contract every agent response must satisfy
// before its result is allowed near the aggregator.
const responseSchema = `{
	"type": "object",
	"required": ["score", "insights", "confidence", "metadata"],
	"properties": {
		"score": {"type": "number", "minimum": 0, "maximum": 100},
		"insights": {"type": "array", "items": {"type": "string"}},
		"confidence": {"type": "string", "enum": ["high", "medium", "low"]},
		"metadata": {
			"type": "object",
			"required": ["processing_time_ms", "retry_count"],
			"properties": {
				"processing_time_ms": {"type": "integer", "minimum": 0},
				"retry_count": {"type": "integer", "minimum": 0}
			}
		}
	}
}`

var compiledResponseSchema = gojsonschema.NewStringLoader(responseSchema)

// ValidateResponse checks the shape of an agent response against the wire
// contract. A violation is returned as a validation error so the execution
// service surfaces it as a failure rather than a success.
func ValidateResponse(response *models.AgentResponse) error {
	if response == nil {
		return fmt.Errorf("agent response validation failed: response is nil")
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("agent response validation failed: %w", err)
	}

	result, err := gojsonschema.Validate(compiledResponseSchema, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("agent response validation failed: %w", err)
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, violation := range result.Errors() {
			violations = append(violations, violation.String())
		}

		return fmt.Errorf("agent response validation failed: %s", strings.Join(violations, "; "))
	}

	return nil
}
