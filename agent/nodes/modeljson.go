package nodes

import (
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/eduverse/agent-core/agent/contract"
)

// DecodeModelJSON unmarshals a model completion into v. Models frequently
// wrap JSON in markdown fences or prepend prose; this strips fences and
// falls back to the outermost {...} block before giving up.
func DecodeModelJSON(content string, v any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("%w: empty model content", contractx.ErrAdapterRejected)
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: model content is not valid JSON", contractx.ErrAdapterRejected)
}
