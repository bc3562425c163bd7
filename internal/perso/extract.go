// ABOUTME: Fragment text extraction from streaming chat payloads
// ABOUTME: Ordered extractors tried in sequence; unknown shapes are skipped

package perso

import (
	"encoding/json"
)

// The platform has shipped several payload shapes for chat fragments. Each
// extractor handles one known shape; they are tried in priority order and the
// first match wins. A payload matching no extractor is not an error — the
// caller logs and skips it.

// extractor pulls the textual delta out of one payload shape.
// ok is false when the payload does not carry that shape.
type extractor func(payload map[string]json.RawMessage) (text string, ok bool)

// fragmentExtractors is the fixed priority order for known shapes.
var fragmentExtractors = []extractor{
	stringField("sentence"),
	stringField("content"),
	stringField("text"),
	deltaContent,
	choicesDeltaContent,
}

// ExtractFragment returns the textual delta of a chat stream payload, trying
// each known shape in priority order. ok is false when no shape matches.
func ExtractFragment(data []byte) (string, bool) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false
	}

	for _, extract := range fragmentExtractors {
		if text, ok := extract(payload); ok {
			return text, true
		}
	}
	return "", false
}

// stringField matches a top-level string field: {"<name>": "..."}
func stringField(name string) extractor {
	return func(payload map[string]json.RawMessage) (string, bool) {
		raw, exists := payload[name]
		if !exists {
			return "", false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
}

// deltaContent matches {"delta": {"content": "..."}}
func deltaContent(payload map[string]json.RawMessage) (string, bool) {
	raw, exists := payload["delta"]
	if !exists {
		return "", false
	}
	var delta struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(raw, &delta); err != nil || delta.Content == nil {
		return "", false
	}
	return *delta.Content, true
}

// choicesDeltaContent matches {"choices": [{"delta": {"content": "..."}}]}
func choicesDeltaContent(payload map[string]json.RawMessage) (string, bool) {
	raw, exists := payload["choices"]
	if !exists {
		return "", false
	}
	var choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	}
	if err := json.Unmarshal(raw, &choices); err != nil || len(choices) == 0 {
		return "", false
	}
	if choices[0].Delta.Content == nil {
		return "", false
	}
	return *choices[0].Delta.Content, true
}
