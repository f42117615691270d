package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/example/ecoclassify/internal/domain"
)

// ParseRawAnalysis extracts a RawAnalysis from model output. Output wrapped in
// markdown fences or surrounded by prose is tolerated, and broken JSON gets one
// repair attempt. Optional fields of the wrong type are dropped. Only a missing
// category makes the response malformed.
func ParseRawAnalysis(content string) (*domain.RawAnalysis, error) {
	body := extractObject(content)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}

	fields, err := decodeObject(body)
	if err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		fields, err = decodeObject(repaired)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	category, ok := fields["category"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing category", ErrMalformedResponse)
	}

	raw := &domain.RawAnalysis{
		Category:        category,
		Severity:        fields["severity"],
		Scale:           stringField(fields, "scale"),
		Justification:   firstString(fields, "justification", "reasoning"),
		Description:     stringField(fields, "description"),
		Objects:         stringList(fields, "objects", "objects_detected"),
		Environment:     firstString(fields, "environment", "environment_type"),
		IndoorHousehold: boolField(fields, "indoor_household") || boolField(fields, "is_indoor_household"),
	}
	if n, ok := fields["confidence"].(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			raw.Confidence = &f
		}
	}
	return raw, nil
}

func extractObject(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		// Truncated output: hand the tail to the repair pass.
		return s[start:]
	}
	return s[start : end+1]
}

func decodeObject(body string) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("response is not an object")
	}
	return fields, nil
}

func stringField(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

func firstString(fields map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := stringField(fields, key); s != "" {
			return s
		}
	}
	return ""
}

func boolField(fields map[string]interface{}, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

func stringList(fields map[string]interface{}, keys ...string) []string {
	for _, key := range keys {
		items, ok := fields[key].([]interface{})
		if !ok {
			continue
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
