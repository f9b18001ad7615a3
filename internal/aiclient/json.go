package aiclient

import "encoding/json"

// ExtractJSONObject returns the first well-formed JSON object substring in
// raw. Models frequently wrap their JSON in prose or markdown fences, so the
// scanner walks brace depth while respecting string literals, then verifies
// each candidate actually parses.
func ExtractJSONObject(raw string) (string, bool) {
	for start := 0; start < len(raw); start++ {
		if raw[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(raw); i++ {
			ch := raw[i]
			switch {
			case escaped:
				escaped = false
			case ch == '\\' && inString:
				escaped = true
			case ch == '"':
				inString = !inString
			case inString:
			case ch == '{':
				depth++
			case ch == '}':
				depth--
				if depth == 0 {
					candidate := raw[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					// Balanced but invalid; resume scanning after this brace.
					i = len(raw)
				}
			}
		}
	}
	return "", false
}
