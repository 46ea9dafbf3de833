package room

import "encoding/json"

// ParseValue reads raw as a JSON literal and falls back to the raw string
// when it is not one, so `5` is a number, `"5"` and `five` are strings.
func ParseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// FormatValue is the inverse used when showing a scalar in an edit field.
func FormatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}
