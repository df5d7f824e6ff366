package slot

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Default codecs. Stored values are strings; these map common Go types
// to a compact text form and fall back to JSON for everything else.

// DefaultSerializer returns the serializer used when none is set.
func DefaultSerializer[T any]() func(T) string {
	return func(v T) string {
		switch val := any(v).(type) {
		case string:
			return val
		case int, int64, int32:
			return fmt.Sprintf("%d", val)
		case float64, float32:
			return fmt.Sprintf("%g", val)
		case bool:
			return strconv.FormatBool(val)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return ""
			}
			return string(b)
		}
	}
}

// DefaultDeserializer returns the deserializer used when none is set.
// Unparseable input yields fallback rather than an error, so a slot
// reading malformed storage lands on its default value.
func DefaultDeserializer[T any](fallback T) func(string) T {
	return func(s string) T {
		var probe any = fallback

		switch probe.(type) {
		case string:
			return any(s).(T)
		case int:
			i, err := strconv.Atoi(s)
			if err != nil {
				return fallback
			}
			return any(i).(T)
		case int64:
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fallback
			}
			return any(i).(T)
		case int32:
			i, err := strconv.ParseInt(s, 10, 32)
			if err != nil {
				return fallback
			}
			return any(int32(i)).(T)
		case float64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fallback
			}
			return any(f).(T)
		case float32:
			f, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return fallback
			}
			return any(float32(f)).(T)
		case bool:
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fallback
			}
			return any(b).(T)
		default:
			var val T
			if err := json.Unmarshal([]byte(s), &val); err == nil {
				return val
			}
			return fallback
		}
	}
}
