package telemetry

import (
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	maxAttrString = 512
	maxAttrSlice  = 32
)

// Key fragments that may carry complainant content or credentials.
var unsafeKeyParts = []string{
	"incident",
	"text",
	"content",
	"name",
	"preview",
	"message",
	"sender",
	"email",
	"phone",
	"authorization",
	"api_key",
	"token",
	"dsn",
}

func unsafeKey(k string) bool {
	lk := strings.ToLower(k)
	return slices.ContainsFunc(unsafeKeyParts, func(part string) bool {
		return strings.Contains(lk, part)
	})
}

// SafeAttributes converts values to span attributes in key order. Keys that
// look like content or secrets are dropped, as are long strings and
// unsupported types. Slices are capped.
func SafeAttributes(values map[string]any) []attribute.KeyValue {
	if len(values) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(values))
	for _, k := range slices.Sorted(maps.Keys(values)) {
		if unsafeKey(k) {
			continue
		}
		if kv, ok := toAttribute(k, values[k]); ok {
			attrs = append(attrs, kv)
		}
	}
	return attrs
}

func toAttribute(k string, v any) (attribute.KeyValue, bool) {
	switch val := v.(type) {
	case string:
		if len(val) > maxAttrString {
			return attribute.KeyValue{}, false
		}
		return attribute.String(k, val), true
	case bool:
		return attribute.Bool(k, val), true
	case int:
		return attribute.Int(k, val), true
	case int64:
		return attribute.Int64(k, val), true
	case float64:
		return attribute.Float64(k, val), true
	case []string:
		return attribute.StringSlice(k, capSlice(val)), true
	case []int:
		return attribute.IntSlice(k, capSlice(val)), true
	case []float64:
		return attribute.Float64Slice(k, capSlice(val)), true
	default:
		return attribute.KeyValue{}, false
	}
}

func capSlice[T any](in []T) []T {
	if len(in) <= maxAttrSlice {
		return in
	}
	return in[:maxAttrSlice]
}
