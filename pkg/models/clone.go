package models

// CloneMap copies m along with every nested map and slice, so the copy shares no
// mutable state with m. Other values are copied as is.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	case []string:
		if val == nil {
			return val
		}
		return append([]string(nil), val...)
	default:
		return v
	}
}
