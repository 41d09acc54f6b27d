package qdrant

// Condition is a single qdrant match clause.
type Condition map[string]any

// Match builds an exact-match condition on a payload key.
func Match(key string, value any) Condition {
	return Condition{
		"key": key,
		"match": map[string]any{
			"value": value,
		},
	}
}

// MatchAny builds an "is one of" condition on a payload key.
func MatchAny(key string, values []string) Condition {
	anyValues := make([]any, len(values))
	for i, v := range values {
		anyValues[i] = v
	}
	return Condition{
		"key": key,
		"match": map[string]any{
			"any": anyValues,
		},
	}
}

// Filter is a set of conditions ANDed together. An empty filter matches
// everything.
type Filter []Condition

func (f Filter) body() map[string]any {
	if len(f) == 0 {
		return nil
	}
	must := make([]any, len(f))
	for i, c := range f {
		must[i] = map[string]any(c)
	}
	return map[string]any{"must": must}
}
