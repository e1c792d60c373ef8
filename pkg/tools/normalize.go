package tools

// Models frequently drift from the declared parameter names, especially over
// the ReAct path. Normalization maps well-known aliases onto the canonical
// names before dispatch. It is idempotent: canonical arguments pass through
// untouched.

// reflectionAliases are accepted in place of "reflection", in priority order.
var reflectionAliases = []string{"prompt", "thought", "thinking", "question", "input", "content"}

// Normalize rewrites args for the named tool. The returned map is a copy;
// the input is never mutated.
func Normalize(toolName string, args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}

	switch toolName {
	case ToolSearch:
		normalizeSearch(out)
	case ToolReflect:
		normalizeReflect(out)
	}
	return out
}

func normalizeSearch(args map[string]interface{}) {
	// query → queries
	if _, ok := args["queries"]; !ok {
		if q, ok := args["query"]; ok {
			args["queries"] = q
			delete(args, "query")
		}
	}
	// a bare string becomes a one-element list
	if q, ok := args["queries"].(string); ok {
		args["queries"] = []interface{}{q}
	}
}

func normalizeReflect(args map[string]interface{}) {
	if _, ok := args["reflection"]; ok {
		return
	}
	for _, alias := range reflectionAliases {
		if v, ok := args[alias]; ok {
			args["reflection"] = v
			delete(args, alias)
			return
		}
	}
	// An empty call still records something rather than erroring the turn
	if len(args) == 0 {
		args["reflection"] = "Assess the research progress so far and decide the next step."
	}
}
