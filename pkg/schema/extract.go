package schema

// ExtractFinal builds a best-effort final answer from an arbitrary decoded
// payload. It follows the same alias table as FinalResponse, but a missing
// answer falls back to the string form of the whole payload.
func ExtractFinal(payload any) map[string]any {
	obj, ok := payload.(map[string]any)
	if !ok {
		return map[string]any{
			"answer":  Stringify(payload),
			"data":    map[string]any{},
			"sources": []any{},
		}
	}

	// None of the FinalResponse coercers fail, so the error is always nil.
	out, _ := Normalize("FinalResponse", obj, lenientFinalBindings())
	if _, has := out["answer"]; !has {
		out["answer"] = Stringify(obj)
	}
	return out
}
