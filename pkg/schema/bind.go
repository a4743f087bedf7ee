package schema

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("validation failed")

// ValidationError lists the problems found while binding a payload to a shape.
type ValidationError struct {
	Shape    string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s) for %s: %s", len(e.Problems), e.Shape, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Binding resolves one canonical field from a list of accepted source keys.
// Keys are tried in priority order; the first present one wins.
type Binding struct {
	Field    string
	Keys     []string
	Required bool
	// Default is used when no key is present and the field is optional.
	Default func() any
	// Coerce converts the raw value. A nil Coerce keeps the value as is.
	Coerce func(v any) (any, error)
}

// Bound is implemented by shapes that accept aliased field names.
type Bound interface {
	Bindings() []Binding
}

// Validator is implemented by shapes with checks beyond field presence.
type Validator interface {
	Validate() error
}

// Recoverable is implemented by shapes that can salvage an arbitrary payload
// once strict binding has failed.
type Recoverable interface {
	Recover(payload any) (map[string]any, bool)
}

// Resolve returns the value of the first present key. A key holding a
// non-empty value is preferred over one holding an empty string; null values
// never count as present.
func Resolve(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v, true
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Normalize applies a binding table to obj and returns a new object holding
// canonical keys only. Unbound keys are dropped.
func Normalize(shape string, obj map[string]any, bindings []Binding) (map[string]any, error) {
	out := make(map[string]any, len(bindings))
	var problems []string

	for _, b := range bindings {
		v, ok := Resolve(obj, b.Keys)
		if !ok {
			if b.Required {
				problems = append(problems, b.Field+": field required")
				continue
			}
			if b.Default != nil {
				out[b.Field] = b.Default()
			}
			continue
		}
		if b.Coerce != nil {
			cv, err := b.Coerce(v)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", b.Field, err))
				continue
			}
			v = cv
		}
		out[b.Field] = v
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Shape: shape, Problems: problems}
	}
	return out, nil
}

// ParseStatus maps status words to a boolean. Anything outside the accepted
// set is false.
func ParseStatus(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "complete", "true", "yes", "ok", "done":
		return true
	}
	return false
}

// Stringify renders a decoded JSON value as text. Strings are returned
// unchanged; everything else is encoded as compact JSON.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

var (
	PlanStepBindings = []Binding{
		{Field: "tool", Keys: []string{"tool", "tool_name", "name"}, Required: true, Coerce: coerceToolName},
		{Field: "input", Keys: []string{"input", "arguments", "args", "params"}, Default: emptyObject, Coerce: coerceObject},
	}

	PlanBindings = []Binding{
		{Field: "steps", Keys: []string{"steps", "plan"}, Required: true, Coerce: coerceSteps},
	}

	FinalResponseBindings = []Binding{
		{Field: "answer", Keys: []string{"answer", "summary", "result", "response", "final_answer", "message"}, Required: true, Coerce: coerceText},
		{Field: "data", Keys: []string{"data", "results", "details", "info"}, Default: emptyObject, Coerce: coerceData},
		{Field: "sources", Keys: []string{"sources", "apis_used", "tools_used"}, Default: emptyList, Coerce: coerceSources},
	}

	VerificationBindings = []Binding{
		{Field: "is_complete", Keys: []string{"is_complete", "verification_status", "status", "plan_complete", "completed"}, Required: true, Coerce: coerceStatus},
		{Field: "missing", Keys: []string{"missing", "missing_items"}, Default: emptyList, Coerce: coerceStrings},
		{Field: "suggested_steps", Keys: []string{"suggested_steps", "additional_steps", "next_steps"}, Default: emptyList, Coerce: coerceSteps},
		{Field: "final_response", Keys: []string{"final_response", "response", "final", "final_answer", "answer"}, Coerce: coerceFinal},
	}
)

func emptyObject() any { return map[string]any{} }

func emptyList() any { return []any{} }

func coerceToolName(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string, got %T", v)
	}
	return strings.TrimSpace(s), nil
}

func coerceText(v any) (any, error) {
	return Stringify(v), nil
}

func coerceObject(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	return m, nil
}

func coerceData(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		return map[string]any{"items": t}, nil
	}
	return map[string]any{}, nil
}

func coerceSources(v any) (any, error) {
	list, ok := v.([]any)
	if !ok {
		return []any{}, nil
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		out = append(out, Stringify(item))
	}
	return out, nil
}

func coerceStrings(v any) (any, error) {
	switch t := v.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, Stringify(item))
		}
		return out, nil
	case string:
		return []any{t}, nil
	}
	return []any{}, nil
}

func coerceStatus(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return ParseStatus(t), nil
	case float64:
		return t != 0, nil
	}
	return nil, fmt.Errorf("expected a boolean, got %T", v)
}

func coerceSteps(v any) (any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]any, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("[%d]: expected an object, got %T", i, item)
		}
		step, err := Normalize("PlanStep", obj, PlanStepBindings)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, step)
	}
	return out, nil
}

func coerceFinal(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return map[string]any{"answer": t, "data": map[string]any{}, "sources": []any{}}, nil
	case map[string]any:
		// A nested response may come without an answer. That is left for
		// the caller to repair, so it binds as "" instead of failing.
		out, err := Normalize("FinalResponse", t, lenientFinalBindings())
		if err != nil {
			return nil, err
		}
		if _, has := out["answer"]; !has {
			out["answer"] = ""
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected an object or string, got %T", v)
}

// lenientFinalBindings returns a copy of FinalResponseBindings with every field
// optional.
func lenientFinalBindings() []Binding {
	lenient := make([]Binding, len(FinalResponseBindings))
	copy(lenient, FinalResponseBindings)
	for i := range lenient {
		lenient[i].Required = false
	}
	return lenient
}
