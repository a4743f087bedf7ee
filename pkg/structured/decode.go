package structured

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"opsagent/pkg/schema"
)

// parsePayload strips markdown fences and decodes the reply. An empty reply
// decodes as an empty object.
func parsePayload(raw string) (any, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
	}
	if text == "" {
		text = "{}"
	}

	var payload any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// decode binds payload to T: alias normalization, strict decode, Validate.
func decode[T any](shape string, payload any) (T, any, error) {
	var zero, out T

	data := payload
	if bound, ok := any(zero).(schema.Bound); ok {
		obj, isObj := payload.(map[string]any)
		if !isObj {
			return zero, nil, &schema.ValidationError{
				Shape:    shape,
				Problems: []string{fmt.Sprintf("expected an object, got %s", kindOf(payload))},
			}
		}
		normalized, err := schema.Normalize(shape, obj, bound.Bindings())
		if err != nil {
			return zero, nil, err
		}
		data = normalized
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return zero, nil, &schema.ValidationError{Shape: shape, Problems: []string{err.Error()}}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, nil, &schema.ValidationError{Shape: shape, Problems: []string{err.Error()}}
	}

	if v, ok := any(out).(schema.Validator); ok {
		if err := v.Validate(); err != nil {
			return zero, nil, err
		}
	} else if v, ok := any(&out).(schema.Validator); ok {
		if err := v.Validate(); err != nil {
			return zero, nil, err
		}
	}
	return out, data, nil
}

// recoverPayload returns a second chance payload for T, if T has one.
func recoverPayload[T any](payload any) (any, bool) {
	var zero T
	if list, ok := payload.([]any); ok && hasJSONField[T]("steps") {
		return map[string]any{"steps": list}, true
	}
	if r, ok := any(zero).(schema.Recoverable); ok {
		return r.Recover(payload)
	}
	return nil, false
}

func hasJSONField[T any](name string) bool {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		key, _, _ := strings.Cut(tag, ",")
		if key == "" {
			key = f.Name
		}
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}

func shapeName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

func kindOf(v any) string {
	switch v.(type) {
	case []any:
		return "a list"
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
