package monitor

import "context"

type contextKey string

const taskIDKey contextKey = "task_id"

// WithTaskID attaches a task identifier used to correlate log lines.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFrom returns the task identifier stored in ctx, or "".
func TaskIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(taskIDKey).(string)
	return id
}
