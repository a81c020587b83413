package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	attemptKey        contextKey = "attempt"
	taskInstanceIDKey contextKey = "task_instance_id"
	taskTypeKey       contextKey = "task_type"
	pipelineIDKey     contextKey = "pipeline_id"
)

// WithAttempt 设置当前 Attempt 序号（从 1 开始）
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

// Attempt 获取当前 Attempt 序号，未设置时返回 1
func Attempt(ctx context.Context) int {
	v, ok := ctx.Value(attemptKey).(int)
	if !ok || v < 1 {
		return 1
	}
	return v
}

// WithTaskInstanceID 设置任务实例 ID
func WithTaskInstanceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskInstanceIDKey, id)
}

// TaskInstanceID 获取任务实例 ID
func TaskInstanceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(taskInstanceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTaskType 设置任务类型
func WithTaskType(ctx context.Context, taskType string) context.Context {
	return context.WithValue(ctx, taskTypeKey, taskType)
}

// TaskType 获取任务类型
func TaskType(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(taskTypeKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithPipelineID 设置流水线实例 ID
func WithPipelineID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, pipelineIDKey, id)
}

// PipelineID 获取流水线实例 ID
func PipelineID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(pipelineIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
