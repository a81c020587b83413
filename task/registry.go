package task

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Factory 构造一个全新的适配器实例。每个 Attempt 调用一次，
// 绝不跨 Attempt 复用实例。
type Factory func() Adapter

// Registry 按任务类型注册适配器工厂。
type Registry struct {
	factories map[string]Factory
	logger    *zap.Logger
	mu        sync.RWMutex
}

// NewRegistry 创建适配器注册表。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.With(zap.String("component", "task_registry")),
	}
}

// Register 注册任务类型。重复注册返回错误。
func (r *Registry) Register(taskType string, factory Factory) error {
	if taskType == "" {
		return fmt.Errorf("task type must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory must not be nil for task type %q", taskType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[taskType]; exists {
		return fmt.Errorf("task type already registered: %s", taskType)
	}
	r.factories[taskType] = factory

	r.logger.Debug("task type registered", zap.String("task_type", taskType))
	return nil
}

// MustRegister 注册任务类型，失败时 panic。用于程序初始化阶段。
func (r *Registry) MustRegister(taskType string, factory Factory) {
	if err := r.Register(taskType, factory); err != nil {
		panic(err)
	}
}

// New 为一次 Attempt 构造全新的适配器实例。
func (r *Registry) New(taskType string) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[taskType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("task type not registered: %s", taskType)
	}
	return factory(), nil
}

// Types 返回已注册的任务类型（字典序）。
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for taskType := range r.factories {
		out = append(out, taskType)
	}
	sort.Strings(out)
	return out
}
