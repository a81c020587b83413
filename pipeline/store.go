package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InstanceStore 流水线实例归档接口。
type InstanceStore interface {
	// Save 保存实例（插入或覆盖）
	Save(ctx context.Context, inst *Instance) error

	// Load 按 ID 加载实例
	Load(ctx context.Context, id string) (*Instance, error)

	// List 按流水线名列出实例，pipeline 为空时列出全部
	List(ctx context.Context, pipeline string, limit int) ([]*Instance, error)
}

// MemoryInstanceStore 内存实例存储，适合单 worker 部署与测试。
type MemoryInstanceStore struct {
	instances map[string]*Instance
	mu        sync.RWMutex
}

// NewMemoryInstanceStore 创建内存实例存储。
func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{
		instances: make(map[string]*Instance),
	}
}

// Save 保存实例。
func (s *MemoryInstanceStore) Save(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

// Load 加载实例。
func (s *MemoryInstanceStore) Load(ctx context.Context, id string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance not found: %s", id)
	}
	cp := *inst
	return &cp, nil
}

// List 列出实例，按创建时间倒序。
func (s *MemoryInstanceStore) List(ctx context.Context, pipeline string, limit int) ([]*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		if pipeline == "" || inst.Pipeline == pipeline {
			cp := *inst
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
