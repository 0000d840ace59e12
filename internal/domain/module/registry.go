package module

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	applog "neurodata/internal/platform/log"
)

// ErrNotFound 模块不存在。
var ErrNotFound = errors.New("custom module not found")

// Store 模块列表的持久化后端。实现方整体读写 JSON 数组。
type Store interface {
	LoadModules(ctx context.Context) ([]CustomModuleDefinition, error)
	SaveModules(ctx context.Context, defs []CustomModuleDefinition) error
}

// Registry 自定义模块注册表。内存态为准，每次变更整体落盘。
// Save 按 Name 精确（区分大小写）去重，避免同一个 AI 生成节点被反复保存。
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]CustomModuleDefinition
	order []string
	store Store
}

// NewRegistry 创建空注册表。store 可为 nil（纯内存，不落盘）。
func NewRegistry(store Store) *Registry {
	return &Registry{
		byID:  make(map[string]CustomModuleDefinition),
		store: store,
	}
}

// Load 启动时一次性从后端加载。重复调用会整体替换内存态。
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	defs, err := r.store.LoadModules(ctx)
	if err != nil {
		return fmt.Errorf("load custom modules: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]CustomModuleDefinition, len(defs))
	r.order = r.order[:0]
	for _, d := range defs {
		if _, dup := r.byID[d.ID]; dup {
			continue
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	applog.Info("✅ 自定义模块加载完成", "count", len(r.order))
	return nil
}

// Save 保存模块。同名（区分大小写）已存在时返回已有定义，不产生新条目。
func (r *Registry) Save(ctx context.Context, def CustomModuleDefinition) (CustomModuleDefinition, error) {
	if def.Name == "" {
		return CustomModuleDefinition{}, errors.New("module name is required")
	}

	r.mu.Lock()
	for _, id := range r.order {
		if existing := r.byID[id]; existing.Name == def.Name {
			r.mu.Unlock()
			applog.Debug("模块已存在，跳过保存", "name", def.Name, "id", existing.ID)
			return existing, nil
		}
	}
	r.byID[def.ID] = def
	r.order = append(r.order, def.ID)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.persist(ctx, snapshot); err != nil {
		return CustomModuleDefinition{}, err
	}
	return def, nil
}

// Get 按 id 查找。
func (r *Registry) Get(id string) (CustomModuleDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// List 按保存顺序返回全部模块。
func (r *Registry) List() []CustomModuleDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// ListByCategory 按类别过滤，类别内保持保存顺序。
func (r *Registry) ListByCategory(category string) []CustomModuleDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CustomModuleDefinition
	for _, id := range r.order {
		if d := r.byID[id]; d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// Delete 删除模块并落盘。
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	if _, ok := r.byID[id]; !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	return r.persist(ctx, snapshot)
}

// Count 当前模块数。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Names 排序后的全部模块名，便于日志与测试。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		names = append(names, r.byID[id].Name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) snapshotLocked() []CustomModuleDefinition {
	out := make([]CustomModuleDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) persist(ctx context.Context, defs []CustomModuleDefinition) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveModules(ctx, defs); err != nil {
		return fmt.Errorf("persist custom modules: %w", err)
	}
	return nil
}
