package redisdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"neurodata/internal/domain/module"
	applog "neurodata/internal/platform/log"
)

// moduleListKey 自定义模块整表 JSON 数组的存储键。
const moduleListKey = "neurodata_custom_modules"

// ModuleStore 自定义模块的 Redis 后端。整个列表作为一个 JSON 数组读写，
// 与注册表的"每次变更整体落盘"语义一致。
type ModuleStore struct {
	redis *redis.Client
}

// NewModuleStore 创建模块存储
func NewModuleStore(rdb *redis.Client) *ModuleStore {
	return &ModuleStore{redis: rdb}
}

// LoadModules 读取全部模块定义。键不存在视为空列表。
func (s *ModuleStore) LoadModules(ctx context.Context) ([]module.CustomModuleDefinition, error) {
	data, err := s.redis.Get(ctx, moduleListKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", moduleListKey, err)
	}

	var defs []module.CustomModuleDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		// 损坏的列表不应阻止启动，按空列表处理并告警
		applog.Warn("⚠️ 自定义模块列表损坏，按空处理", "key", moduleListKey, "error", err)
		return nil, nil
	}
	return defs, nil
}

// SaveModules 整表覆盖写入。
func (s *ModuleStore) SaveModules(ctx context.Context, defs []module.CustomModuleDefinition) error {
	if defs == nil {
		defs = []module.CustomModuleDefinition{}
	}
	data, err := json.Marshal(defs)
	if err != nil {
		return fmt.Errorf("marshal module list: %w", err)
	}
	if err := s.redis.Set(ctx, moduleListKey, data, 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", moduleListKey, err)
	}
	return nil
}
