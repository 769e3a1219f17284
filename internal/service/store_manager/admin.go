// Package store_manager file: internal/service/store_manager/admin.go
package store_manager

import (
	"context"
	"log"
	"time"

	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/core/port"
)

// ==== 商店运维（控制平面） ===================================================

// RegisterStore 注册商店。参数校验由注册表完成，非法参数同步报错并中止。
func (m *Manager) RegisterStore(ctx context.Context, name, url string, storeType domain.StoreType, priority int) (*domain.PluginStore, error) {
	isOfficial := storeType == domain.StoreTypeOfficial
	return m.registry.RegisterStore(ctx, name, url, storeType, priority, isOfficial)
}

// ListStores 按优先级列出全部商店（含禁用的）。
func (m *Manager) ListStores(ctx context.Context) ([]domain.PluginStore, error) {
	return m.registry.ListStores(ctx)
}

// SetStoreEnabled 启用/禁用商店。商店从不删除。
func (m *Manager) SetStoreEnabled(ctx context.Context, storeID string, enabled bool) error {
	return m.registry.SetStoreEnabled(ctx, storeID, enabled)
}

// SyncStore 对单个商店执行一次同步，并刷新其 lastSync/pluginCount。
// 实际对账逻辑由注入的 SyncStrategy 决定；禁用的商店拒绝同步。
func (m *Manager) SyncStore(ctx context.Context, storeID string) (*domain.PluginStore, error) {
	store, err := m.registry.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !store.IsEnabled {
		return nil, port.ErrStoreDisabled
	}

	var client port.StoreClient
	if store.Type != domain.StoreTypeLocal {
		if client, err = m.clientFor(*store); err != nil {
			return nil, err
		}
	}

	count, syncedAt, err := m.syncer.Sync(ctx, *store, client)
	if err != nil {
		return nil, err
	}
	updated, err := m.registry.UpdateSyncState(ctx, storeID, count, syncedAt)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ [StoreManager] 商店 '%s' 同步完成, 条目数=%d", store.Name, count)
	return updated, nil
}

// ==== 缺省策略实现 ==========================================================

// NoopSyncStrategy 是缺省的同步策略：只向商店询问其当前条目总数，
// 不做远端到本地的对账。完整的快照式同步留给具体策略实现者。
type NoopSyncStrategy struct{}

var _ port.SyncStrategy = (*NoopSyncStrategy)(nil)

func (s *NoopSyncStrategy) Sync(ctx context.Context, store domain.PluginStore, client port.StoreClient) (int, time.Time, error) {
	now := time.Now()
	if client == nil {
		// 本地商店没有远端可询问，维持原有计数
		return store.PluginCount, now, nil
	}
	result, err := client.Search(ctx, domain.PluginSearchQuery{Limit: 1})
	if err != nil {
		return 0, time.Time{}, err
	}
	return result.TotalCount, now, nil
}

// NoSimilarity 是缺省的相似插件策略，恒返回空列表。
type NoSimilarity struct{}

var _ port.SimilarityStrategy = (*NoSimilarity)(nil)

func (s *NoSimilarity) SimilarPlugins(context.Context, string, int) ([]domain.PluginStoreEntry, error) {
	return []domain.PluginStoreEntry{}, nil
}
