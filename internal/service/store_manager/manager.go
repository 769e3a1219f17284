// Package store_manager file: internal/service/store_manager/manager.go
package store_manager

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/core/port"
	"PluginHarbor/internal/downloader"
	"PluginHarbor/internal/harobserve"
	"PluginHarbor/internal/service/recommend"
	"PluginHarbor/internal/service/search_engine"
	"PluginHarbor/internal/service/store_registry"
	"PluginHarbor/internal/service/taxonomy"
)

// 聚合排序的加权项：推荐位、官方校验、评分与对数化下载量
const (
	mergeFeaturedBonus  = 100.0
	mergeVerifiedBonus  = 50.0
	mergeRatingWeight   = 10.0
	mergeDownloadWeight = 5.0
)

// 每个商店的本地条目缓存上限，防止离线缓存无限增长
const maxCachedEntriesPerStore = 500

// Manager 是插件发现的对外门面。
// 它把一次查询扇出到注册表（本地缓存）和每个启用的远端商店，
// 合并、去重、重排后返回单一分页结果。任何单商店失败都不会中断聚合。
type Manager struct {
	registry    *store_registry.Registry
	factory     port.StoreClientFactory
	engine      *search_engine.Engine
	recommender *recommend.Engine
	taxonomy    *taxonomy.Service
	downloaders []downloader.Downloader
	syncer      port.SyncStrategy
	similarity  port.SimilarityStrategy

	clientsMu sync.Mutex
	clients   map[string]port.StoreClient // storeID -> 备忘的客户端
}

// 静态断言：Manager 同时承担发现、推荐、评价与商店运维几个门面
var (
	_ port.PluginDiscoveryService = (*Manager)(nil)
	_ port.RecommendationService  = (*Manager)(nil)
	_ port.ReviewService          = (*Manager)(nil)
	_ port.StoreAdminService      = (*Manager)(nil)
)

// NewManager 组装插件发现门面。所有协作者显式注入，不使用全局单例。
func NewManager(
	registry *store_registry.Registry,
	factory port.StoreClientFactory,
	engine *search_engine.Engine,
	recommender *recommend.Engine,
	taxo *taxonomy.Service,
	downloaders []downloader.Downloader,
	syncer port.SyncStrategy,
	similarity port.SimilarityStrategy,
) (*Manager, error) {
	if registry == nil {
		return nil, fmt.Errorf("Manager 需要一个有效的商店注册表")
	}
	if factory == nil {
		return nil, fmt.Errorf("Manager 需要一个商店客户端工厂")
	}
	if engine == nil {
		engine = search_engine.NewEngine()
	}
	if syncer == nil {
		syncer = &NoopSyncStrategy{}
	}
	if similarity == nil {
		similarity = &NoSimilarity{}
	}
	return &Manager{
		registry:    registry,
		factory:     factory,
		engine:      engine,
		recommender: recommender,
		taxonomy:    taxo,
		downloaders: downloaders,
		syncer:      syncer,
		similarity:  similarity,
		clients:     make(map[string]port.StoreClient),
	}, nil
}

// clientFor 返回某商店的客户端，按商店ID备忘。
func (m *Manager) clientFor(store domain.PluginStore) (port.StoreClient, error) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if c, ok := m.clients[store.ID]; ok {
		return c, nil
	}
	c, err := m.factory(store)
	if err != nil {
		return nil, fmt.Errorf("构造商店 '%s' 的客户端失败: %w", store.Name, err)
	}
	m.clients[store.ID] = c
	return c, nil
}

// remoteStores 返回参与远端扇出的商店：启用且非本地目录型。
func (m *Manager) remoteStores(ctx context.Context) ([]domain.PluginStore, error) {
	enabled, err := m.registry.EnabledStores(ctx)
	if err != nil {
		return nil, err
	}
	remote := make([]domain.PluginStore, 0, len(enabled))
	for _, s := range enabled {
		if s.Type == domain.StoreTypeLocal {
			continue
		}
		remote = append(remote, s)
	}
	return remote, nil
}

// RefreshIndex 用注册表当前的本地条目重建搜索索引（供自动补全使用）。
// 由网关的周期刷新循环调用；重建是幂等的。
func (m *Manager) RefreshIndex(ctx context.Context) error {
	entries, err := m.registry.LocalEntries(ctx)
	if err != nil {
		return err
	}
	m.engine.BuildIndex(entries)
	return nil
}

// ==== 合并、去重与重排 ========================================================

// dedupEntries 按 (id, version) 去重，先到先得。
// 输入顺序即商店扇出顺序，因此先注册的商店在键冲突时胜出。
func dedupEntries(entries []domain.PluginStoreEntry) []domain.PluginStoreEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]domain.PluginStoreEntry, 0, len(entries))
	for _, e := range entries {
		key := e.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// mergeScore 聚合重排的打分：推荐位 +100、官方校验 +50、评分×10、对数化下载量×5。
func mergeScore(e domain.PluginStoreEntry) float64 {
	score := e.Rating * mergeRatingWeight
	score += math.Log1p(float64(e.DownloadCount)) * mergeDownloadWeight
	if e.IsFeatured {
		score += mergeFeaturedBonus
	}
	if e.IsVerified {
		score += mergeVerifiedBonus
	}
	return score
}

// sortMerged 按查询要求对合并后的条目重排。
// relevance 档使用 mergeScore；其余档直接比较对应字段。
func sortMerged(entries []domain.PluginStoreEntry, by domain.SortBy, order domain.SortOrder) {
	asc := order == domain.SortAscending
	sort.SliceStable(entries, func(i, j int) bool {
		var less bool
		switch by {
		case domain.SortByName:
			less = entries[i].Name < entries[j].Name
		case domain.SortByRating:
			less = entries[i].Rating < entries[j].Rating
		case domain.SortByDownloads:
			less = entries[i].DownloadCount < entries[j].DownloadCount
		case domain.SortByPublished:
			less = lessTimePtr(entries[i].PublishedAt, entries[j].PublishedAt)
		case domain.SortByUpdated:
			less = lessTimePtr(entries[i].UpdatedAt, entries[j].UpdatedAt)
		default: // relevance
			less = mergeScore(entries[i]) < mergeScore(entries[j])
		}
		if asc {
			return less
		}
		return !less
	})
}

// lessTimePtr nil 视为最小值（升序排最前，降序排最后）
func lessTimePtr(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return true
	case b == nil:
		return false
	default:
		return a.Before(*b)
	}
}

// paginateEntries 对排序后的条目切页。
func paginateEntries(entries []domain.PluginStoreEntry, offset, limit int) []domain.PluginStoreEntry {
	if offset >= len(entries) {
		return []domain.PluginStoreEntry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}

// autoClassify 为缺少分类的条目补上分类引擎的最优建议。
// 条目不可变，补全发生在聚合视图上，不回写商店。
func (m *Manager) autoClassify(ctx context.Context, entries []domain.PluginStoreEntry) []domain.PluginStoreEntry {
	if m.taxonomy == nil {
		return entries
	}
	for i, e := range entries {
		if e.Category != "" {
			continue
		}
		suggestions, err := m.taxonomy.SuggestCategories(ctx, e)
		if err != nil || len(suggestions) == 0 {
			continue
		}
		entries[i].Category = suggestions[0].CategoryID
	}
	return entries
}

// cacheRemoteEntries 把远端搜索命中并入该商店的离线缓存（按去重键合并，容量有上限）。
func (m *Manager) cacheRemoteEntries(storeID string, fresh []domain.PluginStoreEntry) {
	if len(fresh) == 0 {
		return
	}
	existing := m.registry.CachedEntries(storeID)
	merged := dedupEntries(append(fresh, existing...))
	if len(merged) > maxCachedEntriesPerStore {
		merged = merged[:maxCachedEntriesPerStore]
	}
	m.registry.CacheEntries(storeID, merged)
}

// logStoreFailure 记录并吞掉单商店失败：聚合操作返回部分结果是预期行为。
func logStoreFailure(op string, store domain.PluginStore, err error) {
	harobserve.StoreFailure.WithLabelValues(store.Name).Inc()
	log.Printf("⚠️ [StoreManager] 商店 '%s' 的 %s 调用失败: %v", store.Name, op, err)
}
