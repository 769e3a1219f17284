// Package store_registry file: internal/service/store_registry/registry.go
package store_registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/core/port"
	"PluginHarbor/internal/service/search_engine"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	storesSubdir      = "stores"
	defaultCacheSize  = 256
	defaultCacheTTL   = time.Hour
	debounceDuration  = 300 * time.Millisecond
	storeFileMode     = 0644
	registryDirMode   = 0755
)

// Registry 负责商店元数据的持久化与本地条目缓存。
// 每个商店对应 <registryPath>/stores/<storeId>.json 一个文件，
// 内存中的 LRU 缓存（带 TTL）挡住对磁盘的重复读取。
// 商店一经注册不可删除，只能禁用。
type Registry struct {
	dir   string // <registryPath>/stores
	cache *lru.LRU[string, *domain.PluginStore]

	// 每个商店的本地条目缓存（离线可查），与搜索引擎共用过滤/排序逻辑
	entriesMu sync.RWMutex
	entries   map[string][]domain.PluginStoreEntry

	engine *search_engine.Engine

	// 文件写入串行化，避免并发注册/同步互相覆盖
	writeMu sync.Mutex

	eventTimersMu sync.Mutex
	eventTimers   map[string]*time.Timer
}

// SeedStore 是配置文件中声明的引导商店（注册表为空时自动注册）
type SeedStore struct {
	Name       string `mapstructure:"name"`
	URL        string `mapstructure:"url"`
	Type       string `mapstructure:"type"`
	Priority   int    `mapstructure:"priority"`
	IsOfficial bool   `mapstructure:"is_official"`
}

// NewRegistry 创建商店注册表。registryPath 下会自动创建 stores/ 子目录。
func NewRegistry(registryPath string, maxCacheEntries int, cacheTTL time.Duration) (*Registry, error) {
	if registryPath == "" {
		return nil, fmt.Errorf("注册表目录(registryPath)不能为空")
	}
	if maxCacheEntries <= 0 {
		maxCacheEntries = defaultCacheSize
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}

	dir := filepath.Join(registryPath, storesSubdir)
	if err := os.MkdirAll(dir, registryDirMode); err != nil {
		return nil, fmt.Errorf("创建商店注册目录 '%s' 失败: %w", dir, err)
	}

	return &Registry{
		dir:         dir,
		cache:       lru.NewLRU[string, *domain.PluginStore](maxCacheEntries, nil, cacheTTL),
		entries:     make(map[string][]domain.PluginStoreEntry),
		engine:      search_engine.NewEngine(),
		eventTimers: make(map[string]*time.Timer),
	}, nil
}

// ==== 注册与查询 ============================================================

// RegisterStore 注册一个新商店并立即落盘。
// 参数非法（空名称、非法URL、未知类型）属于调用方错误，同步返回并中止注册。
func (r *Registry) RegisterStore(_ context.Context, name, storeURL string, storeType domain.StoreType, priority int, isOfficial bool) (*domain.PluginStore, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("商店名称不能为空")
	}
	if !domain.ValidStoreType(string(storeType)) {
		return nil, fmt.Errorf("非法的商店类型: '%s'", storeType)
	}
	u, err := url.Parse(storeURL)
	if err != nil || u.Scheme == "" || (u.Scheme != "file" && u.Host == "") {
		return nil, fmt.Errorf("非法的商店地址: '%s'", storeURL)
	}

	store := &domain.PluginStore{
		ID:         uuid.NewString(),
		Name:       name,
		URL:        storeURL,
		Type:       storeType,
		IsOfficial: isOfficial,
		IsEnabled:  true,
		Priority:   priority,
	}

	if err := r.persist(store); err != nil {
		return nil, err
	}
	r.cache.Add(store.ID, store)
	log.Printf("✅ [StoreRegistry] 商店 '%s' (%s) 注册成功, id=%s", name, storeType, store.ID)
	return store, nil
}

// GetStore 按ID查询商店，缓存未命中时回源磁盘。
func (r *Registry) GetStore(_ context.Context, storeID string) (*domain.PluginStore, error) {
	if store, ok := r.cache.Get(storeID); ok {
		return store, nil
	}
	store, err := r.loadFromDisk(storeID)
	if err != nil {
		return nil, err
	}
	r.cache.Add(storeID, store)
	return store, nil
}

// ListStores 返回所有已注册商店，按优先级降序、ID升序排列。
// 这个顺序同时也是多商店聚合查询的扇出顺序（去重时先到先得）。
func (r *Registry) ListStores(_ context.Context) ([]domain.PluginStore, error) {
	dirEntries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("读取商店注册目录失败: %w", err)
	}

	stores := make([]domain.PluginStore, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(de.Name(), ".json")
		if cached, ok := r.cache.Get(id); ok {
			stores = append(stores, *cached)
			continue
		}
		store, errLoad := r.loadFromDisk(id)
		if errLoad != nil {
			// 损坏的商店文件只跳过，不拖垮其余商店
			log.Printf("⚠️ [StoreRegistry] 商店文件 '%s' 无法解析，已跳过: %v", de.Name(), errLoad)
			continue
		}
		r.cache.Add(id, store)
		stores = append(stores, *store)
	}

	sort.Slice(stores, func(i, j int) bool {
		if stores[i].Priority != stores[j].Priority {
			return stores[i].Priority > stores[j].Priority
		}
		return stores[i].ID < stores[j].ID
	})
	return stores, nil
}

// EnabledStores 返回启用中的商店，顺序同 ListStores。
func (r *Registry) EnabledStores(ctx context.Context) ([]domain.PluginStore, error) {
	all, err := r.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make([]domain.PluginStore, 0, len(all))
	for _, s := range all {
		if s.IsEnabled {
			enabled = append(enabled, s)
		}
	}
	return enabled, nil
}

// SetStoreEnabled 启用/禁用商店。商店从不删除，禁用是唯一的下线方式。
func (r *Registry) SetStoreEnabled(ctx context.Context, storeID string, enabled bool) error {
	store, err := r.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	updated := *store
	updated.IsEnabled = enabled
	if err := r.persist(&updated); err != nil {
		return err
	}
	r.cache.Add(storeID, &updated)
	log.Printf("🔄 [StoreRegistry] 商店 '%s' 启用状态已更新为 %v", store.Name, enabled)
	return nil
}

// UpdateSyncState 在一次同步完成后刷新 lastSync/pluginCount。
// 这是商店记录唯一允许的两处可变字段。
func (r *Registry) UpdateSyncState(ctx context.Context, storeID string, pluginCount int, syncedAt time.Time) (*domain.PluginStore, error) {
	store, err := r.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	updated := *store
	updated.LastSync = &syncedAt
	updated.PluginCount = pluginCount
	if err := r.persist(&updated); err != nil {
		return nil, err
	}
	r.cache.Add(storeID, &updated)
	return &updated, nil
}

// Seed 在注册目录为空时注册配置声明的引导商店。
// 目录非空时什么也不做（避免重启后重复注册）。
func (r *Registry) Seed(ctx context.Context, seeds []SeedStore) error {
	existing, err := r.ListStores(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 || len(seeds) == 0 {
		return nil
	}
	for _, s := range seeds {
		if _, err := r.RegisterStore(ctx, s.Name, s.URL, domain.StoreType(s.Type), s.Priority, s.IsOfficial); err != nil {
			log.Printf("⚠️ [StoreRegistry] 引导商店 '%s' 注册失败: %v", s.Name, err)
		}
	}
	return nil
}

// ==== 本地条目缓存与离线搜索 ================================================

// CacheEntries 整体替换某个商店的本地条目缓存。
func (r *Registry) CacheEntries(storeID string, entries []domain.PluginStoreEntry) {
	r.entriesMu.Lock()
	defer r.entriesMu.Unlock()
	r.entries[storeID] = entries
}

// CachedEntries 返回某个商店已缓存的条目（副本语义归调用方）。
func (r *Registry) CachedEntries(storeID string) []domain.PluginStoreEntry {
	r.entriesMu.RLock()
	defer r.entriesMu.RUnlock()
	return r.entries[storeID]
}

// SearchPlugins 在所有启用商店的本地缓存条目上执行搜索。
// 离线可用；过滤/排序/分页逻辑与搜索引擎完全一致。
func (r *Registry) SearchPlugins(ctx context.Context, query domain.PluginSearchQuery) (*domain.PluginSearchResult, error) {
	enabled, err := r.EnabledStores(ctx)
	if err != nil {
		return nil, err
	}

	r.entriesMu.RLock()
	var candidates []domain.PluginStoreEntry
	for _, s := range enabled {
		candidates = append(candidates, r.entries[s.ID]...)
	}
	r.entriesMu.RUnlock()

	return r.engine.Search(candidates, query), nil
}

// LocalEntries 返回所有启用商店的本地缓存条目，按商店扇出顺序拼接。
func (r *Registry) LocalEntries(ctx context.Context) ([]domain.PluginStoreEntry, error) {
	enabled, err := r.EnabledStores(ctx)
	if err != nil {
		return nil, err
	}
	r.entriesMu.RLock()
	defer r.entriesMu.RUnlock()
	var all []domain.PluginStoreEntry
	for _, s := range enabled {
		all = append(all, r.entries[s.ID]...)
	}
	return all, nil
}

// Invalidate 使单个商店的元数据缓存失效（条目缓存不受影响）。
func (r *Registry) Invalidate(storeID string) {
	r.cache.Remove(storeID)
}

// InvalidateAll 清空全部元数据缓存，下次访问回源磁盘。
func (r *Registry) InvalidateAll() {
	r.cache.Purge()
	log.Printf("🧹 [StoreRegistry] 商店元数据缓存已全部清除")
}

// ==== 持久化 ================================================================

func (r *Registry) storePath(storeID string) string {
	return filepath.Join(r.dir, storeID+".json")
}

func (r *Registry) persist(store *domain.PluginStore) error {
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化商店 '%s' 失败: %w", store.ID, err)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := os.WriteFile(r.storePath(store.ID), data, storeFileMode); err != nil {
		return fmt.Errorf("写入商店文件 '%s' 失败: %w", store.ID, err)
	}
	return nil
}

func (r *Registry) loadFromDisk(storeID string) (*domain.PluginStore, error) {
	data, err := os.ReadFile(r.storePath(storeID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, port.ErrStoreNotFound
		}
		return nil, fmt.Errorf("读取商店文件 '%s' 失败: %w", storeID, err)
	}
	var store domain.PluginStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("解析商店文件 '%s' 失败: %w", storeID, err)
	}
	if store.ID == "" {
		return nil, fmt.Errorf("商店文件 '%s' 缺少 id 字段", storeID)
	}
	return &store, nil
}
