// file: internal/service/store_registry/registry_test.go
package store_registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(t.TempDir(), 16, time.Hour)
	require.NoError(t, err)
	return r
}

func TestRegisterStore_Validation(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	testCases := []struct {
		name      string
		storeName string
		url       string
		storeType domain.StoreType
	}{
		{"空名称", "", "https://store.example.com", domain.StoreTypeCommunity},
		{"空白名称", "   ", "https://store.example.com", domain.StoreTypeCommunity},
		{"非法类型", "store", "https://store.example.com", domain.StoreType("galaxy")},
		{"无协议地址", "store", "store.example.com", domain.StoreTypeCommunity},
		{"空地址", "store", "", domain.StoreTypeCommunity},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.RegisterStore(ctx, tc.storeName, tc.url, tc.storeType, 0, false)
			assert.Error(t, err, "非法参数必须中止注册")
		})
	}
}

func TestRegisterStore_PersistsToDisk(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRegistry(dir, 16, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	store, err := r.RegisterStore(ctx, "官方商店", "https://plugins.example.com", domain.StoreTypeOfficial, 100, true)
	require.NoError(t, err)
	assert.NotEmpty(t, store.ID)
	assert.True(t, store.IsEnabled, "新注册的商店默认启用")
	assert.Nil(t, store.LastSync, "尚未同步的商店 lastSync 为 nil")

	// 落盘文件可以被直接解析
	data, err := os.ReadFile(filepath.Join(dir, "stores", store.ID+".json"))
	require.NoError(t, err)
	var onDisk domain.PluginStore
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, *store, onDisk)
}

func TestGetStore_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.GetStore(context.Background(), "no-such-store")
	assert.ErrorIs(t, err, port.ErrStoreNotFound)
}

func TestListStores_OrderAndSkipMalformed(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRegistry(dir, 16, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	low, err := r.RegisterStore(ctx, "低优先级", "https://a.example.com", domain.StoreTypeCommunity, 1, false)
	require.NoError(t, err)
	high, err := r.RegisterStore(ctx, "高优先级", "https://b.example.com", domain.StoreTypeOfficial, 10, true)
	require.NoError(t, err)

	// 损坏的商店文件只跳过，不影响其余商店
	badPath := filepath.Join(dir, "stores", "broken.json")
	require.NoError(t, os.WriteFile(badPath, []byte("{not json"), 0644))

	stores, err := r.ListStores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, high.ID, stores[0].ID, "优先级高的商店排在前面")
	assert.Equal(t, low.ID, stores[1].ID)
}

func TestSetStoreEnabled(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	store, err := r.RegisterStore(ctx, "社区商店", "https://c.example.com", domain.StoreTypeCommunity, 0, false)
	require.NoError(t, err)

	require.NoError(t, r.SetStoreEnabled(ctx, store.ID, false))

	got, err := r.GetStore(ctx, store.ID)
	require.NoError(t, err)
	assert.False(t, got.IsEnabled)

	enabled, err := r.EnabledStores(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled, "禁用后的商店不参与聚合查询")

	assert.ErrorIs(t, r.SetStoreEnabled(ctx, "ghost", true), port.ErrStoreNotFound)
}

func TestUpdateSyncState(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	store, err := r.RegisterStore(ctx, "商店", "https://d.example.com", domain.StoreTypeCommunity, 0, false)
	require.NoError(t, err)

	syncedAt := time.Now().Truncate(time.Second)
	updated, err := r.UpdateSyncState(ctx, store.ID, 42, syncedAt)
	require.NoError(t, err)
	require.NotNil(t, updated.LastSync)
	assert.True(t, updated.LastSync.Equal(syncedAt))
	assert.Equal(t, 42, updated.PluginCount)

	// 其余字段保持不变
	assert.Equal(t, store.Name, updated.Name)
	assert.Equal(t, store.URL, updated.URL)
}

func TestSeed_OnlyWhenEmpty(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	seeds := []SeedStore{
		{Name: "官方商店", URL: "https://official.example.com", Type: "official", Priority: 100, IsOfficial: true},
		{Name: "社区商店", URL: "https://community.example.com", Type: "community", Priority: 10},
	}

	require.NoError(t, r.Seed(ctx, seeds))
	stores, err := r.ListStores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 2)

	// 第二次 Seed 不应重复注册
	require.NoError(t, r.Seed(ctx, seeds))
	stores, err = r.ListStores(ctx)
	require.NoError(t, err)
	assert.Len(t, stores, 2)
}

func TestSearchPlugins_LocalCache(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	enabled, err := r.RegisterStore(ctx, "启用商店", "https://on.example.com", domain.StoreTypeCommunity, 10, false)
	require.NoError(t, err)
	disabled, err := r.RegisterStore(ctx, "禁用商店", "https://off.example.com", domain.StoreTypeCommunity, 1, false)
	require.NoError(t, err)
	require.NoError(t, r.SetStoreEnabled(ctx, disabled.ID, false))

	r.CacheEntries(enabled.ID, []domain.PluginStoreEntry{
		{ID: "p.palette", Name: "Color Palette", Version: "1.0.0", StoreID: enabled.ID, Tags: []string{"color"}},
		{ID: "p.timer", Name: "Focus Timer", Version: "2.1.0", StoreID: enabled.ID},
	})
	r.CacheEntries(disabled.ID, []domain.PluginStoreEntry{
		{ID: "p.hidden", Name: "Color Hidden", Version: "0.1.0", StoreID: disabled.ID},
	})

	result, err := r.SearchPlugins(ctx, domain.PluginSearchQuery{Keyword: "color", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalCount, "禁用商店的条目不应出现在结果中")
	assert.Equal(t, "p.palette", result.Plugins[0].ID)
}

func TestInvalidate_ReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRegistry(dir, 16, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	store, err := r.RegisterStore(ctx, "商店", "https://e.example.com", domain.StoreTypeCommunity, 0, false)
	require.NoError(t, err)

	// 绕过 Registry 直接改盘，模拟运维手工编辑
	edited := *store
	edited.Name = "改名后的商店"
	data, err := json.MarshalIndent(&edited, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stores", store.ID+".json"), data, 0644))

	// 缓存未失效前仍返回旧值
	cached, err := r.GetStore(ctx, store.ID)
	require.NoError(t, err)
	assert.Equal(t, "商店", cached.Name)

	r.Invalidate(store.ID)
	fresh, err := r.GetStore(ctx, store.ID)
	require.NoError(t, err)
	assert.Equal(t, "改名后的商店", fresh.Name)
}
