// file: internal/service/recommend/engine_test.go
package recommend

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/harobserve"
)

func timePtr(t time.Time) *time.Time { return &t }

func testCatalog() []domain.PluginStoreEntry {
	now := time.Now()
	return []domain.PluginStoreEntry{
		{ID: "p.color", Name: "Color Palette", Category: "design", Tags: []string{"color", "palette"},
			Author: "alice", Platforms: []string{"windows"}, Rating: 4.7, DownloadCount: 12000,
			IsVerified: true, UpdatedAt: timePtr(now.AddDate(0, 0, -5))},
		{ID: "p.theme", Name: "Theme Studio", Category: "design", Tags: []string{"theme", "color"},
			Author: "alice", Platforms: []string{"windows"}, Rating: 4.0, DownloadCount: 3000},
		{ID: "p.fmt", Name: "Code Formatter", Category: "development", Tags: []string{"code", "formatter"},
			Author: "bob", Platforms: []string{"linux"}, Rating: 4.5, DownloadCount: 9000, IsFeatured: true},
		{ID: "p.game", Name: "Mini Arcade", Category: "entertainment", Tags: []string{"game"},
			Author: "carol", Platforms: []string{"windows"}, Rating: 2.0, DownloadCount: 50},
	}
}

// ============================================================================
//  冷启动与策略边界
// ============================================================================

// 零安装、零历史的用户请求混合推荐：只有"人气"分量可以非零
func TestHybrid_ColdStartIsPopularityOnly(t *testing.T) {
	e := NewEngine(NewBehaviorStore(nil), time.Hour)
	ctx := context.Background()

	recs, err := e.Recommend(ctx, "newcomer", nil, testCatalog(), nil, domain.RecommendHybrid, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)

	for _, r := range recs {
		ps, _ := popularityScore(r.Plugin)
		assert.InDelta(t, ps*hybridWeightPopularity, r.Score, 1e-9,
			"冷启动用户的混合分只应来自人气分量 (plugin=%s)", r.Plugin.ID)
	}
	// 人气排序：下载与口碑最好的排最前
	assert.Equal(t, "p.color", recs[0].Plugin.ID)
}

func TestContentBased_ProfileOverlap(t *testing.T) {
	e := NewEngine(NewBehaviorStore(nil), time.Hour)
	ctx := context.Background()

	// 已装 Color Palette → design/color 画像 → Theme Studio 应当胜出
	recs, err := e.Recommend(ctx, "u1", []string{"p.color"}, testCatalog(), nil, domain.RecommendContentBased, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "p.theme", recs[0].Plugin.ID)

	// 已安装的插件绝不出现在候选里
	for _, r := range recs {
		assert.NotEqual(t, "p.color", r.Plugin.ID)
	}
}

func TestCollaborative_SimilarUsers(t *testing.T) {
	store := NewBehaviorStore(nil)
	e := NewEngine(store, time.Hour)
	ctx := context.Background()

	// u2 和 u1 安装集合高度重合，且 u2 还装了 p.fmt
	for _, id := range []string{"p.color", "p.theme", "p.fmt"} {
		require.NoError(t, e.RecordUserBehavior(ctx, domain.UserBehavior{
			UserID: "u2", Action: domain.ActionInstall, PluginID: id,
		}))
	}
	require.NoError(t, e.RecordUserBehavior(ctx, domain.UserBehavior{
		UserID: "u2", Action: domain.ActionRate, PluginID: "p.fmt",
		Metadata: map[string]string{"rating": "5"},
	}))

	recs, err := e.Recommend(ctx, "u1", []string{"p.color", "p.theme"}, testCatalog(), nil, domain.RecommendCollaborative, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs, "应当从相似用户那里学到 p.fmt")
	assert.Equal(t, "p.fmt", recs[0].Plugin.ID)
	assert.LessOrEqual(t, recs[0].Score, 1.0)
}

func TestBehavioral_OverlapAndRecency(t *testing.T) {
	store := NewBehaviorStore(nil)
	e := NewEngine(store, time.Hour)
	ctx := context.Background()

	require.NoError(t, e.RecordUserBehavior(ctx, domain.UserBehavior{
		UserID: "u3", Action: domain.ActionView, PluginID: "p.color",
	}))

	recs, err := e.Recommend(ctx, "u3", nil, testCatalog(), nil, domain.RecommendBehavioral, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)

	byID := map[string]domain.PluginRecommendation{}
	for _, r := range recs {
		byID[r.Plugin.ID] = r
	}
	// 与浏览过的 p.color 标签重叠 (+0.3) 且近期活跃 (+0.2)
	theme, ok := byID["p.theme"]
	require.True(t, ok)
	assert.InDelta(t, 0.5, theme.Score, 1e-9)
	// 无重叠的候选只有活跃度加成
	game, ok := byID["p.game"]
	require.True(t, ok)
	assert.InDelta(t, 0.2, game.Score, 1e-9)
}

// ============================================================================
//  分值边界与置信度
// ============================================================================

func TestConfidence_NeverExceedsOne(t *testing.T) {
	store := NewBehaviorStore(nil)
	e := NewEngine(store, time.Hour)
	ctx := context.Background()

	for _, id := range []string{"p.color", "p.theme"} {
		require.NoError(t, e.RecordUserBehavior(ctx, domain.UserBehavior{
			UserID: "u4", Action: domain.ActionInstall, PluginID: id,
		}))
	}
	for _, recType := range []domain.RecommendationType{
		domain.RecommendContentBased, domain.RecommendCollaborative,
		domain.RecommendPopularity, domain.RecommendBehavioral, domain.RecommendHybrid,
	} {
		recs, err := e.Recommend(ctx, "u4", []string{"p.color", "p.theme"}, testCatalog(), nil, recType, 10)
		require.NoError(t, err)
		for _, r := range recs {
			assert.GreaterOrEqual(t, r.Confidence, 0.0)
			assert.LessOrEqual(t, r.Confidence, 1.0, "置信度必须封顶 (type=%s plugin=%s)", recType, r.Plugin.ID)
		}
		e.ClearCache()
	}
}

func TestJaccard(t *testing.T) {
	a := map[string]bool{"x": true, "y": true}
	b := map[string]bool{"y": true, "z": true}
	assert.InDelta(t, 1.0/3.0, jaccard(a, b), 1e-12)
	assert.Equal(t, 0.0, jaccard(nil, b))
	assert.Equal(t, 0.0, jaccard(a, map[string]bool{}))
	assert.InDelta(t, jaccard(a, b), jaccard(b, a), 1e-12)
}

// ============================================================================
//  TTL 缓存
// ============================================================================

func TestCache_TTLWindow(t *testing.T) {
	store := NewBehaviorStore(nil)
	e := NewEngine(store, 80*time.Millisecond)
	ctx := context.Background()
	catalog := testCatalog()

	first, err := e.Recommend(ctx, "u5", nil, catalog, nil, domain.RecommendPopularity, 10)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// ttl/2 之内：后续的行为变化不反映，说明命中了缓存
	require.NoError(t, e.RecordUserBehavior(ctx, domain.UserBehavior{
		UserID: "u5", Action: domain.ActionInstall, PluginID: "p.color",
	}))
	time.Sleep(20 * time.Millisecond)
	cachedHit, err := e.Recommend(ctx, "u5", nil, catalog, nil, domain.RecommendPopularity, 10)
	require.NoError(t, err)
	assert.Equal(t, len(first), len(cachedHit), "ttl/2 时必须命中缓存")
	assert.Equal(t, first[0].Plugin.ID, cachedHit[0].Plugin.ID)

	// ttl+ε 之后：必须重算，已安装的 p.color 从候选集消失
	time.Sleep(100 * time.Millisecond)
	recomputed, err := e.Recommend(ctx, "u5", nil, catalog, nil, domain.RecommendPopularity, 10)
	require.NoError(t, err)
	for _, r := range recomputed {
		assert.NotEqual(t, "p.color", r.Plugin.ID, "过期后必须重算，不得吐出陈旧命中")
	}
}

func TestCache_KeyIncludesCategoriesAndType(t *testing.T) {
	e := NewEngine(NewBehaviorStore(nil), time.Hour)
	ctx := context.Background()
	catalog := testCatalog()

	all, err := e.Recommend(ctx, "u6", nil, catalog, nil, domain.RecommendPopularity, 10)
	require.NoError(t, err)
	design, err := e.Recommend(ctx, "u6", nil, catalog, []string{"design"}, domain.RecommendPopularity, 10)
	require.NoError(t, err)

	assert.Greater(t, len(all), len(design), "分类过滤的结果不应与全量结果共用缓存")
	for _, r := range design {
		assert.Equal(t, "design", r.Plugin.Category)
	}

	assert.NotEqual(t,
		recommendCacheKey("u6", nil, domain.RecommendPopularity),
		recommendCacheKey("u6", []string{"design"}, domain.RecommendPopularity))
	assert.NotEqual(t,
		recommendCacheKey("u6", nil, domain.RecommendPopularity),
		recommendCacheKey("u6", nil, domain.RecommendHybrid))
}

func TestCleanExpiredCache(t *testing.T) {
	e := NewEngine(NewBehaviorStore(nil), 20*time.Millisecond)
	ctx := context.Background()

	_, err := e.Recommend(ctx, "u7", nil, testCatalog(), nil, domain.RecommendPopularity, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, e.cache.ItemCount())

	time.Sleep(40 * time.Millisecond)
	e.CleanExpiredCache()
	assert.Equal(t, 0, e.cache.ItemCount(), "显式清理后过期条目应被回收")
}

// ============================================================================
//  行为环
// ============================================================================

func TestBehaviorRing_CapAt1000(t *testing.T) {
	store := NewBehaviorStore(nil)
	for i := 0; i < maxBehaviorPerUser+50; i++ {
		require.NoError(t, store.Append(domain.UserBehavior{
			UserID: "u8", Action: domain.ActionView, PluginID: "p.color",
			Timestamp: time.Now().Add(time.Duration(i) * time.Millisecond),
		}))
	}
	history := store.History("u8")
	assert.Len(t, history, maxBehaviorPerUser, "行为环必须截断在容量上限")
}

func TestBehaviorStore_InstalledSetReplay(t *testing.T) {
	store := NewBehaviorStore(nil)
	base := time.Now()
	events := []struct {
		action domain.BehaviorAction
		plugin string
	}{
		{domain.ActionInstall, "a"},
		{domain.ActionInstall, "b"},
		{domain.ActionUninstall, "a"},
		{domain.ActionInstall, "c"},
	}
	for i, ev := range events {
		require.NoError(t, store.Append(domain.UserBehavior{
			UserID: "u9", Action: ev.action, PluginID: ev.plugin,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	installed := store.InstalledSet("u9")
	assert.False(t, installed["a"], "卸载过的插件不应在集合里")
	assert.True(t, installed["b"])
	assert.True(t, installed["c"])
}

func TestBehaviorStore_InvalidEvent(t *testing.T) {
	store := NewBehaviorStore(nil)
	assert.Error(t, store.Append(domain.UserBehavior{Action: domain.ActionView, PluginID: "p"}))
	assert.Error(t, store.Append(domain.UserBehavior{UserID: "u", Action: "poke", PluginID: "p"}))
}

// ============================================================================
//  并发安全与缓存指标
// ============================================================================

// 行为写入与协同过滤打分并发执行：相似度比较只能读取锁内快照，
// 另一侧的安装集合在打分期间随时会被改动
func TestConcurrentBehaviorWriteAndRecommend(t *testing.T) {
	e := NewEngine(NewBehaviorStore(nil), time.Hour)
	ctx := context.Background()
	catalog := testCatalog()

	// 预热：让写入方的安装集合先进入相似度比较的底料
	for _, id := range []string{"p.color", "p.theme"} {
		require.NoError(t, e.RecordUserBehavior(ctx, domain.UserBehavior{
			UserID: "writer", Action: domain.ActionInstall, PluginID: id,
		}))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 300; i++ {
			_ = e.RecordUserBehavior(ctx, domain.UserBehavior{
				UserID: "writer", Action: domain.ActionInstall,
				PluginID: fmt.Sprintf("p.extra%d", i),
			})
		}
	}()
	go func() {
		defer wg.Done()
		// 每次换用户绕开缓存，保证每轮都真正跑一遍相似度计算
		for i := 0; i < 300; i++ {
			_, err := e.Recommend(ctx, fmt.Sprintf("reader%d", i),
				[]string{"p.color", "p.theme"}, catalog, nil,
				domain.RecommendCollaborative, 10)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

// 首次计算记一次未命中，重复同参请求记一次命中
func TestRecommend_CacheCounters(t *testing.T) {
	e := NewEngine(NewBehaviorStore(nil), time.Hour)
	ctx := context.Background()

	hits := counterValue(t, harobserve.RecCacheHit)
	misses := counterValue(t, harobserve.RecCacheMiss)

	_, err := e.Recommend(ctx, "metered", nil, testCatalog(), nil, domain.RecommendPopularity, 5)
	require.NoError(t, err)
	assert.Equal(t, misses+1, counterValue(t, harobserve.RecCacheMiss))
	assert.Equal(t, hits, counterValue(t, harobserve.RecCacheHit))

	_, err = e.Recommend(ctx, "metered", nil, testCatalog(), nil, domain.RecommendPopularity, 5)
	require.NoError(t, err)
	assert.Equal(t, hits+1, counterValue(t, harobserve.RecCacheHit))
	assert.Equal(t, misses+1, counterValue(t, harobserve.RecCacheMiss))
}
