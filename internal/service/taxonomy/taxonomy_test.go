// file: internal/service/taxonomy/taxonomy_test.go
package taxonomy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PluginHarbor/internal/core/domain"
)

func timePtr(t time.Time) *time.Time { return &t }

// ============================================================================
//  分类树结构
// ============================================================================

func TestCategoryTree_SeededForest(t *testing.T) {
	m := NewCategoryManager()
	tree := m.GetCategoryTree()
	require.NotEmpty(t, tree)

	byID := make(map[string]domain.PluginCategory)
	for _, c := range tree {
		byID[c.ID] = c
		assert.True(t, c.IsSystem, "种子分类必须是系统分类")
	}
	// 子节点层级恒等于父节点+1
	for _, c := range tree {
		if c.ParentID != "" {
			parent, ok := byID[c.ParentID]
			require.True(t, ok, "父分类 '%s' 必须存在", c.ParentID)
			assert.Equal(t, parent.Level+1, c.Level)
		} else {
			assert.Equal(t, 0, c.Level)
		}
	}
}

func TestAddCategory_LevelAndValidation(t *testing.T) {
	m := NewCategoryManager()

	require.NoError(t, m.AddCategory("design.fonts", "字体工具", "design", 9, []string{"font", "typeface"}))
	c, ok := m.GetCategory("design.fonts")
	require.True(t, ok)
	assert.Equal(t, 1, c.Level)
	assert.False(t, c.IsSystem)

	// 三层嵌套在结构上合法
	require.NoError(t, m.AddCategory("design.fonts.mono", "等宽字体", "design.fonts", 1, nil))
	c, _ = m.GetCategory("design.fonts.mono")
	assert.Equal(t, 2, c.Level)

	assert.Error(t, m.AddCategory("x", "孤儿", "no-such-parent", 1, nil))
	assert.Error(t, m.AddCategory("design", "重复", "", 1, nil))
}

func TestDeleteCategory_SystemProtected(t *testing.T) {
	m := NewCategoryManager()
	assert.Error(t, m.DeleteCategory("design"), "系统分类不可删除")

	require.NoError(t, m.AddCategory("custom", "自定义", "", 9, nil))
	require.NoError(t, m.DeleteCategory("custom"))
	_, ok := m.GetCategory("custom")
	assert.False(t, ok)
}

// ============================================================================
//  分类建议
// ============================================================================

func TestSuggestCategories_KeywordAndTagPaths(t *testing.T) {
	m := NewCategoryManager()
	entry := domain.PluginStoreEntry{
		Name:        "Color Palette Studio",
		Description: "a palette and theme tool for designers",
		Tags:        []string{"color"},
	}

	got := m.SuggestCategories(entry)
	require.NotEmpty(t, got)
	assert.Equal(t, "design", got[0].CategoryID, "design 应当是最强建议")

	for _, s := range got {
		assert.GreaterOrEqual(t, s.Confidence, m.minConfidence)
		assert.LessOrEqual(t, s.Confidence, 1.0, "置信度必须封顶 1.0")
	}
	assert.LessOrEqual(t, len(got), m.maxSuggestions)

	// 同一分类多路命中时只保留一条（按ID去重）
	seen := map[string]bool{}
	for _, s := range got {
		assert.False(t, seen[s.CategoryID], "分类 '%s' 重复出现", s.CategoryID)
		seen[s.CategoryID] = true
	}
}

func TestSuggestCategories_NoMatch(t *testing.T) {
	m := NewCategoryManager()
	got := m.SuggestCategories(domain.PluginStoreEntry{Name: "qqqq", Description: "wwww"})
	assert.Empty(t, got)
}

// ============================================================================
//  标签建议与有向邻接
// ============================================================================

func TestSuggestTags_RelatedPropagation(t *testing.T) {
	m := NewTagManager()
	entry := domain.PluginStoreEntry{
		Name: "Sprite Tool", Description: "sprite sheet helper",
		Tags: []string{"pixel"},
	}

	got := m.SuggestTags(entry)
	require.NotEmpty(t, got)

	byTag := make(map[string]domain.TagSuggestion)
	for _, s := range got {
		byTag[s.Tag] = s
		assert.LessOrEqual(t, s.Confidence, 1.0)
		assert.NotContains(t, []string{"pixel"}, s.Tag, "已带的标签不应再被建议")
	}
	// "pixel" 的出边指向 art/draw，应以 0.5 置信度出现
	rel, ok := byTag["art"]
	require.True(t, ok, "相关标签 art 应被扩散出来")
	assert.InDelta(t, relatedTagConfidence, rel.Confidence, 1e-9)
}

func TestRelateTags_Directed(t *testing.T) {
	m := NewTagManager()
	require.NoError(t, m.RelateTags("fun", "game"))

	assert.Contains(t, m.RelatedTags("fun"), "game")
	// 刻意不对称：反向边不会被自动补写
	assert.NotContains(t, m.RelatedTags("game"), "fun")

	assert.Error(t, m.RelateTags("fun", "no-such-tag"))
}

// ============================================================================
//  统计快照
// ============================================================================

func statEntries(now time.Time) []domain.PluginStoreEntry {
	return []domain.PluginStoreEntry{
		{ID: "a", Category: "design", Tags: []string{"color"}, Rating: 4.0, DownloadCount: 1000,
			IsVerified: true, UpdatedAt: timePtr(now.AddDate(0, 0, -3))},
		{ID: "b", Category: "design", Tags: []string{"color", "theme"}, Rating: 3.0, DownloadCount: 500},
		{ID: "c", Category: "development", Tags: []string{"code"}, Rating: 5.0, DownloadCount: 200},
	}
}

func TestCategoryStatistics_RecomputeAndRank(t *testing.T) {
	m := NewCategoryManager()
	now := time.Now()
	m.UpdateStatistics(statEntries(now))

	design, ok := m.GetStatistics("design")
	require.True(t, ok)
	assert.Equal(t, 2, design.PluginCount)
	assert.Equal(t, int64(1500), design.TotalDownloads)
	assert.InDelta(t, 3.5, design.AverageRating, 1e-9)
	assert.Equal(t, 1, design.PopularityRank, "总下载量最高的分类名次应为 1")

	dev, ok := m.GetStatistics("development")
	require.True(t, ok)
	assert.Equal(t, 2, dev.PopularityRank)

	// 无成员的分类不产出快照
	_, ok = m.GetStatistics("entertainment")
	assert.False(t, ok)

	// 重算是整体替换：成员清零后快照消失
	m.UpdateStatistics(nil)
	_, ok = m.GetStatistics("design")
	assert.False(t, ok)
}

func TestTagStatistics_UsageAndRank(t *testing.T) {
	m := NewTagManager()
	now := time.Now()
	m.UpdateStatistics(statEntries(now))

	color, ok := m.GetStatistics("color")
	require.True(t, ok)
	assert.Equal(t, 2, color.PluginCount)
	assert.Equal(t, 1, color.PopularityRank, "使用次数最多的标签名次应为 1")
	assert.Greater(t, color.TrendingScore, 0.0)

	// UsageCount 回写到标签本体
	for _, tag := range m.GetTags() {
		if tag.Name == "color" {
			assert.Equal(t, 2, tag.UsageCount)
		}
		if tag.Name == "game" {
			assert.Equal(t, 0, tag.UsageCount)
		}
	}
}

func TestFreshnessBonus_Tiers(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0.3, freshnessBonus(timePtr(now.AddDate(0, 0, -1)), now))
	assert.Equal(t, 0.2, freshnessBonus(timePtr(now.AddDate(0, 0, -15)), now))
	assert.Equal(t, 0.1, freshnessBonus(timePtr(now.AddDate(0, 0, -60)), now))
	assert.Equal(t, 0.0, freshnessBonus(timePtr(now.AddDate(0, -6, 0)), now))
	assert.Equal(t, 0.0, freshnessBonus(nil, now))
}
