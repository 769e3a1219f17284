// Package taxonomy file: internal/service/taxonomy/category_manager.go
package taxonomy

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"PluginHarbor/internal/core/domain"
)

const (
	defaultMinConfidence  = 0.3
	defaultMaxSuggestions = 5

	// 标签直接命中分类关键词集时的固定置信度
	categoryTagHitConfidence = 0.8
)

// CategoryManager 维护系统分类树、每个节点的触发词典和派生统计快照。
// 系统内置的分类只有两层（根 + 一层子类），但结构上允许更深的嵌套。
type CategoryManager struct {
	mu         sync.RWMutex
	categories map[string]domain.PluginCategory
	keywords   map[string][]string // categoryID → 触发词
	stats      map[string]domain.CategoryStatistics

	minConfidence  float64
	maxSuggestions int
}

// NewCategoryManager 创建管理器并播种系统分类
func NewCategoryManager() *CategoryManager {
	m := &CategoryManager{
		categories:     make(map[string]domain.PluginCategory),
		keywords:       make(map[string][]string),
		stats:          make(map[string]domain.CategoryStatistics),
		minConfidence:  defaultMinConfidence,
		maxSuggestions: defaultMaxSuggestions,
	}
	m.seedSystemCategories()
	return m
}

// seedSystemCategories 播种固定的两层系统分类树及其触发词典
func (m *CategoryManager) seedSystemCategories() {
	type seed struct {
		id, name, parent string
		sortOrder        int
		keywords         []string
	}
	seeds := []seed{
		{"development", "开发工具", "", 1, []string{"code", "debug", "compiler", "formatter", "lint", "git", "api", "sdk"}},
		{"development.editors", "编辑器增强", "development", 1, []string{"editor", "syntax", "highlight", "snippet", "autocomplete"}},
		{"development.testing", "测试工具", "development", 2, []string{"test", "mock", "coverage", "benchmark", "assert"}},
		{"design", "设计创作", "", 2, []string{"design", "color", "palette", "draw", "paint", "icon", "font", "theme"}},
		{"design.drawing", "绘图工具", "design", 1, []string{"draw", "brush", "canvas", "sketch", "pixel"}},
		{"design.assets", "素材资源", "design", 2, []string{"icon", "font", "sticker", "wallpaper", "asset"}},
		{"productivity", "效率办公", "", 3, []string{"todo", "note", "calendar", "reminder", "clipboard", "shortcut", "workflow"}},
		{"entertainment", "休闲娱乐", "", 4, []string{"game", "music", "pet", "animation", "fun", "puzzle"}},
		{"entertainment.games", "小游戏", "entertainment", 1, []string{"game", "arcade", "puzzle", "score"}},
		{"utilities", "系统工具", "", 5, []string{"system", "monitor", "network", "file", "backup", "clean", "convert"}},
	}
	for _, s := range seeds {
		level := 0
		if s.parent != "" {
			level = 1
		}
		m.categories[s.id] = domain.PluginCategory{
			ID:        s.id,
			Name:      s.name,
			ParentID:  s.parent,
			Level:     level,
			SortOrder: s.sortOrder,
			IsSystem:  true,
		}
		m.keywords[s.id] = s.keywords
	}
}

// GetCategoryTree 返回全部分类，按 (Level, SortOrder, ID) 排序
func (m *CategoryManager) GetCategoryTree() []domain.PluginCategory {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.PluginCategory, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetCategory 按ID取单个分类
func (m *CategoryManager) GetCategory(id string) (domain.PluginCategory, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	return c, ok
}

// AddCategory 新增自定义分类。父节点必须已存在；层级恒等于父层级+1，
// 新节点持有新ID，不可能构成环。
func (m *CategoryManager) AddCategory(id, name, parentID string, sortOrder int, keywords []string) error {
	if id == "" || name == "" {
		return fmt.Errorf("分类 id 和 name 不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.categories[id]; exists {
		return fmt.Errorf("分类 '%s' 已存在", id)
	}
	level := 0
	if parentID != "" {
		parent, ok := m.categories[parentID]
		if !ok {
			return fmt.Errorf("父分类 '%s' 不存在", parentID)
		}
		level = parent.Level + 1
	}

	m.categories[id] = domain.PluginCategory{
		ID: id, Name: name, ParentID: parentID,
		Level: level, SortOrder: sortOrder,
	}
	m.keywords[id] = keywords
	log.Printf("✅ [Taxonomy] 已新增分类 '%s' (level=%d)", id, level)
	return nil
}

// DeleteCategory 删除自定义分类。系统内置分类不可删除。
func (m *CategoryManager) DeleteCategory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.categories[id]
	if !ok {
		return fmt.Errorf("分类 '%s' 不存在", id)
	}
	if c.IsSystem {
		return fmt.Errorf("系统内置分类 '%s' 不可删除", id)
	}
	for _, other := range m.categories {
		if other.ParentID == id {
			return fmt.Errorf("分类 '%s' 仍有子分类，不可删除", id)
		}
	}
	delete(m.categories, id)
	delete(m.keywords, id)
	delete(m.stats, id)
	return nil
}

// SuggestCategories 为候选插件给出分类建议。
// 两路来源：触发词扫描（名称命中记 2.0 分，其余 1.0 分）和
// 既有标签对触发词集的直接命中（固定置信度 0.8）；
// 合并后按节点去重、置信度降序、minConfidence 过滤、截断。
func (m *CategoryManager) SuggestCategories(entry domain.PluginStoreEntry) []domain.CategorySuggestion {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name := strings.ToLower(entry.Name)
	text := name + " " + strings.ToLower(entry.Description)
	best := make(map[string]domain.CategorySuggestion)

	for id, words := range m.keywords {
		if len(words) == 0 {
			continue
		}
		var total float64
		var hits []string
		for _, w := range words {
			if strings.Contains(name, w) {
				total += 2.0
				hits = append(hits, w)
			} else if strings.Contains(text, w) {
				total += 1.0
				hits = append(hits, w)
			}
		}
		if total > 0 {
			confidence := total / float64(len(words))
			if confidence > 1 {
				confidence = 1
			}
			mergeCategorySuggestion(best, domain.CategorySuggestion{
				CategoryID: id,
				Name:       m.categories[id].Name,
				Confidence: confidence,
				Reason:     fmt.Sprintf("关键词命中: %s", strings.Join(hits, ", ")),
			})
		}
	}

	for _, tag := range entry.Tags {
		lt := strings.ToLower(tag)
		for id, words := range m.keywords {
			for _, w := range words {
				if w == lt {
					mergeCategorySuggestion(best, domain.CategorySuggestion{
						CategoryID: id,
						Name:       m.categories[id].Name,
						Confidence: categoryTagHitConfidence,
						Reason:     fmt.Sprintf("标签 '%s' 命中分类词典", tag),
					})
					break
				}
			}
		}
	}

	out := make([]domain.CategorySuggestion, 0, len(best))
	for _, s := range best {
		if s.Confidence >= m.minConfidence {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	if len(out) > m.maxSuggestions {
		out = out[:m.maxSuggestions]
	}
	return out
}

// mergeCategorySuggestion 同一节点保留置信度更高的那条
func mergeCategorySuggestion(best map[string]domain.CategorySuggestion, s domain.CategorySuggestion) {
	if prev, ok := best[s.CategoryID]; !ok || s.Confidence > prev.Confidence {
		best[s.CategoryID] = s
	}
}

// UpdateStatistics 用一份新鲜的插件清单全量重算分类统计。
// 快照只整体替换或移除，绝不增量修补。
func (m *CategoryManager) UpdateStatistics(entries []domain.PluginStoreEntry) {
	now := time.Now()
	members := make(map[string][]domain.PluginStoreEntry)
	for _, e := range entries {
		if e.Category != "" {
			c := strings.ToLower(e.Category)
			members[c] = append(members[c], e)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := make(map[string]domain.CategoryStatistics)
	type rankEntry struct {
		id        string
		downloads int64
	}
	var ranking []rankEntry

	for id := range m.categories {
		list, ok := members[id]
		if !ok {
			continue // 无成员的分类移除快照
		}
		var totalDownloads int64
		var ratingSum float64
		for _, e := range list {
			totalDownloads += e.DownloadCount
			ratingSum += e.Rating
		}
		fresh[id] = domain.CategoryStatistics{
			CategoryID:     id,
			PluginCount:    len(list),
			TotalDownloads: totalDownloads,
			AverageRating:  ratingSum / float64(len(list)),
			TrendingScore:  trendingScore(list, 0.2, true, now),
			UpdatedAt:      now,
		}
		ranking = append(ranking, rankEntry{id, totalDownloads})
	}

	// 人气名次：按总下载量降序，1 起，平局按迭代顺序不另行处理
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].downloads > ranking[j].downloads
	})
	for rank, r := range ranking {
		s := fresh[r.id]
		s.PopularityRank = rank + 1
		fresh[r.id] = s
	}

	m.stats = fresh
	log.Printf("📊 [Taxonomy] 分类统计已重算，共 %d 个有成员的分类", len(fresh))
}

// GetStatistics 取某个分类的统计快照
func (m *CategoryManager) GetStatistics(id string) (domain.CategoryStatistics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[id]
	return s, ok
}
