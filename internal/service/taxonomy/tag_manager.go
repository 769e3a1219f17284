// Package taxonomy file: internal/service/taxonomy/tag_manager.go
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
	// 标签直接命中标签词典时的固定置信度
	tagKeywordHitConfidence = 0.7
	// 相关标签扩散出的建议置信度
	relatedTagConfidence = 0.5
)

// TagManager 维护扁平的标签词表、每个标签的触发词典和"相关标签"邻接表。
//
// 邻接表是有向的：RelateTags(a, b) 只写入 a→b 一条边。种子词表里刻意
// 保留了若干不对称关系（例如 "pixel"→"art" 但 "art" 不回指 "pixel"）。
// 强行在写入侧补对称边会改变 SuggestTags 的扩散输出，因此这里保持原样。
type TagManager struct {
	mu       sync.RWMutex
	tags     map[string]domain.PluginTag
	keywords map[string][]string // 标签 → 触发词
	related  map[string][]string // 标签 → 相关标签（有向）
	stats    map[string]domain.TagStatistics

	minConfidence  float64
	maxSuggestions int
}

// NewTagManager 创建管理器并播种系统标签词表
func NewTagManager() *TagManager {
	m := &TagManager{
		tags:           make(map[string]domain.PluginTag),
		keywords:       make(map[string][]string),
		related:        make(map[string][]string),
		stats:          make(map[string]domain.TagStatistics),
		minConfidence:  defaultMinConfidence,
		maxSuggestions: defaultMaxSuggestions,
	}
	m.seedSystemTags()
	return m
}

// seedSystemTags 播种系统标签：软分组 + 触发词 + 有向的相关标签
func (m *TagManager) seedSystemTags() {
	type seed struct {
		name, group string
		keywords    []string
		related     []string
	}
	seeds := []seed{
		{"color", "design", []string{"color", "palette", "rgb", "hue"}, []string{"theme", "palette"}},
		{"palette", "design", []string{"palette", "swatch"}, []string{"color"}},
		{"theme", "design", []string{"theme", "skin", "dark", "light"}, []string{"color"}},
		{"pixel", "design", []string{"pixel", "sprite"}, []string{"art", "draw"}},
		{"art", "design", []string{"art", "draw", "paint"}, []string{"draw"}},
		{"draw", "design", []string{"draw", "brush", "canvas"}, []string{"art"}},
		{"code", "development", []string{"code", "syntax", "source"}, []string{"formatter", "editor"}},
		{"formatter", "development", []string{"format", "indent", "style"}, []string{"code"}},
		{"editor", "development", []string{"editor", "ide"}, []string{"code"}},
		{"test", "development", []string{"test", "mock", "coverage"}, []string{"code"}},
		{"game", "entertainment", []string{"game", "arcade", "puzzle"}, []string{"fun"}},
		{"fun", "entertainment", []string{"fun", "joke", "toy"}, nil},
		{"pet", "entertainment", []string{"pet", "desktop pet", "mascot"}, []string{"fun", "animation"}},
		{"animation", "entertainment", []string{"animation", "animate", "motion"}, nil},
		{"productivity", "productivity", []string{"todo", "note", "workflow", "efficiency"}, nil},
		{"backup", "utilities", []string{"backup", "restore", "archive"}, []string{"file"}},
		{"file", "utilities", []string{"file", "folder", "directory"}, nil},
		{"network", "utilities", []string{"network", "proxy", "http"}, nil},
	}
	for _, s := range seeds {
		m.tags[s.name] = domain.PluginTag{Name: s.name, Category: s.group}
		m.keywords[s.name] = s.keywords
		if len(s.related) > 0 {
			m.related[s.name] = s.related
		}
	}
}

// GetTags 返回全部标签，按名称排序
func (m *TagManager) GetTags() []domain.PluginTag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.PluginTag, 0, len(m.tags))
	for _, t := range m.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddTag 登记一个新标签
func (m *TagManager) AddTag(name, group string, keywords []string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("标签名不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tags[name]; exists {
		return fmt.Errorf("标签 '%s' 已存在", name)
	}
	m.tags[name] = domain.PluginTag{Name: name, Category: group}
	m.keywords[name] = keywords
	return nil
}

// RelateTags 写入一条有向的相关边 from→to；反向边由调用方自行决定是否补写
func (m *TagManager) RelateTags(from, to string) error {
	from = strings.ToLower(from)
	to = strings.ToLower(to)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tags[from]; !ok {
		return fmt.Errorf("标签 '%s' 不存在", from)
	}
	if _, ok := m.tags[to]; !ok {
		return fmt.Errorf("标签 '%s' 不存在", to)
	}
	for _, existing := range m.related[from] {
		if existing == to {
			return nil
		}
	}
	m.related[from] = append(m.related[from], to)
	return nil
}

// RelatedTags 返回 from 出发的相关标签（仅出边）
func (m *TagManager) RelatedTags(from string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.related[strings.ToLower(from)]))
	copy(out, m.related[strings.ToLower(from)])
	return out
}

// SuggestTags 为候选插件给出标签建议。三路来源：
//  1. 触发词扫描（名称命中记 2.0 分，其余 1.0 分），confidence = min(加权分/词数, 1)
//  2. 既有标签直接命中标签词典，固定置信度 0.7
//  3. 既有标签沿相关邻接表扩散一跳，置信度 0.5（已带的标签不再建议）
func (m *TagManager) SuggestTags(entry domain.PluginStoreEntry) []domain.TagSuggestion {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name := strings.ToLower(entry.Name)
	text := name + " " + strings.ToLower(entry.Description)
	existing := make(map[string]bool, len(entry.Tags))
	for _, t := range entry.Tags {
		existing[strings.ToLower(t)] = true
	}

	best := make(map[string]domain.TagSuggestion)

	for tag, words := range m.keywords {
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
			mergeTagSuggestion(best, domain.TagSuggestion{
				Tag:        tag,
				Confidence: confidence,
				Reason:     fmt.Sprintf("关键词命中: %s", strings.Join(hits, ", ")),
			})
		}
	}

	for lt := range existing {
		for tag, words := range m.keywords {
			for _, w := range words {
				if w == lt {
					mergeTagSuggestion(best, domain.TagSuggestion{
						Tag:        tag,
						Confidence: tagKeywordHitConfidence,
						Reason:     fmt.Sprintf("既有标签 '%s' 命中词典", lt),
					})
					break
				}
			}
		}
		for _, rel := range m.related[lt] {
			if existing[rel] {
				continue
			}
			mergeTagSuggestion(best, domain.TagSuggestion{
				Tag:        rel,
				Confidence: relatedTagConfidence,
				Reason:     fmt.Sprintf("与既有标签 '%s' 相关", lt),
			})
		}
	}

	out := make([]domain.TagSuggestion, 0, len(best))
	for _, s := range best {
		// 已带的标签不再建议
		if existing[s.Tag] {
			continue
		}
		if s.Confidence >= m.minConfidence {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Tag < out[j].Tag
	})
	if len(out) > m.maxSuggestions {
		out = out[:m.maxSuggestions]
	}
	return out
}

func mergeTagSuggestion(best map[string]domain.TagSuggestion, s domain.TagSuggestion) {
	if prev, ok := best[s.Tag]; !ok || s.Confidence > prev.Confidence {
		best[s.Tag] = s
	}
}

// UpdateStatistics 用一份新鲜的插件清单全量重算标签统计，
// 同时刷新每个标签的 UsageCount 与 TrendingScore。快照整体替换。
func (m *TagManager) UpdateStatistics(entries []domain.PluginStoreEntry) {
	now := time.Now()
	members := make(map[string][]domain.PluginStoreEntry)
	for _, e := range entries {
		for _, t := range e.Tags {
			lt := strings.ToLower(t)
			members[lt] = append(members[lt], e)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := make(map[string]domain.TagStatistics)
	type rankEntry struct {
		tag   string
		usage int
	}
	var ranking []rankEntry

	for tag := range m.tags {
		list, ok := members[tag]
		if !ok {
			// 无成员的标签移除快照并清零使用量
			t := m.tags[tag]
			t.UsageCount = 0
			t.TrendingScore = 0
			m.tags[tag] = t
			continue
		}
		var totalDownloads int64
		var ratingSum float64
		for _, e := range list {
			totalDownloads += e.DownloadCount
			ratingSum += e.Rating
		}
		trending := trendingScore(list, 0.3, false, now)
		fresh[tag] = domain.TagStatistics{
			Tag:            tag,
			PluginCount:    len(list),
			TotalDownloads: totalDownloads,
			AverageRating:  ratingSum / float64(len(list)),
			TrendingScore:  trending,
			UpdatedAt:      now,
		}
		t := m.tags[tag]
		t.UsageCount = len(list)
		t.TrendingScore = trending
		m.tags[tag] = t
		ranking = append(ranking, rankEntry{tag, len(list)})
	}

	// 人气名次：按使用次数降序，1 起
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].usage > ranking[j].usage
	})
	for rank, r := range ranking {
		s := fresh[r.tag]
		s.PopularityRank = rank + 1
		fresh[r.tag] = s
	}

	m.stats = fresh
	log.Printf("📊 [Taxonomy] 标签统计已重算，共 %d 个在用标签", len(fresh))
}

// GetStatistics 取某个标签的统计快照
func (m *TagManager) GetStatistics(tag string) (domain.TagStatistics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[strings.ToLower(tag)]
	return s, ok
}
