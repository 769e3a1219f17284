// Package search_engine file: internal/service/search_engine/query.go
package search_engine

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"PluginHarbor/internal/core/domain"
)

// 相关性打分权重。多路命中是累加关系而非互斥关系，总分封顶 1.0。
const (
	weightNameExact     = 0.4
	weightNamePrefix    = 0.3
	weightNameSubstring = 0.2
	weightDescSubstring = 0.2
	weightTagSubstring  = 0.2
	weightCategorySub   = 0.1
	weightAuthorSub     = 0.1
	weightFuzzy         = 0.1
)

// scoredEntry 过滤后的候选条目及其相关性分值
type scoredEntry struct {
	entry domain.PluginStoreEntry
	score float64
}

// Search 在给定候选集上执行一次过滤、打分、排序、分面、分页的完整搜索。
// 打分过程中的任何 panic 都降级为空结果集（TotalCount=0），耗时照常上报；
// 调用方必须把空结果理解为"无命中或瞬时故障"，而不是硬错误。
func (e *Engine) Search(entries []domain.PluginStoreEntry, query domain.PluginSearchQuery) (result *domain.PluginSearchResult) {
	start := time.Now()
	query = query.Normalize()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ [SearchEngine] 搜索过程发生异常，已降级为空结果: %v", r)
			result = &domain.PluginSearchResult{
				Plugins:    []domain.PluginStoreEntry{},
				TotalCount: 0,
				Facets:     map[string][]string{},
				SearchTime: time.Since(start),
			}
		}
	}()

	// 1. 过滤：所有条件按合取组合
	filtered := make([]domain.PluginStoreEntry, 0, len(entries))
	for _, entry := range entries {
		if matchesFilter(entry, query.Filter) {
			filtered = append(filtered, entry)
		}
	}

	// 2. 关键字打分，零分条目剔除
	keyword := strings.TrimSpace(strings.ToLower(query.Keyword))
	scored := make([]scoredEntry, 0, len(filtered))
	for _, entry := range filtered {
		s := scoredEntry{entry: entry}
		if keyword != "" {
			s.score = relevanceScore(entry, keyword)
			if s.score <= 0 {
				continue
			}
		}
		scored = append(scored, s)
	}

	// 3. 排序
	sortEntries(scored, query.SortBy, query.SortOrder, keyword != "")

	// 5. 分面统计基于过滤后、分页前的全集
	facets := buildFacets(scoredEntries(scored))

	// 4. 分页永远在排序之后
	total := len(scored)
	page := paginate(scored, query.Offset, query.Limit)
	plugins := make([]domain.PluginStoreEntry, 0, len(page))
	for _, s := range page {
		plugins = append(plugins, s.entry)
	}

	// 6. 记录搜索历史
	if keyword != "" {
		e.recordSearch(keyword)
	}

	return &domain.PluginSearchResult{
		Plugins:    plugins,
		TotalCount: total,
		Facets:     facets,
		SearchTime: time.Since(start),
	}
}

// matchesFilter 逐条谓词检查；未设置的边界恒为真
func matchesFilter(entry domain.PluginStoreEntry, f *domain.PluginSearchFilter) bool {
	if f == nil {
		return true
	}
	if len(f.Categories) > 0 && !containsFold(f.Categories, entry.Category) {
		return false
	}
	if len(f.Tags) > 0 {
		hit := false
		for _, want := range f.Tags {
			if entry.HasTag(want) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if len(f.Authors) > 0 && !containsFold(f.Authors, entry.Author) {
		return false
	}
	if len(f.Platforms) > 0 {
		hit := false
		for _, want := range f.Platforms {
			if containsFold(entry.Platforms, want) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if len(f.Licenses) > 0 && !containsFold(f.Licenses, entry.License) {
		return false
	}
	if f.MinRating != nil && entry.Rating < *f.MinRating {
		return false
	}
	if f.MaxRating != nil && entry.Rating > *f.MaxRating {
		return false
	}
	if f.MinDownloads != nil && entry.DownloadCount < *f.MinDownloads {
		return false
	}
	if f.MaxDownloads != nil && entry.DownloadCount > *f.MaxDownloads {
		return false
	}
	if f.VerifiedOnly && !entry.IsVerified {
		return false
	}
	if f.FeaturedOnly && !entry.IsFeatured {
		return false
	}
	if f.HasDocs && !entry.HasDocs {
		return false
	}
	if f.HasScreenshots && !entry.HasScreenshots {
		return false
	}
	if f.PublishedAfter != nil {
		if entry.PublishedAt == nil || entry.PublishedAt.Before(*f.PublishedAfter) {
			return false
		}
	}
	if f.UpdatedAfter != nil {
		if entry.UpdatedAt == nil || entry.UpdatedAt.Before(*f.UpdatedAfter) {
			return false
		}
	}
	return true
}

func containsFold(list []string, target string) bool {
	for _, item := range list {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}

// relevanceScore 计算条目对关键字的相关性。
// 各路命中累加，而非择优：一个条目可以同时吃到前缀分和描述分。
func relevanceScore(entry domain.PluginStoreEntry, keyword string) float64 {
	name := strings.ToLower(entry.Name)
	score := 0.0

	switch {
	case name == keyword:
		score += weightNameExact
	case strings.HasPrefix(name, keyword):
		score += weightNamePrefix
	case strings.Contains(name, keyword):
		score += weightNameSubstring
	}
	if strings.Contains(strings.ToLower(entry.Description), keyword) {
		score += weightDescSubstring
	}
	for _, tag := range entry.Tags {
		if strings.Contains(strings.ToLower(tag), keyword) {
			score += weightTagSubstring
			break
		}
	}
	if entry.Category != "" && strings.Contains(strings.ToLower(entry.Category), keyword) {
		score += weightCategorySub
	}
	if entry.Author != "" && strings.Contains(strings.ToLower(entry.Author), keyword) {
		score += weightAuthorSub
	}

	// 编辑距离模糊加成：0.1 的权重天然压制无关匹配，不设阈值
	score += FuzzyScore(name, keyword) * weightFuzzy

	return math.Min(score, 1.0)
}

// QualityScore 无关键字时 relevance 排序的退化形态：综合质量分。
// 0.3×(评分/5) + 0.3×min(下载/10000,1) + 0.2×已校验 + 0.1×编辑推荐 + 时间衰减的新鲜度加成。
func QualityScore(entry domain.PluginStoreEntry, now time.Time) float64 {
	score := 0.3 * (entry.Rating / 5.0)
	score += 0.3 * math.Min(float64(entry.DownloadCount)/10000.0, 1.0)
	if entry.IsVerified {
		score += 0.2
	}
	if entry.IsFeatured {
		score += 0.1
	}
	if entry.UpdatedAt != nil {
		age := now.Sub(*entry.UpdatedAt)
		switch {
		case age < 30*24*time.Hour:
			score += 0.1
		case age < 90*24*time.Hour:
			score += 0.05
		}
	}
	return score
}

// sortEntries 按请求字段排序。relevance 且无关键字 → 退化为综合质量分。
func sortEntries(scored []scoredEntry, by domain.SortBy, order domain.SortOrder, hasKeyword bool) {
	now := time.Now()
	less := func(a, b scoredEntry) bool {
		switch by {
		case domain.SortByName:
			return strings.ToLower(a.entry.Name) < strings.ToLower(b.entry.Name)
		case domain.SortByRating:
			return a.entry.Rating < b.entry.Rating
		case domain.SortByDownloads:
			return a.entry.DownloadCount < b.entry.DownloadCount
		case domain.SortByPublished:
			return lessTime(a.entry.PublishedAt, b.entry.PublishedAt)
		case domain.SortByUpdated:
			return lessTime(a.entry.UpdatedAt, b.entry.UpdatedAt)
		default: // relevance
			if hasKeyword {
				return a.score < b.score
			}
			return QualityScore(a.entry, now) < QualityScore(b.entry, now)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if order == domain.SortAscending {
			return less(scored[i], scored[j])
		}
		return less(scored[j], scored[i])
	})
}

// lessTime nil 时间恒排在最后（视为最小）
func lessTime(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}

// paginate 对已排序的全集取 [offset, offset+limit) 窗口
func paginate(scored []scoredEntry, offset, limit int) []scoredEntry {
	if offset >= len(scored) {
		return nil
	}
	end := offset + limit
	if end > len(scored) {
		end = len(scored)
	}
	return scored[offset:end]
}

func scoredEntries(scored []scoredEntry) []domain.PluginStoreEntry {
	out := make([]domain.PluginStoreEntry, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.entry)
	}
	return out
}

// buildFacets 为每个分面维度统计过滤后全集的取值分布，
// 按计数降序取前 facetTopN 个，渲染为 "value (count)"。
func buildFacets(entries []domain.PluginStoreEntry) map[string][]string {
	counts := map[string]map[string]int{
		"category": {},
		"tag":      {},
		"author":   {},
		"platform": {},
		"license":  {},
	}

	for _, entry := range entries {
		if entry.Category != "" {
			counts["category"][entry.Category]++
		}
		for _, tag := range entry.Tags {
			counts["tag"][tag]++
		}
		if entry.Author != "" {
			counts["author"][entry.Author]++
		}
		for _, p := range entry.Platforms {
			counts["platform"][p]++
		}
		if entry.License != "" {
			counts["license"][entry.License]++
		}
	}

	facets := make(map[string][]string, len(counts))
	for dim, values := range counts {
		type vc struct {
			value string
			count int
		}
		ranked := make([]vc, 0, len(values))
		for v, c := range values {
			ranked = append(ranked, vc{v, c})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].count != ranked[j].count {
				return ranked[i].count > ranked[j].count
			}
			return ranked[i].value < ranked[j].value
		})
		if len(ranked) > facetTopN {
			ranked = ranked[:facetTopN]
		}
		rendered := make([]string, 0, len(ranked))
		for _, r := range ranked {
			rendered = append(rendered, fmt.Sprintf("%s (%d)", r.value, r.count))
		}
		facets[dim] = rendered
	}
	return facets
}
