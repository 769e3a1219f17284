// Package domain file: internal/core/domain/search_models.go
package domain

import "time"

// SortBy 搜索结果排序字段
type SortBy string

const (
	SortByRelevance SortBy = "relevance" // 相关性（无关键字时退化为综合质量分）
	SortByName      SortBy = "name"
	SortByRating    SortBy = "rating"
	SortByDownloads SortBy = "downloads"
	SortByPublished SortBy = "published"
	SortByUpdated   SortBy = "updated"
)

// SortOrder 排序方向
type SortOrder string

const (
	SortAscending  SortOrder = "ascending"
	SortDescending SortOrder = "descending"
)

// PluginSearchFilter 搜索过滤条件。
// 所有条件按合取组合；未设置的边界视为恒真。
type PluginSearchFilter struct {
	Categories     []string   `json:"categories"`       // 分类白名单
	Tags           []string   `json:"tags"`             // 标签白名单（命中任一即通过）
	Authors        []string   `json:"authors"`          // 作者白名单
	Platforms      []string   `json:"platforms"`        // 平台白名单
	Licenses       []string   `json:"licenses"`         // 许可证白名单
	MinRating      *float64   `json:"min_rating"`       // 评分下限
	MaxRating      *float64   `json:"max_rating"`       // 评分上限
	MinDownloads   *int64     `json:"min_downloads"`    // 下载量下限
	MaxDownloads   *int64     `json:"max_downloads"`    // 下载量上限
	VerifiedOnly   bool       `json:"verified_only"`    // 仅校验通过的
	FeaturedOnly   bool       `json:"featured_only"`    // 仅编辑推荐的
	HasDocs        bool       `json:"has_docs"`         // 仅带文档的
	HasScreenshots bool       `json:"has_screenshots"`  // 仅带截图的
	PublishedAfter *time.Time `json:"published_after"`  // 发布时间窗口下界
	UpdatedAfter   *time.Time `json:"updated_after"`    // 更新时间窗口下界

	// IncludePrerelease 允许远端商店返回预发布版本。
	// 本地缓存条目不携带稳定性标记，该开关只影响远端查询。
	IncludePrerelease bool `json:"include_prerelease"`
}

// PluginSearchQuery 一次搜索的全部参数，纯值对象，每次调用重建
type PluginSearchQuery struct {
	Keyword   string              `json:"keyword"`
	Filter    *PluginSearchFilter `json:"filter"`
	SortBy    SortBy              `json:"sort_by"`
	SortOrder SortOrder           `json:"sort_order"`
	Offset    int                 `json:"offset"`
	Limit     int                 `json:"limit"`
}

// Normalize 填充排序与分页的缺省值，返回修正后的副本
func (q PluginSearchQuery) Normalize() PluginSearchQuery {
	if q.SortBy == "" {
		q.SortBy = SortByRelevance
	}
	if q.SortOrder == "" {
		q.SortOrder = SortDescending
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return q
}

// PluginSearchResult 一次搜索的完整返回。
// TotalCount 是分页前的命中总数；HasMore 据此推导。
type PluginSearchResult struct {
	Plugins     []PluginStoreEntry  `json:"plugins"`
	TotalCount  int                 `json:"total_count"`
	Suggestions []string            `json:"suggestions"`
	Facets      map[string][]string `json:"facets"` // 维度名 → 按计数降序的 "value (count)" 串
	SearchTime  time.Duration       `json:"search_time"`
}

// HasMore 是否还有后续分页
func (r PluginSearchResult) HasMore(offset int) bool {
	return offset+len(r.Plugins) < r.TotalCount
}

// SuggestionType 自动补全建议的来源类型
type SuggestionType string

const (
	SuggestionHistory  SuggestionType = "history"  // 历史搜索词
	SuggestionCategory SuggestionType = "category" // 分类名
	SuggestionTag      SuggestionType = "tag"      // 标签名
	SuggestionAuthor   SuggestionType = "author"   // 作者名
	SuggestionPlugin   SuggestionType = "plugin"   // 插件名
)

// SearchSuggestion 一条自动补全建议
type SearchSuggestion struct {
	Text  string         `json:"text"`
	Type  SuggestionType `json:"type"`
	Score float64        `json:"score"`
}
