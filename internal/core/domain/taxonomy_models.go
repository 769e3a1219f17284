// Package domain file: internal/core/domain/taxonomy_models.go
package domain

import "time"

// PluginCategory 分类树上的一个节点。
// 层级结构是森林（无环）；子节点的 Level 恒等于父节点 Level+1。
// 系统内置的分类（IsSystem=true）不可删除。
type PluginCategory struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ParentID  string `json:"parent_id"` // 空串表示根节点
	Level     int    `json:"level"`     // 根为 0
	SortOrder int    `json:"sort_order"`
	IsSystem  bool   `json:"is_system"`
}

// PluginTag 扁平标签。Name 即唯一标识。
// 标签间通过显式的"相关标签"邻接表互相关联；该邻接表是有向的，
// "a 关联 b" 不保证 "b 关联 a"（写入侧单向维护，刻意不强制对称）。
type PluginTag struct {
	Name          string  `json:"name"`
	Category      string  `json:"category"` // 软分组，仅用于展示，可为空
	UsageCount    int     `json:"usage_count"`
	TrendingScore float64 `json:"trending_score"`
}

// CategoryStatistics 分类维度的派生统计快照。
// 非权威状态，可随时丢弃并从目录全量重算。
type CategoryStatistics struct {
	CategoryID     string    `json:"category_id"`
	PluginCount    int       `json:"plugin_count"`
	TotalDownloads int64     `json:"total_downloads"`
	AverageRating  float64   `json:"average_rating"`
	TrendingScore  float64   `json:"trending_score"`
	PopularityRank int       `json:"popularity_rank"` // 按总下载量排序的名次，1 起
	UpdatedAt      time.Time `json:"updated_at"`
}

// TagStatistics 标签维度的派生统计快照，语义同 CategoryStatistics
type TagStatistics struct {
	Tag            string    `json:"tag"`
	PluginCount    int       `json:"plugin_count"`
	TotalDownloads int64     `json:"total_downloads"`
	AverageRating  float64   `json:"average_rating"`
	TrendingScore  float64   `json:"trending_score"`
	PopularityRank int       `json:"popularity_rank"` // 按使用次数排序的名次，1 起
	UpdatedAt      time.Time `json:"updated_at"`
}

// CategorySuggestion 针对候选插件的分类建议
type CategorySuggestion struct {
	CategoryID string  `json:"category_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"` // [0,1]
	Reason     string  `json:"reason"`
}

// TagSuggestion 针对候选插件的标签建议
type TagSuggestion struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"` // [0,1]
	Reason     string  `json:"reason"`
}
