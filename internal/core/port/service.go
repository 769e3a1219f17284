// Package port file: internal/core/port/service.go
package port

import (
	"context"
	"io"
	"time"

	"PluginHarbor/internal/core/domain"
)

// PluginDiscoveryService 是 UI/HTTP 层消费的聚合检索门面。
// 具体实现为 store_manager.Manager。
type PluginDiscoveryService interface {
	SearchPlugins(ctx context.Context, query domain.PluginSearchQuery) (*domain.PluginSearchResult, error)
	GetPluginDetails(ctx context.Context, pluginID string) (*domain.PluginStoreEntry, error)
	GetFeaturedPlugins(ctx context.Context, limit int) ([]domain.PluginStoreEntry, error)
	GetLatestPlugins(ctx context.Context, limit int) ([]domain.PluginStoreEntry, error)
	DownloadPlugin(ctx context.Context, pluginID, version string, progress DownloadProgress) (io.ReadCloser, error)
	GetSuggestions(ctx context.Context, query string) ([]domain.SearchSuggestion, error)
}

// RecommendationService 个性化推荐能力
type RecommendationService interface {
	GetRecommendations(ctx context.Context, userID string, installed []string, limit int) ([]domain.PluginRecommendation, error)
	RecordUserBehavior(ctx context.Context, behavior domain.UserBehavior) error
	GetSimilarPlugins(ctx context.Context, pluginID string, limit int) ([]domain.PluginStoreEntry, error)
}

// ReviewService 评价的读写转发能力
type ReviewService interface {
	SubmitReview(ctx context.Context, pluginID string, rating float64, comment string) error
	GetReviews(ctx context.Context, pluginID string, offset, limit int) ([]Review, error)
}

// TaxonomyService 分类/标签能力
type TaxonomyService interface {
	GetCategoryTree(ctx context.Context) ([]domain.PluginCategory, error)
	GetTags(ctx context.Context) ([]domain.PluginTag, error)
	SuggestCategories(ctx context.Context, entry domain.PluginStoreEntry) ([]domain.CategorySuggestion, error)
	SuggestTags(ctx context.Context, entry domain.PluginStoreEntry) ([]domain.TagSuggestion, error)
	GetCategoryStatistics(ctx context.Context, categoryID string) (*domain.CategoryStatistics, error)
	GetTagStatistics(ctx context.Context, tag string) (*domain.TagStatistics, error)
}

// StoreAdminService 控制平面：商店的注册与运维
type StoreAdminService interface {
	RegisterStore(ctx context.Context, name, url string, storeType domain.StoreType, priority int) (*domain.PluginStore, error)
	ListStores(ctx context.Context) ([]domain.PluginStore, error)
	SetStoreEnabled(ctx context.Context, storeID string, enabled bool) error
	SyncStore(ctx context.Context, storeID string) (*domain.PluginStore, error)
}

// SyncStrategy 商店同步的扩展点。
// 缺省实现 (NoopSyncStrategy) 只刷新 lastSync/pluginCount，
// 真正的远端到本地对账留给具体策略实现者。
type SyncStrategy interface {
	Sync(ctx context.Context, store domain.PluginStore, client StoreClient) (pluginCount int, syncedAt time.Time, err error)
}

// SimilarityStrategy 相似插件建议的扩展点，缺省实现返回空列表。
type SimilarityStrategy interface {
	SimilarPlugins(ctx context.Context, pluginID string, limit int) ([]domain.PluginStoreEntry, error)
}
