// Package port file: internal/core/port/store_client.go
package port

import (
	"context"
	"errors"
	"io"

	"PluginHarbor/internal/core/domain"
)

// Standard errors
var (
	ErrStoreNotFound  = errors.New("指定的商店未注册")
	ErrStoreDisabled  = errors.New("指定的商店已被禁用")
	ErrPluginNotFound = errors.New("指定的插件未找到")
)

// DownloadProgress 下载进度回调。received 为已接收字节数，total 未知时为 -1。
type DownloadProgress func(received, total int64)

// Review 商店侧的一条插件评价
type Review struct {
	Author    string  `json:"author"`
	Rating    float64 `json:"rating"`
	Comment   string  `json:"comment"`
	CreatedAt string  `json:"created_at"`
}

// StoreClient 定义了访问一个远程插件商店所需的全部能力。
// 具体实现位于 internal/adapter/storeclient（遵循商店侧的 HTTP 契约）。
// 任何一个商店的失败都不应中断多商店聚合操作，由调用方捕获并记录。
type StoreClient interface {
	// Search 在该商店执行一次搜索
	Search(ctx context.Context, query domain.PluginSearchQuery) (*domain.PluginSearchResult, error)

	// GetPlugin 获取单个插件条目，404 映射为 ErrPluginNotFound
	GetPlugin(ctx context.Context, pluginID string) (*domain.PluginStoreEntry, error)

	// GetVersions 列出插件的全部可用版本号
	GetVersions(ctx context.Context, pluginID string) ([]string, error)

	// Download 下载插件制品，返回可读流；进度经由回调上报
	Download(ctx context.Context, pluginID, version string, progress DownloadProgress) (io.ReadCloser, error)

	// GetCategories 列出该商店声明的分类
	GetCategories(ctx context.Context) ([]string, error)

	// GetFeatured 列出编辑推荐的条目
	GetFeatured(ctx context.Context, limit int) ([]domain.PluginStoreEntry, error)

	// GetLatest 列出最新发布的条目
	GetLatest(ctx context.Context, limit int) ([]domain.PluginStoreEntry, error)

	// SubmitReview 提交一条评价
	SubmitReview(ctx context.Context, pluginID string, rating float64, comment string) error

	// GetReviews 分页拉取评价
	GetReviews(ctx context.Context, pluginID string, offset, limit int) ([]Review, error)

	// StoreID 返回该客户端绑定的商店ID
	StoreID() string
}

// StoreClientFactory 按商店元数据构造客户端。
// Manager 依赖工厂而不是具体实现，便于测试时注入假客户端。
type StoreClientFactory func(store domain.PluginStore) (StoreClient, error)
