// Package store_manager file: internal/service/store_manager/discovery.go
package store_manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/core/port"
	"PluginHarbor/internal/downloader"
	"PluginHarbor/internal/harobserve"

	"golang.org/x/sync/errgroup"
)

// SearchPlugins 聚合搜索：注册表本地缓存 + 所有启用远端商店。
//  1. 注册表的本地缓存条目（离线可用）。
//  2. 每个启用的非本地商店并发查询；单商店失败记录后吞掉。
//  3. 拼接时保持商店扇出顺序，按 (id, version) 去重，先到先得。
//  4. 按查询的排序要求整体重排后分页。
func (m *Manager) SearchPlugins(ctx context.Context, query domain.PluginSearchQuery) (*domain.PluginSearchResult, error) {
	start := time.Now()
	harobserve.TotalSearch.Inc()
	query = query.Normalize()

	local, err := m.registry.SearchPlugins(ctx, wideQuery(query))
	if err != nil {
		return nil, err
	}

	stores, err := m.remoteStores(ctx)
	if err != nil {
		return nil, err
	}

	// 并发扇出，结果按商店在注册表中的顺序收集，保证去重的确定性
	perStore := make([][]domain.PluginStoreEntry, len(stores))
	g, gctx := errgroup.WithContext(ctx)
	for i, store := range stores {
		i, store := i, store
		g.Go(func() error {
			client, errClient := m.clientFor(store)
			if errClient != nil {
				logStoreFailure("search", store, errClient)
				return nil
			}
			result, errSearch := client.Search(gctx, wideQuery(query))
			if errSearch != nil {
				logStoreFailure("search", store, errSearch)
				return nil
			}
			perStore[i] = result.Plugins
			return nil
		})
	}
	_ = g.Wait() // 单商店失败已在各自的 goroutine 中吞掉

	merged := append([]domain.PluginStoreEntry{}, local.Plugins...)
	for i, entries := range perStore {
		merged = append(merged, entries...)
		m.cacheRemoteEntries(stores[i].ID, entries)
	}

	merged = dedupEntries(merged)
	merged = m.autoClassify(ctx, merged)
	sortMerged(merged, query.SortBy, query.SortOrder)

	result := &domain.PluginSearchResult{
		Plugins:     paginateEntries(merged, query.Offset, query.Limit),
		TotalCount:  len(merged),
		Suggestions: m.searchSuggestions(query.Keyword, len(merged), query.Limit),
		Facets:      local.Facets,
		SearchTime:  time.Since(start),
	}
	harobserve.SearchLatency.Observe(time.Since(start).Seconds())
	return result, nil
}

// searchSuggestions 命中不足一页的关键词搜索附带改写建议，帮调用方换个词再试。
// 空关键词（纯浏览）和结果充裕时不给建议，避免噪音。
func (m *Manager) searchSuggestions(keyword string, totalHits, limit int) []string {
	if keyword == "" || totalHits >= limit {
		return nil
	}
	candidates := m.engine.GetSuggestions(keyword)
	out := make([]string, 0, len(candidates))
	for _, s := range candidates {
		if !strings.EqualFold(s.Text, keyword) {
			out = append(out, s.Text)
		}
	}
	return out
}

// wideQuery 把调用方的分页窗口换成覆盖到窗口末尾的单页，
// 合并去重后的全局分页由 Manager 统一执行。
func wideQuery(q domain.PluginSearchQuery) domain.PluginSearchQuery {
	q.Limit = q.Offset + q.Limit
	q.Offset = 0
	return q
}

// GetPluginDetails 查询单个插件详情：先查本地缓存，再按序轮询远端商店，
// 返回第一个成功的结果。全部未命中时返回 ErrPluginNotFound。
func (m *Manager) GetPluginDetails(ctx context.Context, pluginID string) (*domain.PluginStoreEntry, error) {
	local, err := m.registry.LocalEntries(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range local {
		if e.ID == pluginID {
			return &e, nil
		}
	}

	stores, err := m.remoteStores(ctx)
	if err != nil {
		return nil, err
	}
	for _, store := range stores {
		client, errClient := m.clientFor(store)
		if errClient != nil {
			logStoreFailure("detail", store, errClient)
			continue
		}
		entry, errGet := client.GetPlugin(ctx, pluginID)
		if errGet != nil {
			if !errors.Is(errGet, port.ErrPluginNotFound) {
				logStoreFailure("detail", store, errGet)
			}
			continue
		}
		return entry, nil
	}
	return nil, port.ErrPluginNotFound
}

// GetFeaturedPlugins 聚合各商店的编辑推荐位，合并去重后按聚合分数排序并截断。
func (m *Manager) GetFeaturedPlugins(ctx context.Context, limit int) ([]domain.PluginStoreEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	collect := func(ctx context.Context, client port.StoreClient) ([]domain.PluginStoreEntry, error) {
		return client.GetFeatured(ctx, limit)
	}
	localPick := func(e domain.PluginStoreEntry) bool { return e.IsFeatured }
	return m.aggregateList(ctx, "featured", limit, collect, localPick)
}

// GetLatestPlugins 聚合各商店的最新发布，合并去重后按发布时间降序截断。
func (m *Manager) GetLatestPlugins(ctx context.Context, limit int) ([]domain.PluginStoreEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	collect := func(ctx context.Context, client port.StoreClient) ([]domain.PluginStoreEntry, error) {
		return client.GetLatest(ctx, limit)
	}
	entries, err := m.aggregateList(ctx, "latest", 0, collect, func(e domain.PluginStoreEntry) bool { return true })
	if err != nil {
		return nil, err
	}
	sortMerged(entries, domain.SortByPublished, domain.SortDescending)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// aggregateList 是 featured/latest 共用的聚合骨架：
// 本地缓存筛选 + 逐商店调用，失败吞掉，合并去重，limit>0 时按聚合分数截断。
func (m *Manager) aggregateList(
	ctx context.Context,
	op string,
	limit int,
	collect func(context.Context, port.StoreClient) ([]domain.PluginStoreEntry, error),
	localPick func(domain.PluginStoreEntry) bool,
) ([]domain.PluginStoreEntry, error) {
	local, err := m.registry.LocalEntries(ctx)
	if err != nil {
		return nil, err
	}
	var merged []domain.PluginStoreEntry
	for _, e := range local {
		if localPick(e) {
			merged = append(merged, e)
		}
	}

	stores, err := m.remoteStores(ctx)
	if err != nil {
		return nil, err
	}
	for _, store := range stores {
		client, errClient := m.clientFor(store)
		if errClient != nil {
			logStoreFailure(op, store, errClient)
			continue
		}
		entries, errList := collect(ctx, client)
		if errList != nil {
			logStoreFailure(op, store, errList)
			continue
		}
		merged = append(merged, entries...)
	}

	merged = dedupEntries(merged)
	if limit > 0 {
		sortMerged(merged, domain.SortByRelevance, domain.SortDescending)
		if len(merged) > limit {
			merged = merged[:limit]
		}
	}
	return merged, nil
}

// GetSuggestions 自动补全建议，来自搜索引擎的索引与历史。
func (m *Manager) GetSuggestions(_ context.Context, query string) ([]domain.SearchSuggestion, error) {
	return m.engine.GetSuggestions(query), nil
}

// ==== 下载 ==================================================================

// DownloadPlugin 下载插件制品。条目带 download_url 时走协议路由的下载器
// （支持 file:// 本地商店），否则回落到所属商店的下载端点。
// 条目声明了校验和时，返回的流会在读尽时校验 sha256。
func (m *Manager) DownloadPlugin(ctx context.Context, pluginID, version string, progress port.DownloadProgress) (io.ReadCloser, error) {
	entry, err := m.GetPluginDetails(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if version == "" {
		version = entry.Version
	}

	var stream io.ReadCloser
	if entry.DownloadURL != "" {
		stream, err = m.downloadByURL(ctx, entry.DownloadURL)
	} else {
		stream, err = m.downloadByStore(ctx, entry.StoreID, pluginID, version, progress)
	}
	if err != nil {
		return nil, err
	}

	harobserve.TotalDownload.Inc()
	log.Printf("📊 [StoreManager] 开始下载插件 '%s' (版本 %s)", pluginID, version)
	return verifyingStream(stream, entry.Checksum), nil
}

func (m *Manager) downloadByURL(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("非法的制品地址: '%s'", rawURL)
	}
	d, err := downloader.For(m.downloaders, u.Scheme)
	if err != nil {
		return nil, err
	}
	return d.Download(ctx, u)
}

func (m *Manager) downloadByStore(ctx context.Context, storeID, pluginID, version string, progress port.DownloadProgress) (io.ReadCloser, error) {
	store, err := m.registry.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !store.IsEnabled {
		return nil, port.ErrStoreDisabled
	}
	client, err := m.clientFor(*store)
	if err != nil {
		return nil, err
	}
	return client.Download(ctx, pluginID, version, progress)
}

// verifyingStream 在 checksum 形如 "sha256:<hex>" 时包装校验读取器，
// 其它格式原样透传（商店可能使用网关不认识的算法）。
func verifyingStream(rc io.ReadCloser, checksum string) io.ReadCloser {
	const prefix = "sha256:"
	if !strings.HasPrefix(checksum, prefix) {
		return rc
	}
	return &checksumReader{
		inner:    rc,
		digest:   sha256.New(),
		expected: strings.ToLower(strings.TrimPrefix(checksum, prefix)),
	}
}

// checksumReader 边读边算摘要，EOF 时与期望值比对，不匹配则以错误收尾。
type checksumReader struct {
	inner    io.ReadCloser
	digest   hash.Hash
	expected string
	verified bool
}

func (r *checksumReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.digest.Write(p[:n])
	}
	if errors.Is(err, io.EOF) && !r.verified {
		r.verified = true
		actual := hex.EncodeToString(r.digest.Sum(nil))
		if actual != r.expected {
			return n, fmt.Errorf("制品校验和不匹配: 期望 %s, 实际 %s", r.expected, actual)
		}
	}
	return n, err
}

func (r *checksumReader) Close() error { return r.inner.Close() }

// ==== 评价透传 ==============================================================

// SubmitReview 把评价提交给第一个认识该插件的商店。
func (m *Manager) SubmitReview(ctx context.Context, pluginID string, rating float64, comment string) error {
	stores, err := m.remoteStores(ctx)
	if err != nil {
		return err
	}
	for _, store := range stores {
		client, errClient := m.clientFor(store)
		if errClient != nil {
			logStoreFailure("review", store, errClient)
			continue
		}
		if _, errGet := client.GetPlugin(ctx, pluginID); errGet != nil {
			continue
		}
		return client.SubmitReview(ctx, pluginID, rating, comment)
	}
	return port.ErrPluginNotFound
}

// GetReviews 从第一个有该插件评价的商店拉取评价列表。
func (m *Manager) GetReviews(ctx context.Context, pluginID string, offset, limit int) ([]port.Review, error) {
	stores, err := m.remoteStores(ctx)
	if err != nil {
		return nil, err
	}
	for _, store := range stores {
		client, errClient := m.clientFor(store)
		if errClient != nil {
			logStoreFailure("reviews", store, errClient)
			continue
		}
		reviews, errGet := client.GetReviews(ctx, pluginID, offset, limit)
		if errGet != nil {
			logStoreFailure("reviews", store, errGet)
			continue
		}
		if len(reviews) > 0 {
			return reviews, nil
		}
	}
	return []port.Review{}, nil
}

// ==== 推荐委托 ==============================================================

// GetRecommendations 基于注册表当前的本地目录生成混合推荐。
func (m *Manager) GetRecommendations(ctx context.Context, userID string, installed []string, limit int) ([]domain.PluginRecommendation, error) {
	if m.recommender == nil {
		return []domain.PluginRecommendation{}, nil
	}
	catalog, err := m.registry.LocalEntries(ctx)
	if err != nil {
		return nil, err
	}
	return m.recommender.Recommend(ctx, userID, installed, catalog, nil, domain.RecommendHybrid, limit)
}

// RecordUserBehavior 透传用户行为事件给推荐引擎。
func (m *Manager) RecordUserBehavior(ctx context.Context, behavior domain.UserBehavior) error {
	if m.recommender == nil {
		return nil
	}
	return m.recommender.RecordUserBehavior(ctx, behavior)
}

// GetSimilarPlugins 相似插件建议，委托注入的策略（缺省策略返回空列表）。
func (m *Manager) GetSimilarPlugins(ctx context.Context, pluginID string, limit int) ([]domain.PluginStoreEntry, error) {
	return m.similarity.SimilarPlugins(ctx, pluginID, limit)
}
