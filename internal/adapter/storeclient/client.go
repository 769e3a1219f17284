// Package storeclient file: internal/adapter/storeclient/client.go
package storeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/core/port"
)

// 编译期断言，确保 Client 实现了 port.StoreClient 接口
var _ port.StoreClient = (*Client)(nil)

const (
	defaultTimeout = 30 * time.Second

	// 对单个商店的请求速率上限，避免聚合扇出打爆对端
	defaultRatePerSecond = 10
	defaultBurst         = 20
)

// Client 是远程插件商店的 HTTP 适配器，实现 port.StoreClient。
// 每个实例绑定一个商店，持有自己的限速器；重试与缓存由传输层的
// http.Client/中间件负责，这里只定义契约层。
type Client struct {
	storeID string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New 按商店元数据创建客户端
func New(store domain.PluginStore) (*Client, error) {
	base := strings.TrimRight(store.URL, "/")
	if base == "" {
		return nil, fmt.Errorf("商店 '%s' 的 URL 不能为空", store.ID)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("商店 '%s' 的 URL 非法: %w", store.ID, err)
	}
	return &Client{
		storeID: store.ID,
		baseURL: base,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultBurst),
	}, nil
}

// Factory 是 port.StoreClientFactory 的标准实现
func Factory(store domain.PluginStore) (port.StoreClient, error) {
	return New(store)
}

func (c *Client) StoreID() string { return c.storeID }

// get 发出一次限速的 GET 并解析 JSON 响应到 out
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("请求商店 '%s' 失败: %w", c.storeID, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("关闭商店响应流失败", "store", c.storeID, "err", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return port.ErrPluginNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("商店 '%s' 返回异常状态码: %d", c.storeID, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析商店 '%s' 的响应失败: %w", c.storeID, err)
	}
	return nil
}

// searchResponse 商店搜索接口的返回报文
type searchResponse struct {
	Plugins    []domain.PluginStoreEntry `json:"plugins"`
	TotalCount int                       `json:"total_count"`
	Facets     map[string][]string       `json:"facets"`
}

// Search 实现商店侧的 GET /plugins/search 契约
func (c *Client) Search(ctx context.Context, query domain.PluginSearchQuery) (*domain.PluginSearchResult, error) {
	query = query.Normalize()
	params := url.Values{}
	if query.Keyword != "" {
		params.Set("q", query.Keyword)
	}
	if f := query.Filter; f != nil {
		if len(f.Categories) > 0 {
			params.Set("category", strings.Join(f.Categories, ","))
		}
		if len(f.Tags) > 0 {
			params.Set("tags", strings.Join(f.Tags, ","))
		}
		if len(f.Authors) > 0 {
			params.Set("author", strings.Join(f.Authors, ","))
		}
		if len(f.Platforms) > 0 {
			params.Set("platforms", strings.Join(f.Platforms, ","))
		}
		if f.MinRating != nil {
			params.Set("min_rating", strconv.FormatFloat(*f.MinRating, 'f', -1, 64))
		}
		if f.VerifiedOnly {
			params.Set("only_verified", "true")
		}
		if f.FeaturedOnly {
			params.Set("only_featured", "true")
		}
		if f.IncludePrerelease {
			params.Set("include_prerelease", "true")
		}
	}
	params.Set("sort_by", string(query.SortBy))
	params.Set("sort_order", string(query.SortOrder))
	params.Set("offset", strconv.Itoa(query.Offset))
	params.Set("limit", strconv.Itoa(query.Limit))

	start := time.Now()
	var resp searchResponse
	if err := c.get(ctx, "/plugins/search", params, &resp); err != nil {
		return nil, err
	}

	// 远端条目统一打上来源商店ID
	for i := range resp.Plugins {
		resp.Plugins[i].StoreID = c.storeID
	}
	total := resp.TotalCount
	if total == 0 {
		total = len(resp.Plugins)
	}
	return &domain.PluginSearchResult{
		Plugins:    resp.Plugins,
		TotalCount: total,
		Facets:     resp.Facets,
		SearchTime: time.Since(start),
	}, nil
}

// GetPlugin 404 映射为 port.ErrPluginNotFound
func (c *Client) GetPlugin(ctx context.Context, pluginID string) (*domain.PluginStoreEntry, error) {
	var entry domain.PluginStoreEntry
	if err := c.get(ctx, "/plugins/"+url.PathEscape(pluginID), nil, &entry); err != nil {
		return nil, err
	}
	entry.StoreID = c.storeID
	return &entry, nil
}

func (c *Client) GetVersions(ctx context.Context, pluginID string) ([]string, error) {
	var resp struct {
		Versions []string `json:"versions"`
	}
	if err := c.get(ctx, "/plugins/"+url.PathEscape(pluginID)+"/versions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Versions, nil
}

// progressReader 包装响应流，把读取进度回调给调用方
type progressReader struct {
	inner    io.ReadCloser
	total    int64
	received int64
	progress port.DownloadProgress
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.received += int64(n)
		if r.progress != nil {
			r.progress(r.received, r.total)
		}
	}
	return n, err
}

func (r *progressReader) Close() error { return r.inner.Close() }

// Download 拉取制品二进制流，进度经回调上报
func (c *Client) Download(ctx context.Context, pluginID, version string, progress port.DownloadProgress) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/plugins/%s/download?version=%s", c.baseURL, url.PathEscape(pluginID), url.QueryEscape(version))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("构造下载请求失败: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下载请求失败 (商店 '%s'): %w", c.storeID, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, port.ErrPluginNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("下载失败, 状态码: %d", resp.StatusCode)
	}
	return &progressReader{
		inner:    resp.Body,
		total:    resp.ContentLength,
		progress: progress,
	}, nil
}

func (c *Client) GetCategories(ctx context.Context) ([]string, error) {
	var resp struct {
		Categories []string `json:"categories"`
	}
	if err := c.get(ctx, "/categories", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

func (c *Client) GetFeatured(ctx context.Context, limit int) ([]domain.PluginStoreEntry, error) {
	return c.getPluginList(ctx, "/plugins/featured", limit)
}

func (c *Client) GetLatest(ctx context.Context, limit int) ([]domain.PluginStoreEntry, error) {
	return c.getPluginList(ctx, "/plugins/latest", limit)
}

func (c *Client) getPluginList(ctx context.Context, path string, limit int) ([]domain.PluginStoreEntry, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Plugins []domain.PluginStoreEntry `json:"plugins"`
	}
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Plugins {
		resp.Plugins[i].StoreID = c.storeID
	}
	return resp.Plugins, nil
}

// SubmitReview POST /plugins/{id}/reviews，期待 201
func (c *Client) SubmitReview(ctx context.Context, pluginID string, rating float64, comment string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{"rating": rating, "comment": comment})
	if err != nil {
		return fmt.Errorf("序列化评价失败: %w", err)
	}
	u := c.baseURL + "/plugins/" + url.PathEscape(pluginID) + "/reviews"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("构造评价请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("提交评价失败 (商店 '%s'): %w", c.storeID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return port.ErrPluginNotFound
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("提交评价被拒绝, 状态码: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) GetReviews(ctx context.Context, pluginID string, offset, limit int) ([]port.Review, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	var resp struct {
		Reviews []port.Review `json:"reviews"`
	}
	if err := c.get(ctx, "/plugins/"+url.PathEscape(pluginID)+"/reviews", params, &resp); err != nil {
		return nil, err
	}
	return resp.Reviews, nil
}
