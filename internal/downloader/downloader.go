// file: internal/downloader/downloader.go
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Downloader 是所有制品下载器都必须实现的接口。
type Downloader interface {
	// SupportsScheme 支持的协议 (e.g., "http", "https", "file")
	SupportsScheme(scheme string) bool
	// Download 执行下载，返回一个可读取内容的对象
	Download(ctx context.Context, sourceURL *url.URL) (io.ReadCloser, error)
}

// Default 返回网关缺省启用的下载器集合
func Default() []Downloader {
	return []Downloader{
		&HTTPDownloader{Client: &http.Client{Timeout: 60 * time.Second}},
		&FileDownloader{},
	}
}

// For 按 URL scheme 选择下载器；没有匹配的协议时报错
func For(downloaders []Downloader, scheme string) (Downloader, error) {
	for _, d := range downloaders {
		if d.SupportsScheme(scheme) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("没有找到支持协议 '%s' 的下载器", scheme)
}

// HTTPDownloader =============================================================================
//
//	HTTP/HTTPS 下载器实现
//
// =============================================================================
type HTTPDownloader struct {
	Client *http.Client
}

func (d *HTTPDownloader) SupportsScheme(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

func (d *HTTPDownloader) Download(ctx context.Context, sourceURL *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("构造下载请求失败: %w", err)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close() // 确保在出错时关闭body
		return nil, fmt.Errorf("HTTP请求失败, 状态码: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// FileDownloader =============================================================================
//
//	本地文件“下载”器 (实际上是文件复制)
//
// =============================================================================
type FileDownloader struct{}

func (d *FileDownloader) SupportsScheme(scheme string) bool {
	return scheme == "file"
}

func (d *FileDownloader) Download(_ context.Context, sourceURL *url.URL) (io.ReadCloser, error) {
	// url.Parse 会将本地路径转换为 URL 结构，其 Path 字段是我们需要的
	// 例如 "file:///C:/Users/..." -> Path: "/C:/Users/..."
	// 在 Windows 上需要去掉这个前导斜杠
	path := filepath.FromSlash(sourceURL.Path)

	if len(path) > 0 && path[0] == filepath.Separator {
		if len(path) > 2 && path[2] == ':' { // 检查是否是 "C:" 这样的驱动器号
			path = path[1:]
		}
	}

	return os.Open(path)
}
