// file: internal/downloader/downloader_test.go
package downloader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//  HTTPDownloader Tests
// ============================================================================

func TestHTTPDownloader_SupportsScheme(t *testing.T) {
	d := &HTTPDownloader{}
	testCases := []struct {
		scheme   string
		expected bool
	}{
		{"http", true},
		{"https", true},
		{"file", false},
		{"ftp", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(tc.scheme, func(t *testing.T) {
			assert.Equal(t, tc.expected, d.SupportsScheme(tc.scheme))
		})
	}
}

func TestHTTPDownloader_Download(t *testing.T) {
	ctx := context.Background()

	t.Run("successful download", func(t *testing.T) {
		expectedContent := "hello world"
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(expectedContent))
		}))
		defer server.Close()

		d := &HTTPDownloader{Client: server.Client()}
		sourceURL, _ := url.Parse(server.URL)

		reader, err := d.Download(ctx, sourceURL)
		require.NoError(t, err)
		require.NotNil(t, reader)
		defer reader.Close()

		content, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, expectedContent, string(content))
	})

	t.Run("server error response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		d := &HTTPDownloader{Client: server.Client()}
		sourceURL, _ := url.Parse(server.URL)

		_, err := d.Download(ctx, sourceURL)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "状态码: 404")
	})

	t.Run("network error", func(t *testing.T) {
		d := &HTTPDownloader{Client: http.DefaultClient}
		sourceURL, _ := url.Parse("http://127.0.0.1:1")

		_, err := d.Download(ctx, sourceURL)
		require.Error(t, err)
	})
}

// ============================================================================
//  FileDownloader Tests
// ============================================================================

func TestFileDownloader_SupportsScheme(t *testing.T) {
	d := &FileDownloader{}
	assert.True(t, d.SupportsScheme("file"))
	assert.False(t, d.SupportsScheme("http"))
}

func TestFileDownloader_Download(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	t.Run("successful download", func(t *testing.T) {
		expectedContent := "local file content"
		filePath := filepath.Join(tempDir, "testfile.txt")
		err := os.WriteFile(filePath, []byte(expectedContent), 0644)
		require.NoError(t, err)

		fileURL := "file://" + filepath.ToSlash(filePath)
		sourceURL, err := url.Parse(fileURL)
		require.NoError(t, err)

		d := &FileDownloader{}
		reader, err := d.Download(ctx, sourceURL)
		require.NoError(t, err)
		require.NotNil(t, reader)
		defer reader.Close()

		content, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, expectedContent, string(content))
	})

	t.Run("file not found", func(t *testing.T) {
		nonExistentPath := filepath.Join(tempDir, "nonexistent.txt")
		sourceURL, err := url.Parse("file://" + filepath.ToSlash(nonExistentPath))
		require.NoError(t, err)

		d := &FileDownloader{}
		_, err = d.Download(ctx, sourceURL)

		require.Error(t, err)
		assert.True(t, os.IsNotExist(err), "应当返回文件不存在错误")
	})
}

// ============================================================================
//  Scheme 路由
// ============================================================================

func TestFor_SchemeRouting(t *testing.T) {
	downloaders := Default()

	d, err := For(downloaders, "https")
	require.NoError(t, err)
	assert.IsType(t, &HTTPDownloader{}, d)

	d, err = For(downloaders, "file")
	require.NoError(t, err)
	assert.IsType(t, &FileDownloader{}, d)

	_, err = For(downloaders, "ftp")
	assert.Error(t, err)
}
