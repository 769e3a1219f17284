// file: internal/transport/http/router/router_test.go
package router

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/core/port"
	"PluginHarbor/internal/downloader"
	"PluginHarbor/internal/service"
	"PluginHarbor/internal/service/recommend"
	"PluginHarbor/internal/service/store_manager"
	"PluginHarbor/internal/service/store_registry"
	"PluginHarbor/internal/service/taxonomy"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("打开内存数据库失败: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := service.InitPlatformTables(db); err != nil {
		t.Fatalf("初始化平台表失败: %v", err)
	}

	registry, err := store_registry.NewRegistry(t.TempDir(), 0, 0)
	if err != nil {
		t.Fatalf("创建商店注册表失败: %v", err)
	}

	taxoSvc := taxonomy.NewService()
	recommender := recommend.NewEngine(recommend.NewBehaviorStore(nil), time.Minute)

	factory := func(store domain.PluginStore) (port.StoreClient, error) {
		return nil, fmt.Errorf("测试环境不提供远程客户端")
	}
	mgr, err := store_manager.NewManager(registry, factory, nil, recommender, taxoSvc, downloader.Default(), nil, nil)
	if err != nil {
		t.Fatalf("创建 Manager 失败: %v", err)
	}

	limitConfig, err := service.NewLimitConfigStore(db)
	if err != nil {
		t.Fatalf("创建 LimitConfigStore 失败: %v", err)
	}

	return New(Dependencies{
		Discovery:          mgr,
		Recommender:        mgr,
		Reviews:            mgr,
		Taxonomy:           taxoSvc,
		StoreAdmin:         mgr,
		AuthDB:             db,
		LimitConfig:        limitConfig,
		SetupToken:         "setup-token",
		SetupTokenDeadline: time.Now().Add(time.Hour),
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/system/setup",
		`{"token":"setup-token","user":"root","pass":"secret-password"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("安装管理员失败: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析安装响应失败: %v", err)
	}
	return resp.Token
}

func TestSystemStatusFlow(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/system/status", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "needs_setup") {
		t.Fatalf("空系统状态错误: %d %s", rec.Code, rec.Body.String())
	}

	_ = adminToken(t, h)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/system/status", "", "")
	if !strings.Contains(rec.Body.String(), "ready_for_login") {
		t.Fatalf("安装后状态错误: %s", rec.Body.String())
	}
}

func TestLogin(t *testing.T) {
	h := newTestRouter(t)
	_ = adminToken(t, h)

	t.Run("valid credentials return a token", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", `{"user":"root","pass":"secret-password"}`, "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "token") {
			t.Fatalf("登录失败: %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", `{"user":"root","pass":"wrong"}`, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}

func TestAdminPlaneRequiresAdmin(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/admin/stores", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("无令牌访问控制平面: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestStoreAdminLifecycle(t *testing.T) {
	h := newTestRouter(t)
	token := adminToken(t, h)

	// 注册
	rec := doJSON(t, h, http.MethodPost, "/api/v1/admin/stores",
		`{"name":"本地镜像","url":"file:///var/lib/harbor/mirror","type":"local","priority":5}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("注册商店失败: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data domain.PluginStore `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("解析注册响应失败: %v", err)
	}
	if created.Data.ID == "" {
		t.Fatal("注册响应缺少商店ID")
	}

	// 非法类型被拒
	rec = doJSON(t, h, http.MethodPost, "/api/v1/admin/stores",
		`{"name":"x","url":"https://example.com","type":"galaxy"}`, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("非法商店类型: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	// 列表
	rec = doJSON(t, h, http.MethodGet, "/api/v1/admin/stores", "", token)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), created.Data.ID) {
		t.Fatalf("商店列表缺少新注册的商店: %d %s", rec.Code, rec.Body.String())
	}

	// 禁用
	rec = doJSON(t, h, http.MethodPut, "/api/v1/admin/stores/"+created.Data.ID+"/enabled", `{"enabled":false}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("禁用商店失败: %d %s", rec.Code, rec.Body.String())
	}

	// 不存在的商店
	rec = doJSON(t, h, http.MethodPut, "/api/v1/admin/stores/ghost/enabled", `{"enabled":true}`, token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("幽灵商店: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDiscoveryPlane(t *testing.T) {
	h := newTestRouter(t)

	t.Run("search on empty registry returns empty result", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/plugins/search?q=color&limit=5", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("搜索失败: %d %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Data domain.PluginSearchResult `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("解析搜索响应失败: %v", err)
		}
		if resp.Data.TotalCount != 0 {
			t.Fatalf("TotalCount = %d, want 0", resp.Data.TotalCount)
		}
	})

	t.Run("unknown plugin yields 404", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/plugins/ghost.plugin", "", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("got %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("suggestions endpoint responds", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/suggestions?q=co", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

func TestTaxonomyPlane(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/categories", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("分类树: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data []domain.PluginCategory `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析分类树失败: %v", err)
	}
	if len(resp.Data) == 0 {
		t.Fatal("系统分类词表为空")
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/classify/categories",
		`{"id":"dev.theme","name":"Solar Theme","description":"A dark color theme for the editor"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("分类建议: %d %s", rec.Code, rec.Body.String())
	}
}

func TestBehaviorPlane(t *testing.T) {
	h := newTestRouter(t)

	t.Run("valid behavior accepted", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/behavior",
			`{"user_id":"u1","action":"view","plugin_id":"p.x"}`, "")
		if rec.Code != http.StatusAccepted {
			t.Fatalf("got %d, want %d", rec.Code, http.StatusAccepted)
		}
	})

	t.Run("unknown action rejected", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/behavior",
			`{"user_id":"u1","action":"teleport","plugin_id":"p.x"}`, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("got %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("recommendations respond for cold user", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/recommendations?user_id=u1&limit=3", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d, want %d", rec.Code, http.StatusOK)
		}
	})
}
