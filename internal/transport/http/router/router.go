// file: internal/transport/http/router/router.go
package router

import (
	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/core/port"
	"PluginHarbor/internal/harmiddleware"
	"PluginHarbor/internal/harobserve"
	"PluginHarbor/internal/service"
	"PluginHarbor/internal/transport/http/middleware"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// Dependencies 结构体用于将所有依赖项注入到路由器中
type Dependencies struct {
	Discovery   port.PluginDiscoveryService
	Recommender port.RecommendationService
	Reviews     port.ReviewService
	Taxonomy    port.TaxonomyService
	StoreAdmin  port.StoreAdminService

	AuthDB      *sql.DB
	LimitConfig *service.LimitConfigStore
	Limiter     *harmiddleware.GatewayRateLimiter
	LoginLock   *harmiddleware.LoginFailureLock

	SetupToken         string
	SetupTokenDeadline time.Time
}

// New 创建并配置一个全新的、基于 Gin 的 HTTP 路由器 (V1 版本)
func New(deps Dependencies) http.Handler {
	router := gin.Default()

	// --- 配置全局中间件 ---
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(harobserve.PrometheusMiddleware())
	router.Use(middleware.ErrorHandlingMiddleware())

	router.GET("/metrics", gin.WrapH(harobserve.Handler()))

	authService := service.NewAuthenticator(deps.AuthDB)
	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(authService)) // 解析令牌；是否放行由各平面的守卫决定
	{
		// --- 系统/认证平面 (System/Auth Plane) ---
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", loginHandler(deps.AuthDB, deps.LoginLock))
		}
		systemGroup := v1.Group("/system")
		{
			systemGroup.Any("/setup", setupHandler(deps.AuthDB, deps.SetupToken, deps.SetupTokenDeadline))
			systemGroup.GET("/status", statusHandler(deps.AuthDB))
		}

		// --- 发现平面 (Discovery Plane) ---
		pluginsGroup := v1.Group("/plugins")
		if deps.Limiter != nil {
			pluginsGroup.Use(limitChain(deps.Limiter.FullChain))
		}
		{
			pluginsGroup.GET("/search", searchHandler(deps.Discovery))
			pluginsGroup.GET("/featured", featuredHandler(deps.Discovery))
			pluginsGroup.GET("/latest", latestHandler(deps.Discovery))
			pluginsGroup.GET("/:id", pluginDetailsHandler(deps.Discovery))
			pluginsGroup.GET("/:id/download", downloadHandler(deps.Discovery))
			pluginsGroup.GET("/:id/similar", similarHandler(deps.Recommender))
			pluginsGroup.GET("/:id/reviews", getReviewsHandler(deps.Reviews))
			pluginsGroup.POST("/:id/reviews", submitReviewHandler(deps.Reviews))
		}

		suggestGroup := v1.Group("/suggestions")
		if deps.Limiter != nil {
			suggestGroup.Use(limitChain(deps.Limiter.LightweightChain))
		}
		{
			suggestGroup.GET("", suggestionsHandler(deps.Discovery))
		}

		// --- 推荐平面 (Recommendation Plane) ---
		recGroup := v1.Group("")
		if deps.Limiter != nil {
			recGroup.Use(limitChain(deps.Limiter.FullChain))
		}
		{
			recGroup.GET("/recommendations", recommendationsHandler(deps.Recommender))
			recGroup.POST("/behavior", behaviorHandler(deps.Recommender))
		}

		// --- 分类/标签平面 (Taxonomy Plane) ---
		taxoGroup := v1.Group("")
		if deps.Limiter != nil {
			taxoGroup.Use(limitChain(deps.Limiter.LightweightChain))
		}
		{
			taxoGroup.GET("/categories", categoriesHandler(deps.Taxonomy))
			taxoGroup.GET("/categories/:id/statistics", categoryStatsHandler(deps.Taxonomy))
			taxoGroup.GET("/tags", tagsHandler(deps.Taxonomy))
			taxoGroup.GET("/tags/:tag/statistics", tagStatsHandler(deps.Taxonomy))
			taxoGroup.POST("/classify/categories", classifyCategoriesHandler(deps.Taxonomy))
			taxoGroup.POST("/classify/tags", classifyTagsHandler(deps.Taxonomy))
		}

		// --- 控制平面 (Control Plane) ---
		adminGroup := v1.Group("/admin")
		adminGroup.Use(requireAdmin()) // 控制平面需要管理员权限
		{
			storesGroup := adminGroup.Group("/stores")
			{
				storesGroup.POST("", adminRegisterStoreHandler(deps.StoreAdmin))
				storesGroup.GET("", adminListStoresHandler(deps.StoreAdmin))
				storesGroup.PUT("/:id/enabled", adminSetStoreEnabledHandler(deps.StoreAdmin))
				storesGroup.POST("/:id/sync", adminSyncStoreHandler(deps.StoreAdmin))
			}

			if deps.LimitConfig != nil {
				securityGroup := adminGroup.Group("/security")
				{
					securityGroup.GET("/rate-limiting/global", adminGetIPLimitSettingsHandler(deps.LimitConfig))
					securityGroup.PUT("/rate-limiting/global", adminUpdateIPLimitSettingsHandler(deps.LimitConfig))
					securityGroup.GET("/rate-limiting/users/:userId", adminGetUserLimitSettingsHandler(deps.LimitConfig))
					securityGroup.PUT("/rate-limiting/users/:userId", adminUpdateUserLimitSettingsHandler(deps.LimitConfig))
				}
			}
		}
	}

	return router
}

// =============================================================================
//  Gin 中间件 (Middleware)
// =============================================================================

// authMiddleware 是一个将 service.Authenticator 集成到 gin 流程的中间件
func authMiddleware(auth *service.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		}))
		handler.ServeHTTP(c.Writer, c.Request)
		if c.Writer.Written() {
			c.Abort()
		}
	}
}

// limitChain 把基于 http.Handler 的限流链接入 gin 流程
func limitChain(chain func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		handler := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		}))
		handler.ServeHTTP(c.Writer, c.Request)
		if c.Writer.Written() {
			c.Abort()
		}
	}
}

// requireAdmin 是一个确保只有管理员角色才能访问的中间件
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := service.ClaimFrom(c.Request)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "需要认证"})
			return
		}
		if claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "需要管理员权限"})
			return
		}
		c.Next()
	}
}

// =============================================================================
//  发现平面处理器 (Discovery Plane Handlers)
// =============================================================================

// parseSearchQuery 把 URL 查询参数映射为结构化的搜索请求
func parseSearchQuery(c *gin.Context) domain.PluginSearchQuery {
	q := domain.PluginSearchQuery{
		Keyword:   strings.TrimSpace(c.Query("q")),
		SortBy:    domain.SortBy(c.Query("sort")),
		SortOrder: domain.SortOrder(c.Query("order")),
		Offset:    intQuery(c, "offset", 0),
		Limit:     intQuery(c, "limit", 20),
	}

	filter := &domain.PluginSearchFilter{
		Categories: c.QueryArray("category"),
		Tags:       c.QueryArray("tag"),
		Authors:    c.QueryArray("author"),
		Platforms:  c.QueryArray("platform"),
		Licenses:   c.QueryArray("license"),
	}
	if v := c.Query("min_rating"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinRating = &f
		}
	}
	if v := c.Query("min_downloads"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.MinDownloads = &n
		}
	}
	filter.VerifiedOnly = c.Query("verified") == "true"
	filter.FeaturedOnly = c.Query("featured") == "true"
	filter.IncludePrerelease = c.Query("include_prerelease") == "true"
	q.Filter = filter
	return q
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func searchHandler(discovery port.PluginDiscoveryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := parseSearchQuery(c)
		result, err := discovery.SearchPlugins(c.Request.Context(), query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "搜索失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func pluginDetailsHandler(discovery port.PluginDiscoveryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		pluginID := c.Param("id")
		entry, err := discovery.GetPluginDetails(c.Request.Context(), pluginID)
		if err != nil {
			if errors.Is(err, port.ErrPluginNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "插件 '" + pluginID + "' 未找到"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取插件详情失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": entry})
	}
}

func featuredHandler(discovery port.PluginDiscoveryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := discovery.GetFeaturedPlugins(c.Request.Context(), intQuery(c, "limit", 10))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取推荐位列表失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": entries})
	}
}

func latestHandler(discovery port.PluginDiscoveryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := discovery.GetLatestPlugins(c.Request.Context(), intQuery(c, "limit", 10))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取最新插件失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": entries})
	}
}

func downloadHandler(discovery port.PluginDiscoveryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		pluginID := c.Param("id")
		version := c.Query("version")

		stream, err := discovery.DownloadPlugin(c.Request.Context(), pluginID, version, nil)
		if err != nil {
			switch {
			case errors.Is(err, port.ErrPluginNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "插件 '" + pluginID + "' 未找到"})
			case errors.Is(err, port.ErrStoreDisabled):
				c.JSON(http.StatusConflict, gin.H{"error": "插件所属的商店已被禁用"})
			default:
				c.JSON(http.StatusBadGateway, gin.H{"error": "下载失败: " + err.Error()})
			}
			return
		}
		defer func() { _ = stream.Close() }()

		c.Header("Content-Type", "application/octet-stream")
		c.Header("Content-Disposition", "attachment; filename=\""+pluginID+".zip\"")
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, stream); err != nil {
			// 响应头已发出，只能记录（校验和不匹配也会走到这里）
			log.Printf("⚠️ 插件 '%s' 的制品流传输中断: %v", pluginID, err)
		}
	}
}

func suggestionsHandler(discovery port.PluginDiscoveryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		suggestions, err := discovery.GetSuggestions(c.Request.Context(), c.Query("q"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取搜索建议失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": suggestions})
	}
}

// =============================================================================
//  推荐平面处理器 (Recommendation Plane Handlers)
// =============================================================================

func recommendationsHandler(recommender port.RecommendationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			if claims := service.ClaimFrom(c.Request); claims != nil {
				userID = strconv.FormatInt(claims.ID, 10)
			}
		}
		var installed []string
		if raw := c.Query("installed"); raw != "" {
			installed = strings.Split(raw, ",")
		}

		recs, err := recommender.GetRecommendations(c.Request.Context(), userID, installed, intQuery(c, "limit", 10))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取推荐失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": recs})
	}
}

func behaviorHandler(recommender port.RecommendationService) gin.HandlerFunc {
	type behaviorPayload struct {
		UserID   string            `json:"user_id" binding:"required"`
		Action   string            `json:"action" binding:"required"`
		PluginID string            `json:"plugin_id" binding:"required"`
		Metadata map[string]string `json:"metadata"`
	}

	return func(c *gin.Context) {
		var payload behaviorPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的JSON请求体: " + err.Error()})
			return
		}
		if !domain.ValidBehaviorAction(payload.Action) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "未知的行为动作: '" + payload.Action + "'"})
			return
		}

		behavior := domain.UserBehavior{
			UserID:    payload.UserID,
			Action:    domain.BehaviorAction(payload.Action),
			PluginID:  payload.PluginID,
			Timestamp: time.Now(),
			Metadata:  payload.Metadata,
		}
		if err := recommender.RecordUserBehavior(c.Request.Context(), behavior); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "记录行为失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
	}
}

func similarHandler(recommender port.RecommendationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := recommender.GetSimilarPlugins(c.Request.Context(), c.Param("id"), intQuery(c, "limit", 10))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取相似插件失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": entries})
	}
}

// =============================================================================
//  评价处理器 (Review Handlers)
// =============================================================================

func getReviewsHandler(reviews port.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := reviews.GetReviews(c.Request.Context(), c.Param("id"), intQuery(c, "offset", 0), intQuery(c, "limit", 20))
		if err != nil {
			if errors.Is(err, port.ErrPluginNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "插件未找到"})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "获取评价失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func submitReviewHandler(reviews port.ReviewService) gin.HandlerFunc {
	type reviewPayload struct {
		Rating  float64 `json:"rating" binding:"required,gte=1,lte=5"`
		Comment string  `json:"comment"`
	}

	return func(c *gin.Context) {
		var payload reviewPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的JSON请求体: " + err.Error()})
			return
		}
		if err := reviews.SubmitReview(c.Request.Context(), c.Param("id"), payload.Rating, payload.Comment); err != nil {
			if errors.Is(err, port.ErrPluginNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "插件未找到"})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "提交评价失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "submitted"})
	}
}

// =============================================================================
//  分类/标签处理器 (Taxonomy Handlers)
// =============================================================================

func categoriesHandler(taxonomy port.TaxonomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tree, err := taxonomy.GetCategoryTree(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取分类树失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": tree})
	}
}

func tagsHandler(taxonomy port.TaxonomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tags, err := taxonomy.GetTags(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取标签失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": tags})
	}
}

func categoryStatsHandler(taxonomy port.TaxonomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := taxonomy.GetCategoryStatistics(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": stats})
	}
}

func tagStatsHandler(taxonomy port.TaxonomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := taxonomy.GetTagStatistics(c.Request.Context(), c.Param("tag"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": stats})
	}
}

func classifyCategoriesHandler(taxonomy port.TaxonomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var entry domain.PluginStoreEntry
		if err := c.ShouldBindJSON(&entry); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的JSON请求体: " + err.Error()})
			return
		}
		suggestions, err := taxonomy.SuggestCategories(c.Request.Context(), entry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "分类建议失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": suggestions})
	}
}

func classifyTagsHandler(taxonomy port.TaxonomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var entry domain.PluginStoreEntry
		if err := c.ShouldBindJSON(&entry); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的JSON请求体: " + err.Error()})
			return
		}
		suggestions, err := taxonomy.SuggestTags(c.Request.Context(), entry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "标签建议失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": suggestions})
	}
}

// =============================================================================
//  系统与认证处理器
// =============================================================================

// statusHandler 返回系统状态，用于前端判断是否需要进入安装流程
func statusHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if service.UserCount(db) > 0 {
			c.JSON(http.StatusOK, gin.H{"status": "ready_for_login"})
		} else {
			c.JSON(http.StatusOK, gin.H{"status": "needs_setup"})
		}
	}
}

// loginHandler 处理用户登录请求，失败次数过多时临时锁定该 IP+用户名组合
func loginHandler(db *sql.DB, lock *harmiddleware.LoginFailureLock) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			User string `form:"user" json:"user" binding:"required"`
			Pass string `form:"pass" json:"pass" binding:"required"`
		}
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "用户名或密码不能为空"})
			return
		}

		ip := harmiddleware.ClientIP(c.Request)
		if lock != nil && lock.IsLocked(ip, req.User) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码无效"})
			return
		}

		id, role, ok := service.CheckUser(db, req.User, req.Pass)
		if !ok {
			if lock != nil {
				lock.RecordFailure(ip, req.User)
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码无效"})
			return
		}
		if lock != nil {
			lock.RecordSuccess(ip, req.User)
		}

		token, err := service.GenToken(id, role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "生成令牌失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": gin.H{"id": id, "username": req.User, "role": role}})
	}
}

// setupHandler 处理首次安装时的管理员创建请求
func setupHandler(db *sql.DB, token string, deadline time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			if service.UserCount(db) > 0 {
				c.JSON(http.StatusForbidden, gin.H{"error": "系统已安装，无法获取安装令牌"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
			return
		}

		if c.Request.Method == http.MethodPost {
			if service.UserCount(db) > 0 {
				c.JSON(http.StatusForbidden, gin.H{"error": "系统已存在管理员账户，无法重复设置"})
				return
			}
			var req struct {
				Token string `form:"token" json:"token" binding:"required"`
				User  string `form:"user" json:"user" binding:"required"`
				Pass  string `form:"pass" json:"pass" binding:"required"`
			}
			if err := c.ShouldBind(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "令牌、用户名或密码不能为空"})
				return
			}
			if req.Token != token || token == "" || time.Now().After(deadline) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "无效或过期的安装令牌"})
				return
			}
			if err := service.CreateAdmin(db, req.User, req.Pass); err != nil {
				log.Printf("ERROR: [API /setup] 创建管理员 '%s' 失败: %v", req.User, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "创建管理员失败: " + err.Error()})
				return
			}
			id, _, _ := service.CheckUser(db, req.User, req.Pass)
			jwtToken, err := service.GenToken(id, "admin")
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "为新管理员生成令牌失败"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": jwtToken, "user": gin.H{"id": id, "username": req.User, "role": "admin"}})
			return
		}
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "仅支持 GET 和 POST 方法"})
	}
}

// =============================================================================
//  管理员 API 处理器
// =============================================================================

func adminRegisterStoreHandler(admin port.StoreAdminService) gin.HandlerFunc {
	type registerPayload struct {
		Name     string `json:"name" binding:"required"`
		URL      string `json:"url" binding:"required"`
		Type     string `json:"type" binding:"required"`
		Priority int    `json:"priority"`
	}

	return func(c *gin.Context) {
		var payload registerPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的JSON请求体: " + err.Error()})
			return
		}
		if !domain.ValidStoreType(payload.Type) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "未知的商店类型: '" + payload.Type + "'"})
			return
		}

		store, err := admin.RegisterStore(c.Request.Context(), payload.Name, payload.URL, domain.StoreType(payload.Type), payload.Priority)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "注册商店失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": store})
	}
}

func adminListStoresHandler(admin port.StoreAdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stores, err := admin.ListStores(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取商店列表失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": stores})
	}
}

func adminSetStoreEnabledHandler(admin port.StoreAdminService) gin.HandlerFunc {
	type enabledPayload struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}

	return func(c *gin.Context) {
		var payload enabledPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的JSON请求体: " + err.Error()})
			return
		}
		if err := admin.SetStoreEnabled(c.Request.Context(), c.Param("id"), *payload.Enabled); err != nil {
			if errors.Is(err, port.ErrStoreNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "商店未找到"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新商店状态失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

func adminSyncStoreHandler(admin port.StoreAdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := admin.SyncStore(c.Request.Context(), c.Param("id"))
		if err != nil {
			switch {
			case errors.Is(err, port.ErrStoreNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "商店未找到"})
			case errors.Is(err, port.ErrStoreDisabled):
				c.JSON(http.StatusConflict, gin.H{"error": "商店已被禁用，无法同步"})
			default:
				c.JSON(http.StatusBadGateway, gin.H{"error": "同步失败: " + err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": store})
	}
}

func adminGetIPLimitSettingsHandler(configStore *service.LimitConfigStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		settings, err := configStore.GetIPLimitSettings(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取配置失败: " + err.Error()})
			return
		}
		if settings == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "未找到IP速率限制配置"})
			return
		}
		c.JSON(http.StatusOK, settings)
	}
}

func adminUpdateIPLimitSettingsHandler(configStore *service.LimitConfigStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload domain.IPLimitSetting
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的JSON请求体: " + err.Error()})
			return
		}
		if err := configStore.UpdateIPLimitSettings(c.Request.Context(), payload); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新配置失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

func adminGetUserLimitSettingsHandler(configStore *service.LimitConfigStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用户ID"})
			return
		}
		settings, err := configStore.GetUserLimitSettings(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取配置失败: " + err.Error()})
			return
		}
		if settings == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "该用户未设置专属速率限制"})
			return
		}
		c.JSON(http.StatusOK, settings)
	}
}

func adminUpdateUserLimitSettingsHandler(configStore *service.LimitConfigStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用户ID"})
			return
		}
		var payload domain.UserLimitSetting
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的JSON请求体: " + err.Error()})
			return
		}
		if err := configStore.UpdateUserLimitSettings(c.Request.Context(), userID, payload); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新配置失败: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}
