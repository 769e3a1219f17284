// Package harobserve 暴露 Prometheus 指标
package harobserve

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义
var (
	TotalSearch = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pluginharbor_searches_total",
		Help: "聚合搜索总数",
	})
	SearchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pluginharbor_search_duration_seconds",
		Help:    "聚合搜索耗时分布",
		Buckets: prometheus.DefBuckets,
	})
	StoreFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pluginharbor_store_failures_total",
		Help: "按商店统计的远端调用失败数",
	}, []string{"store"})
	RecCacheHit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pluginharbor_recommend_cache_hits_total",
		Help: "推荐缓存命中数",
	})
	RecCacheMiss = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pluginharbor_recommend_cache_misses_total",
		Help: "推荐缓存未命中数",
	})
	TotalDownload = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pluginharbor_downloads_total",
		Help: "插件制品下载总数",
	})
	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pluginharbor_http_request_duration_seconds",
		Help:    "HTTP 请求耗时分布",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "code"})
)

// Register 必须在 main 调用一次
func Register() {
	prometheus.MustRegister(TotalSearch, SearchLatency, StoreFailure, RecCacheHit, RecCacheMiss, TotalDownload, httpRequestDuration)
}

// Handler 返回 HTTP 处理器
func Handler() http.Handler { return promhttp.Handler() }

// PrometheusMiddleware 记录每个请求的耗时直方图。
// path 使用路由模板而不是原始 URL，避免高基数标签。
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path // 未匹配到路由时退化为原始路径
		}
		httpRequestDuration.
			WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
