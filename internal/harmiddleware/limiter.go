// Package harmiddleware file: internal/harmiddleware/limiter.go
package harmiddleware

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/service"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// LimitConfigProvider 提供持久化的速率限制配置。
// 生产实现为 service.LimitConfigStore。
type LimitConfigProvider interface {
	GetIPLimitSettings(ctx context.Context) (*domain.IPLimitSetting, error)
	GetUserLimitSettings(ctx context.Context, userID int64) (*domain.UserLimitSetting, error)
}

// limiterEntry 存储限制器和最后访问时间
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ============================================================================
//  网关速率限制器 (Gateway Rate Limiter)
// ============================================================================

// GatewayRateLimiter 是一个统一的结构，管理网关的全部速率限制层。
type GatewayRateLimiter struct {
	configService LimitConfigProvider

	globalLimiter *rate.Limiter

	ipLimiters     map[string]*limiterEntry
	ipMu           sync.Mutex
	ipDefaultRate  rate.Limit
	ipDefaultBurst int

	userLimiters     map[int64]*limiterEntry
	userMu           sync.Mutex
	userDefaultRate  rate.Limit
	userDefaultBurst int
}

// NewGatewayRateLimiter 创建一个新的网关速率限制器。
func NewGatewayRateLimiter(cs LimitConfigProvider, globalRate float64, globalBurst int) *GatewayRateLimiter {
	grl := &GatewayRateLimiter{
		configService: cs,

		globalLimiter: rate.NewLimiter(rate.Limit(globalRate), globalBurst),

		ipLimiters:     make(map[string]*limiterEntry),
		ipDefaultRate:  1.0, // 默认 60 req/min
		ipDefaultBurst: 20,

		userLimiters:     make(map[int64]*limiterEntry),
		userDefaultRate:  5.0, // 已认证用户默认 5 req/s
		userDefaultBurst: 15,
	}

	grl.loadIPDefaultSettings()
	go grl.cleanupIPs()
	go grl.cleanupUsers()

	log.Printf(
		"信息: [Gateway Limiter] 初始化完成。全局限制: %.2f req/s, 峰值: %d。IP默认限制: %.2f req/s, 峰值: %d",
		globalRate, globalBurst, grl.ipDefaultRate, grl.ipDefaultBurst,
	)

	return grl
}

// SetIPDefaultRateForTest 测试钩子：直接覆盖IP默认限速。
func (grl *GatewayRateLimiter) SetIPDefaultRateForTest(r rate.Limit, burst int) {
	grl.ipMu.Lock()
	grl.ipDefaultRate = r
	grl.ipDefaultBurst = burst
	grl.ipMu.Unlock()
}

// loadIPDefaultSettings 从数据库加载IP限制的默认配置。
func (grl *GatewayRateLimiter) loadIPDefaultSettings() {
	if grl.configService == nil {
		return
	}
	settings, err := grl.configService.GetIPLimitSettings(context.Background())
	if err == nil && settings != nil {
		grl.ipDefaultRate = rate.Limit(settings.RateLimitPerMinute / 60.0)
		grl.ipDefaultBurst = settings.BurstSize
		log.Printf("信息: [Gateway Limiter] 已从数据库加载IP速率限制默认值 (Rate: %.2f/min, Burst: %d)", settings.RateLimitPerMinute, settings.BurstSize)
	} else if err != nil {
		log.Printf("警告: [Gateway Limiter] 从数据库加载IP速率限制默认值失败: %v。将使用硬编码的默认值。", err)
	}
}

// cleanupIPs 定期清理不活跃的IP条目
func (grl *GatewayRateLimiter) cleanupIPs() {
	for {
		time.Sleep(10 * time.Minute)
		grl.ipMu.Lock()
		for ip, entry := range grl.ipLimiters {
			if time.Since(entry.lastSeen) > 15*time.Minute {
				delete(grl.ipLimiters, ip)
			}
		}
		grl.ipMu.Unlock()
	}
}

// cleanupUsers 定期清理不活跃的用户条目
func (grl *GatewayRateLimiter) cleanupUsers() {
	for {
		time.Sleep(10 * time.Minute)
		grl.userMu.Lock()
		for id, entry := range grl.userLimiters {
			if time.Since(entry.lastSeen) > 15*time.Minute {
				delete(grl.userLimiters, id)
			}
		}
		grl.userMu.Unlock()
	}
}

// ==================================================================
//  模块化的中间件方法
// ==================================================================

// Global 返回全局限制中间件
func (grl *GatewayRateLimiter) Global(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !grl.globalLimiter.Allow() {
			errResp(w, http.StatusTooManyRequests, "系统繁忙，请稍后再试 (global limit)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PerIP 返回IP限制中间件
func (grl *GatewayRateLimiter) PerIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		grl.ipMu.Lock()
		entry, exists := grl.ipLimiters[ip]
		if !exists {
			limiter := rate.NewLimiter(grl.ipDefaultRate, grl.ipDefaultBurst)
			entry = &limiterEntry{limiter: limiter, lastSeen: time.Now()}
			grl.ipLimiters[ip] = entry
		}
		entry.lastSeen = time.Now()
		grl.ipMu.Unlock()

		if !entry.limiter.Allow() {
			errResp(w, http.StatusTooManyRequests, "您的请求过于频繁，请稍后再试 (per-ip limit)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PerUser 返回用户限制中间件
func (grl *GatewayRateLimiter) PerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := service.ClaimFrom(r)
		if claims == nil { // 对于未认证用户，此中间件直接放行
			next.ServeHTTP(w, r)
			return
		}

		userID := claims.ID
		grl.userMu.Lock()
		entry, exists := grl.userLimiters[userID]
		if !exists {
			rateLimit, burstSize := grl.userDefaultRate, grl.userDefaultBurst // 先使用默认值
			if grl.configService != nil {
				if userSettings, err := grl.configService.GetUserLimitSettings(r.Context(), userID); err == nil && userSettings != nil {
					rateLimit = rate.Limit(userSettings.RateLimitPerSecond)
					burstSize = userSettings.BurstSize
					log.Printf("调试: [Gateway Limiter] 为用户ID %d 加载了特定速率限制: %.2f req/s, burst %d", userID, rateLimit, burstSize)
				}
			}
			limiter := rate.NewLimiter(rateLimit, burstSize)
			entry = &limiterEntry{limiter: limiter, lastSeen: time.Now()}
			grl.userLimiters[userID] = entry
		}
		entry.lastSeen = time.Now()
		grl.userMu.Unlock()

		if !entry.limiter.Allow() {
			errResp(w, http.StatusTooManyRequests, "您的账户请求过于频繁，请稍后再试 (per-user limit)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FullChain 组合了所有限制层，用于核心发现/推荐API。
func (grl *GatewayRateLimiter) FullChain(next http.Handler) http.Handler {
	// 顺序: Global -> IP -> User -> Handler
	return grl.Global(grl.PerIP(grl.PerUser(next)))
}

// LightweightChain 组合了基础的限制层，用于公共/轻量级API。
func (grl *GatewayRateLimiter) LightweightChain(next http.Handler) http.Handler {
	// 顺序: Global -> IP -> Handler
	return grl.Global(grl.PerIP(next))
}

// getClientIP 从请求中获取客户端IP地址，考虑代理情况
func getClientIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	if ip != "" {
		return ip
	}
	ip = r.Header.Get("X-Real-IP")
	if ip != "" {
		return ip
	}
	ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	return ip
}

// ============================================================================
//  失败计数与临时锁定 (Failure Counting & Temporary Lockout)
// ============================================================================

// LoginFailureLock 结构体，用于实现登录失败锁定逻辑
type LoginFailureLock struct {
	failureCache    *cache.Cache
	maxFailures     int
	lockoutDuration time.Duration
}

// NewLoginFailureLock 创建一个新的登录失败锁定器
func NewLoginFailureLock(maxFailures int, lockoutDuration time.Duration) *LoginFailureLock {
	return &LoginFailureLock{
		failureCache:    cache.New(5*time.Minute, 10*time.Minute),
		maxFailures:     maxFailures,
		lockoutDuration: lockoutDuration,
	}
}

// IsLocked 报告某个 IP+用户名组合当前是否处于锁定期
func (l *LoginFailureLock) IsLocked(ip, username string) bool {
	_, found := l.failureCache.Get("lock:" + ip + ":" + username)
	if found {
		log.Printf("警告: [Login Lock] 已锁定的账户 '%s' (来自IP: %s) 再次尝试登录。", username, ip)
	}
	return found
}

// RecordFailure 登记一次登录失败，次数达到上限时触发临时锁定
func (l *LoginFailureLock) RecordFailure(ip, username string) {
	failureKey := "failures:" + ip + ":" + username

	// Increment 在 key 不存在时报错，此时初始化为 1
	if err := l.failureCache.Increment(failureKey, int64(1)); err != nil {
		l.failureCache.Set(failureKey, int64(1), cache.DefaultExpiration)
	}

	var currentFailures int
	if x, found := l.failureCache.Get(failureKey); found {
		currentFailures = int(x.(int64))
	}

	log.Printf("信息: [Login Failure] 账户 '%s' (来自IP: %s) 登录失败，当前失败次数: %d", username, ip, currentFailures)

	if currentFailures >= l.maxFailures {
		l.failureCache.Set("lock:"+ip+":"+username, true, l.lockoutDuration)
		l.failureCache.Delete(failureKey)
		log.Printf("警告: [Login Lock] 账户 '%s' (来自IP: %s) 已被临时锁定 %v。", username, ip, l.lockoutDuration)
	}
}

// RecordSuccess 登录成功后清空失败计数
func (l *LoginFailureLock) RecordSuccess(ip, username string) {
	l.failureCache.Delete("failures:" + ip + ":" + username)
}

// ClientIP 暴露网关的客户端IP解析逻辑，供 HTTP 处理器复用
func ClientIP(r *http.Request) string {
	return getClientIP(r)
}

// errResp 输出统一的 JSON 错误
func errResp(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
