// Package domain file: internal/core/domain/limit_models.go
package domain

// IPLimitSetting 未认证IP的全局速率限制配置
type IPLimitSetting struct {
	RateLimitPerMinute float64 `json:"rate_limit_per_minute"`
	BurstSize          int     `json:"burst_size"`
}

// UserLimitSetting 已认证用户的个性化速率限制配置
type UserLimitSetting struct {
	RateLimitPerSecond float64 `json:"rate_limit_per_second"`
	BurstSize          int     `json:"burst_size"`
}
