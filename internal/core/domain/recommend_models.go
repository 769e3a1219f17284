// Package domain file: internal/core/domain/recommend_models.go
package domain

import "time"

// BehaviorAction 用户行为事件的动作类型
type BehaviorAction string

const (
	ActionView      BehaviorAction = "view"
	ActionDownload  BehaviorAction = "download"
	ActionInstall   BehaviorAction = "install"
	ActionRate      BehaviorAction = "rate"
	ActionUninstall BehaviorAction = "uninstall"
)

// ValidBehaviorAction 校验动作字符串是否合法
func ValidBehaviorAction(a string) bool {
	switch BehaviorAction(a) {
	case ActionView, ActionDownload, ActionInstall, ActionRate, ActionUninstall:
		return true
	}
	return false
}

// UserBehavior 一条只追加的用户行为事件。
// 每个用户的历史是一个容量上限 1000 的环：只从尾部追加、从头部截断，绝不原地修改。
type UserBehavior struct {
	UserID    string            `json:"user_id"`
	Action    BehaviorAction    `json:"action"`
	PluginID  string            `json:"plugin_id"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"` // 自由扩展位，如 rate 动作携带 "rating"
}

// RecommendationType 推荐策略类型
type RecommendationType string

const (
	RecommendContentBased  RecommendationType = "content_based"
	RecommendCollaborative RecommendationType = "collaborative"
	RecommendPopularity    RecommendationType = "popularity"
	RecommendBehavioral    RecommendationType = "behavioral"
	RecommendHybrid        RecommendationType = "hybrid"
)

// PluginRecommendation 一条推荐结果。
// 临时对象：每次请求重算，只在 TTL 缓存里短暂停留。
type PluginRecommendation struct {
	Plugin     PluginStoreEntry   `json:"plugin"`
	Score      float64            `json:"score"`      // 策略内部分值，组合前规约到 [0,1]
	Type       RecommendationType `json:"type"`       // 产生该条的策略
	Reason     string             `json:"reason"`     // 人类可读的推荐理由
	Confidence float64            `json:"confidence"` // [0,1]
}
