// Package domain file: internal/core/domain/catalog_models.go
package domain

import (
	"strings"
	"time"
)

// StoreType 插件商店的类型
type StoreType string

const (
	StoreTypeOfficial   StoreType = "official"   // 官方商店
	StoreTypeCommunity  StoreType = "community"  // 社区商店
	StoreTypeEnterprise StoreType = "enterprise" // 企业私有商店
	StoreTypeLocal      StoreType = "local"      // 本地目录商店
	StoreTypeDeveloper  StoreType = "developer"  // 开发者调试商店
)

// ValidStoreType 校验商店类型字符串是否合法
func ValidStoreType(t string) bool {
	switch StoreType(t) {
	case StoreTypeOfficial, StoreTypeCommunity, StoreTypeEnterprise, StoreTypeLocal, StoreTypeDeveloper:
		return true
	}
	return false
}

// PluginStore 代表一个插件目录源（商店）的元数据。
// 商店注册后不会被删除，只能被禁用；lastSync/pluginCount 仅在同步后刷新。
type PluginStore struct {
	ID          string     `json:"id"`           // 全局唯一ID
	Name        string     `json:"name"`         // 人类可读的名称
	URL         string     `json:"url"`          // 商店基础地址 (http/https/file)
	Type        StoreType  `json:"type"`         // 商店类型
	IsOfficial  bool       `json:"is_official"`  // 是否官方商店
	IsEnabled   bool       `json:"is_enabled"`   // 禁用后不参与聚合查询
	Priority    int        `json:"priority"`     // 优先级，越大越靠前
	LastSync    *time.Time `json:"last_sync"`    // 最近一次同步时间，未同步为 nil
	PluginCount int        `json:"plugin_count"` // 最近一次同步时的插件条目数
}

// PluginStoreEntry 代表某个商店公示的一个插件版本。
// (ID, Version) 是跨商店去重键：同一个键视为同一份制品，与 StoreID 无关。
// 条目一经构造不可变，新版本是新条目，绝不原地修改。
type PluginStoreEntry struct {
	ID             string     `json:"id"`              // 插件的全局唯一ID, e.g., "io.pluginharbor.palette"
	Name           string     `json:"name"`            // 人类可读的名称
	Version        string     `json:"version"`         // 版本号, e.g., "1.0.1"
	Description    string     `json:"description"`     // 简短描述
	Author         string     `json:"author"`          // 作者
	StoreID        string     `json:"store_id"`        // 所属商店ID
	Category       string     `json:"category"`        // 分类ID，可为空
	Tags           []string   `json:"tags"`            // 标签，集合语义，顺序无关
	Platforms      []string   `json:"platforms"`       // 支持的平台，e.g., "windows", "linux"
	License        string     `json:"license"`         // SPDX 许可证标识
	Rating         float64    `json:"rating"`          // 评分 0.0–5.0
	DownloadCount  int64      `json:"download_count"`  // 下载量 ≥0
	IsVerified     bool       `json:"is_verified"`     // 是否通过官方校验
	IsFeatured     bool       `json:"is_featured"`     // 是否编辑推荐
	HasDocs        bool       `json:"has_docs"`        // 是否带文档
	HasScreenshots bool       `json:"has_screenshots"` // 是否带截图
	DownloadURL    string     `json:"download_url"`    // 制品下载地址
	Checksum       string     `json:"checksum"`        // 制品校验和 (e.g., "sha256:f2ca...")
	PublishedAt    *time.Time `json:"published_at"`    // 发布时间，可为 nil
	UpdatedAt      *time.Time `json:"updated_at"`      // 最近更新时间，可为 nil
}

// DedupKey 返回跨商店去重键
func (e PluginStoreEntry) DedupKey() string {
	return e.ID + "@" + e.Version
}

// HasTag 判断条目是否带有指定标签（集合语义，不区分大小写）
func (e PluginStoreEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
