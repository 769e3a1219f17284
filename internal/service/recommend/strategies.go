// Package recommend file: internal/service/recommend/strategies.go
package recommend

import (
	"fmt"
	"math"
	"strings"
	"time"

	"PluginHarbor/internal/core/domain"
)

// 混合策略的组合权重
const (
	hybridWeightContent       = 0.30
	hybridWeightCollaborative = 0.25
	hybridWeightPopularity    = 0.20
	hybridWeightBehavioral    = 0.25

	// 协同过滤的相似用户判定阈值（Jaccard）
	similarUserThreshold = 0.2

	// 人气分的下载量参考上限
	popularityDownloadCap = 10000
)

// userProfile 内容策略使用的用户画像：来自已安装插件的频次加权映射
type userProfile struct {
	categories map[string]int
	tags       map[string]int
	authors    map[string]int
	platforms  map[string]int
	totalCat   int
	totalTag   int
	totalAuth  int
	totalPlat  int
}

// buildProfile 从已安装插件构建画像；空集合得到空画像（各维度质量为 0）
func buildProfile(installed map[string]bool, catalog map[string]domain.PluginStoreEntry) userProfile {
	p := userProfile{
		categories: make(map[string]int),
		tags:       make(map[string]int),
		authors:    make(map[string]int),
		platforms:  make(map[string]int),
	}
	for id := range installed {
		entry, ok := catalog[id]
		if !ok {
			continue
		}
		if entry.Category != "" {
			p.categories[strings.ToLower(entry.Category)]++
			p.totalCat++
		}
		for _, t := range entry.Tags {
			p.tags[strings.ToLower(t)]++
			p.totalTag++
		}
		if entry.Author != "" {
			p.authors[strings.ToLower(entry.Author)]++
			p.totalAuth++
		}
		for _, pl := range entry.Platforms {
			p.platforms[strings.ToLower(pl)]++
			p.totalPlat++
		}
	}
	return p
}

// contentScore 内容相似策略：按画像各维度的重叠占比加权。
// 分类 0.3，标签 0.4（逐个匹配标签取占比后平均），作者 0.1，平台 0.2。
// 空画像得 0 分，绝不报错。
func contentScore(entry domain.PluginStoreEntry, p userProfile) (float64, string) {
	var score float64
	var reasons []string

	if p.totalCat > 0 && entry.Category != "" {
		if n := p.categories[strings.ToLower(entry.Category)]; n > 0 {
			score += 0.3 * float64(n) / float64(p.totalCat)
			reasons = append(reasons, fmt.Sprintf("同类插件 '%s'", entry.Category))
		}
	}
	if p.totalTag > 0 && len(entry.Tags) > 0 {
		var tagSum float64
		matched := 0
		for _, t := range entry.Tags {
			if n := p.tags[strings.ToLower(t)]; n > 0 {
				tagSum += float64(n) / float64(p.totalTag)
				matched++
			}
		}
		if matched > 0 {
			score += 0.4 * tagSum / float64(matched)
			reasons = append(reasons, fmt.Sprintf("%d 个标签与常用插件重合", matched))
		}
	}
	if p.totalAuth > 0 && entry.Author != "" {
		if n := p.authors[strings.ToLower(entry.Author)]; n > 0 {
			score += 0.1 * float64(n) / float64(p.totalAuth)
			reasons = append(reasons, fmt.Sprintf("来自熟悉的作者 '%s'", entry.Author))
		}
	}
	if p.totalPlat > 0 && len(entry.Platforms) > 0 {
		var platSum float64
		matched := 0
		for _, pl := range entry.Platforms {
			if n := p.platforms[strings.ToLower(pl)]; n > 0 {
				platSum += float64(n) / float64(p.totalPlat)
				matched++
			}
		}
		if matched > 0 {
			score += 0.2 * platSum / float64(matched)
		}
	}

	return score, strings.Join(reasons, "；")
}

// jaccard 交并比。两个空集视为 0 相似。
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// similarUser 协同过滤发现的相似用户
type similarUser struct {
	userID    string
	installed map[string]bool
	ratings   map[string]float64
}

// collaborativeScore 协同过滤：相似用户中安装过(0.5) 或评过分(0.5×评分/5)
// 该候选的比例取平均。没有相似用户时得 0。
func collaborativeScore(entry domain.PluginStoreEntry, similar []similarUser) (float64, string) {
	if len(similar) == 0 {
		return 0, ""
	}
	var sum float64
	supporters := 0
	for _, u := range similar {
		var part float64
		if u.installed[entry.ID] {
			part += 0.5
		}
		if rating, ok := u.ratings[entry.ID]; ok {
			part += 0.5 * (rating / 5.0)
		}
		if part > 0 {
			supporters++
		}
		sum += part
	}
	if supporters == 0 {
		return 0, ""
	}
	return sum / float64(len(similar)), fmt.Sprintf("%d 位相似用户安装或好评", supporters)
}

// popularityScore 纯目录派生的人气分：
// 对数下载量(参考上限 10000)×0.4 + 评分/5×0.3 + 已校验 +0.2 + 编辑推荐 +0.1。
func popularityScore(entry domain.PluginStoreEntry) (float64, string) {
	dl := math.Min(math.Log(float64(entry.DownloadCount)+1)/math.Log(popularityDownloadCap+1), 1.0)
	score := 0.4 * dl
	score += 0.3 * (entry.Rating / 5.0)
	var reasons []string
	if entry.DownloadCount > 0 {
		reasons = append(reasons, fmt.Sprintf("%d 次下载", entry.DownloadCount))
	}
	if entry.IsVerified {
		score += 0.2
		reasons = append(reasons, "官方校验")
	}
	if entry.IsFeatured {
		score += 0.1
		reasons = append(reasons, "编辑推荐")
	}
	return score, strings.Join(reasons, "；")
}

// behavioralScore 行为策略：候选与用户近期接触过的插件有标签/分类重叠 +0.3；
// 最近 30 天内有任何活动再 +0.2（活跃度加成，与具体候选无关）。
func behavioralScore(entry domain.PluginStoreEntry, history []domain.UserBehavior, catalog map[string]domain.PluginStoreEntry, now time.Time) (float64, string) {
	if len(history) == 0 {
		return 0, ""
	}

	touchedTags := make(map[string]bool)
	touchedCats := make(map[string]bool)
	recentActivity := false
	for _, b := range history {
		if touched, ok := catalog[b.PluginID]; ok {
			for _, t := range touched.Tags {
				touchedTags[strings.ToLower(t)] = true
			}
			if touched.Category != "" {
				touchedCats[strings.ToLower(touched.Category)] = true
			}
		}
		if now.Sub(b.Timestamp) <= 30*24*time.Hour {
			recentActivity = true
		}
	}

	var score float64
	var reasons []string
	overlap := false
	for _, t := range entry.Tags {
		if touchedTags[strings.ToLower(t)] {
			overlap = true
			break
		}
	}
	if !overlap && entry.Category != "" && touchedCats[strings.ToLower(entry.Category)] {
		overlap = true
	}
	if overlap {
		score += 0.3
		reasons = append(reasons, "与最近浏览的插件同类")
	}
	if recentActivity {
		score += 0.2
	}
	return score, strings.Join(reasons, "；")
}
