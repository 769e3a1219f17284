// Package taxonomy file: internal/service/taxonomy/trending.go
package taxonomy

import (
	"math"
	"time"

	"PluginHarbor/internal/core/domain"
)

// trendingScore 分类与标签共用的热度公式：对节点成员逐个计
// log(下载+1)×0.3 + 评分×ratingWeight + 新鲜度加成(0.1–0.3) + 已校验 0.1 (+ 编辑推荐 0.1，仅分类)，
// 再取平均。ratingWeight 分类取 0.2，标签取 0.3。
func trendingScore(members []domain.PluginStoreEntry, ratingWeight float64, featuredBonus bool, now time.Time) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, e := range members {
		s := math.Log(float64(e.DownloadCount)+1) * 0.3
		s += e.Rating * ratingWeight
		s += freshnessBonus(e.UpdatedAt, now)
		if e.IsVerified {
			s += 0.1
		}
		if featuredBonus && e.IsFeatured {
			s += 0.1
		}
		sum += s
	}
	return sum / float64(len(members))
}

// freshnessBonus 按距上次更新的天数分档：7天内 0.3，30天内 0.2，90天内 0.1
func freshnessBonus(updatedAt *time.Time, now time.Time) float64 {
	if updatedAt == nil {
		return 0
	}
	days := now.Sub(*updatedAt).Hours() / 24
	switch {
	case days < 7:
		return 0.3
	case days < 30:
		return 0.2
	case days < 90:
		return 0.1
	}
	return 0
}
