// Package recommend file: internal/service/recommend/engine.go
package recommend

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/harobserve"
)

const defaultCacheTTL = time.Hour

// Engine 推荐引擎：四个独立策略加一个加权混合，外带一个 TTL 缓存。
// 候选集 = 目录减去已安装；策略打分是纯内存计算，不挂起。
// 过期缓存只是不被命中（按时间戳判断），除显式 CleanExpiredCache 外不主动驱逐。
type Engine struct {
	behaviors *BehaviorStore
	cache     *gocache.Cache
	ttl       time.Duration

	// 各用户声明过的已安装集合（来自推荐请求），协同过滤的相似度底料。
	// 行为环推导出的安装集合会并入其中。
	installedMu  sync.RWMutex
	installedSet map[string]map[string]bool
}

// NewEngine 创建推荐引擎。ttl<=0 时取缺省 1 小时。
// go-cache 的清扫协程被禁用（interval=0）：过期条目惰性失效，
// 只有 CleanExpiredCache 会真正回收。
func NewEngine(behaviors *BehaviorStore, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Engine{
		behaviors:    behaviors,
		cache:        gocache.New(ttl, 0),
		ttl:          ttl,
		installedSet: make(map[string]map[string]bool),
	}
}

// RecordUserBehavior 追加一条行为事件——个性化状态唯一的写入路径
func (e *Engine) RecordUserBehavior(_ context.Context, b domain.UserBehavior) error {
	if err := e.behaviors.Append(b); err != nil {
		return err
	}
	// install/uninstall 同步维护协同过滤的安装集合
	switch b.Action {
	case domain.ActionInstall:
		e.installedMu.Lock()
		if e.installedSet[b.UserID] == nil {
			e.installedSet[b.UserID] = make(map[string]bool)
		}
		e.installedSet[b.UserID][b.PluginID] = true
		e.installedMu.Unlock()
	case domain.ActionUninstall:
		e.installedMu.Lock()
		delete(e.installedSet[b.UserID], b.PluginID)
		e.installedMu.Unlock()
	}
	return nil
}

// Recommend 计算个性化推荐。
//   - userID/installed 描述请求方用户
//   - catalog 为当前聚合目录
//   - categories 非空时把候选集限制在这些分类内（进入缓存键）
//   - recType 指定单一策略或混合（缺省混合）
//
// 策略对缺失的画像数据从不报错：空画像就是零分，调用方据此退化为人气排序。
func (e *Engine) Recommend(_ context.Context, userID string, installed []string, catalog []domain.PluginStoreEntry, categories []string, recType domain.RecommendationType, limit int) ([]domain.PluginRecommendation, error) {
	if recType == "" {
		recType = domain.RecommendHybrid
	}
	if limit <= 0 {
		limit = 10
	}

	cacheKey := recommendCacheKey(userID, categories, recType)
	if cached, found := e.cache.Get(cacheKey); found {
		harobserve.RecCacheHit.Inc()
		recs := cached.([]domain.PluginRecommendation)
		if len(recs) > limit {
			recs = recs[:limit]
		}
		return recs, nil
	}
	harobserve.RecCacheMiss.Inc()

	// 声明的已安装集合并入协同过滤底料
	installedSet := make(map[string]bool, len(installed))
	for _, id := range installed {
		installedSet[id] = true
	}
	for id := range e.behaviors.InstalledSet(userID) {
		installedSet[id] = true
	}
	// 发布一份拷贝供其他请求的协同过滤读取；本地集合留给本次计算独占
	published := make(map[string]bool, len(installedSet))
	for id := range installedSet {
		published[id] = true
	}
	e.installedMu.Lock()
	e.installedSet[userID] = published
	e.installedMu.Unlock()

	// 候选集 = 目录 − 已安装 (− 分类过滤)
	catalogByID := make(map[string]domain.PluginStoreEntry, len(catalog))
	var candidates []domain.PluginStoreEntry
	allowCat := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowCat[strings.ToLower(c)] = true
	}
	for _, entry := range catalog {
		catalogByID[entry.ID] = entry
		if installedSet[entry.ID] {
			continue
		}
		if len(allowCat) > 0 && !allowCat[strings.ToLower(entry.Category)] {
			continue
		}
		candidates = append(candidates, entry)
	}

	recs := e.compute(userID, installedSet, candidates, catalogByID, recType)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })

	e.cache.Set(cacheKey, recs, e.ttl)

	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// compute 执行指定策略；hybrid 跑全部四个再线性组合
func (e *Engine) compute(userID string, installedSet map[string]bool, candidates []domain.PluginStoreEntry, catalogByID map[string]domain.PluginStoreEntry, recType domain.RecommendationType) []domain.PluginRecommendation {
	now := time.Now()
	profile := buildProfile(installedSet, catalogByID)
	history := e.behaviors.History(userID)
	similar := e.findSimilarUsers(userID, installedSet)

	recs := make([]domain.PluginRecommendation, 0, len(candidates))
	for _, entry := range candidates {
		switch recType {
		case domain.RecommendContentBased:
			score, reason := contentScore(entry, profile)
			if score > 0 {
				recs = append(recs, newRecommendation(entry, score, recType, reason))
			}
		case domain.RecommendCollaborative:
			score, reason := collaborativeScore(entry, similar)
			if score > 0 {
				recs = append(recs, newRecommendation(entry, score, recType, reason))
			}
		case domain.RecommendPopularity:
			score, reason := popularityScore(entry)
			if score > 0 {
				recs = append(recs, newRecommendation(entry, score, recType, reason))
			}
		case domain.RecommendBehavioral:
			score, reason := behavioralScore(entry, history, catalogByID, now)
			if score > 0 {
				recs = append(recs, newRecommendation(entry, score, recType, reason))
			}
		default: // hybrid
			cs, cr := contentScore(entry, profile)
			ls, lr := collaborativeScore(entry, similar)
			ps, pr := popularityScore(entry)
			bs, br := behavioralScore(entry, history, catalogByID, now)

			total := cs*hybridWeightContent + ls*hybridWeightCollaborative +
				ps*hybridWeightPopularity + bs*hybridWeightBehavioral
			if total <= 0 {
				continue
			}
			var reasons []string
			for _, r := range []string{cr, lr, pr, br} {
				if r != "" {
					reasons = append(reasons, r)
				}
			}
			rec := newRecommendation(entry, total, domain.RecommendHybrid, strings.Join(reasons, "；"))
			recs = append(recs, rec)
		}
	}
	return recs
}

// newRecommendation confidence = min(score, 1)，任何路径都不得越过上限
func newRecommendation(entry domain.PluginStoreEntry, score float64, recType domain.RecommendationType, reason string) domain.PluginRecommendation {
	confidence := score
	if confidence > 1 {
		confidence = 1
	}
	return domain.PluginRecommendation{
		Plugin:     entry,
		Score:      score,
		Type:       recType,
		Reason:     reason,
		Confidence: confidence,
	}
}

// findSimilarUsers Jaccard 相似度 > 0.2 的其他用户
func (e *Engine) findSimilarUsers(userID string, installed map[string]bool) []similarUser {
	var similar []similarUser

	// 锁内拷贝安装集合：行为写入随时会改动原 map，出锁后不得再碰
	e.installedMu.RLock()
	others := make(map[string]map[string]bool, len(e.installedSet))
	for id, set := range e.installedSet {
		if id == userID {
			continue
		}
		copied := make(map[string]bool, len(set))
		for pid := range set {
			copied[pid] = true
		}
		others[id] = copied
	}
	e.installedMu.RUnlock()

	// 行为环里有历史但从未出现在 installedSet 的用户也纳入比较
	for _, id := range e.behaviors.UserIDs() {
		if id == userID {
			continue
		}
		if _, seen := others[id]; !seen {
			others[id] = e.behaviors.InstalledSet(id)
		}
	}

	for id, set := range others {
		if jaccard(installed, set) > similarUserThreshold {
			similar = append(similar, similarUser{
				userID:    id,
				installed: set,
				ratings:   e.behaviors.Ratings(id),
			})
		}
	}
	sort.Slice(similar, func(i, j int) bool { return similar[i].userID < similar[j].userID })
	return similar
}

// CleanExpiredCache 显式回收过期缓存条目，唯一的主动驱逐入口
func (e *Engine) CleanExpiredCache() {
	before := e.cache.ItemCount()
	e.cache.DeleteExpired()
	log.Printf("🧹 [Recommend] 过期推荐缓存清理完成: %d → %d", before, e.cache.ItemCount())
}

// ClearCache 清空全部推荐缓存。缓存永远可以从目录重算，清空无损。
func (e *Engine) ClearCache() {
	e.cache.Flush()
}

func recommendCacheKey(userID string, categories []string, recType domain.RecommendationType) string {
	sorted := make([]string, len(categories))
	copy(sorted, categories)
	sort.Strings(sorted)
	return fmt.Sprintf("%s|%s|%s", userID, strings.Join(sorted, ","), recType)
}
