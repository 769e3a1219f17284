// Package search_engine file: internal/service/search_engine/engine.go
package search_engine

import (
	"log"
	"strings"
	"sync"

	"PluginHarbor/internal/core/domain"
)

const (
	maxHistoryEntries     = 1000 // 搜索历史上限，超出后丢弃最早的词
	defaultMaxSuggestions = 10
	facetTopN             = 10
)

// Engine 是进程内的搜索与索引引擎。
// 它维护四张倒排索引（关键词/分类/标签/作者）和一份按频次排名的搜索历史。
// 索引与历史都是进程级共享可变状态，全部由内部互斥锁保护，
// 任何公开方法都可以被并发调用。
type Engine struct {
	indexMu       sync.RWMutex
	keywordIndex  map[string][]string // 词 → entryID 列表
	categoryIndex map[string][]string // 分类(小写) → entryID 列表
	tagIndex      map[string][]string // 标签(小写) → entryID 列表
	authorIndex   map[string][]string // 作者(小写) → entryID 列表
	nameIndex     map[string]string   // 插件名(小写) → entryID

	historyMu    sync.Mutex
	historyCount map[string]int // 搜索词 → 累计次数
	historyOrder []string       // 首次出现顺序，用于容量截断

	maxSuggestions int
}

// NewEngine 创建一个空索引的搜索引擎
func NewEngine() *Engine {
	return &Engine{
		keywordIndex:   make(map[string][]string),
		categoryIndex:  make(map[string][]string),
		tagIndex:       make(map[string][]string),
		authorIndex:    make(map[string][]string),
		nameIndex:      make(map[string]string),
		historyCount:   make(map[string]int),
		maxSuggestions: defaultMaxSuggestions,
	}
}

// BuildIndex 全量重建四张倒排索引。
// 幂等：目录变化后随时整体重跑，不提供增量更新路径。
func (e *Engine) BuildIndex(entries []domain.PluginStoreEntry) {
	keyword := make(map[string][]string)
	category := make(map[string][]string)
	tag := make(map[string][]string)
	author := make(map[string][]string)
	name := make(map[string]string)

	for _, entry := range entries {
		seen := make(map[string]bool)
		for _, token := range tokenize(entry.Name) {
			if !seen[token] {
				keyword[token] = append(keyword[token], entry.ID)
				seen[token] = true
			}
		}
		for _, word := range tokenize(entry.Description) {
			// 描述里只收录长度大于2的词，过滤掉 "a"/"of" 之类的噪声
			if len(word) > 2 && !seen[word] {
				keyword[word] = append(keyword[word], entry.ID)
				seen[word] = true
			}
		}
		if entry.Category != "" {
			c := strings.ToLower(entry.Category)
			category[c] = append(category[c], entry.ID)
		}
		for _, t := range entry.Tags {
			lt := strings.ToLower(t)
			tag[lt] = append(tag[lt], entry.ID)
		}
		if entry.Author != "" {
			a := strings.ToLower(entry.Author)
			author[a] = append(author[a], entry.ID)
		}
		name[strings.ToLower(entry.Name)] = entry.ID
	}

	e.indexMu.Lock()
	e.keywordIndex = keyword
	e.categoryIndex = category
	e.tagIndex = tag
	e.authorIndex = author
	e.nameIndex = name
	e.indexMu.Unlock()

	log.Printf("🔍 [SearchEngine] 索引重建完成：%d 个条目, %d 个关键词, %d 个分类, %d 个标签, %d 个作者",
		len(entries), len(keyword), len(category), len(tag), len(author))
}

// tokenize 将文本切为小写词元，分隔符为任何非字母数字字符
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// recordSearch 把关键字计入搜索历史，供后续建议排序使用
func (e *Engine) recordSearch(keyword string) {
	keyword = strings.TrimSpace(strings.ToLower(keyword))
	if keyword == "" {
		return
	}

	e.historyMu.Lock()
	defer e.historyMu.Unlock()

	if _, exists := e.historyCount[keyword]; !exists {
		if len(e.historyOrder) >= maxHistoryEntries {
			oldest := e.historyOrder[0]
			e.historyOrder = e.historyOrder[1:]
			delete(e.historyCount, oldest)
		}
		e.historyOrder = append(e.historyOrder, keyword)
	}
	e.historyCount[keyword]++
}

// ClearHistory 清空搜索历史。历史是可重建的派生状态，清空不丢失任何权威数据。
func (e *Engine) ClearHistory() {
	e.historyMu.Lock()
	e.historyCount = make(map[string]int)
	e.historyOrder = nil
	e.historyMu.Unlock()
}
