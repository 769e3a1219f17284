// Package search_engine file: internal/service/search_engine/suggest.go
package search_engine

import (
	"sort"
	"strings"

	"PluginHarbor/internal/core/domain"
)

// GetSuggestions 自动补全。
// 空查询返回最常用的前5个历史搜索词；非空查询对历史、分类、标签、作者、
// 插件名五路做子串匹配，合并后按分值降序截断到 maxSuggestions。
func (e *Engine) GetSuggestions(query string) []domain.SearchSuggestion {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return e.topHistory(5)
	}

	var suggestions []domain.SearchSuggestion

	e.historyMu.Lock()
	for keyword, count := range e.historyCount {
		if strings.Contains(keyword, query) {
			suggestions = append(suggestions, domain.SearchSuggestion{
				Text:  keyword,
				Type:  domain.SuggestionHistory,
				Score: float64(count),
			})
		}
	}
	e.historyMu.Unlock()

	e.indexMu.RLock()
	for category, ids := range e.categoryIndex {
		if strings.Contains(category, query) {
			suggestions = append(suggestions, domain.SearchSuggestion{
				Text:  category,
				Type:  domain.SuggestionCategory,
				Score: float64(len(ids)),
			})
		}
	}
	for tag, ids := range e.tagIndex {
		if strings.Contains(tag, query) {
			suggestions = append(suggestions, domain.SearchSuggestion{
				Text:  tag,
				Type:  domain.SuggestionTag,
				Score: float64(len(ids)),
			})
		}
	}
	for author, ids := range e.authorIndex {
		if strings.Contains(author, query) {
			suggestions = append(suggestions, domain.SearchSuggestion{
				Text:  author,
				Type:  domain.SuggestionAuthor,
				Score: float64(len(ids)),
			})
		}
	}
	for name := range e.nameIndex {
		if strings.Contains(name, query) {
			suggestions = append(suggestions, domain.SearchSuggestion{
				Text:  name,
				Type:  domain.SuggestionPlugin,
				Score: 1,
			})
		}
	}
	e.indexMu.RUnlock()

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Text < suggestions[j].Text
	})
	if len(suggestions) > e.maxSuggestions {
		suggestions = suggestions[:e.maxSuggestions]
	}
	return suggestions
}

// topHistory 按累计次数取前 n 个历史搜索词
func (e *Engine) topHistory(n int) []domain.SearchSuggestion {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()

	out := make([]domain.SearchSuggestion, 0, len(e.historyCount))
	for keyword, count := range e.historyCount {
		out = append(out, domain.SearchSuggestion{
			Text:  keyword,
			Type:  domain.SuggestionHistory,
			Score: float64(count),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Text < out[j].Text
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
