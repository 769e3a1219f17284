// Package taxonomy file: internal/service/taxonomy/service.go
package taxonomy

import (
	"context"
	"fmt"

	"PluginHarbor/internal/core/domain"
)

// Service 把分类与标签两个管理器拼成对外的统一门面（port.TaxonomyService）。
// 建议与统计计算都是纯内存操作，不会在 ctx 上挂起。
type Service struct {
	Categories *CategoryManager
	Tags       *TagManager
}

// NewService 创建门面并播种系统词表
func NewService() *Service {
	return &Service{
		Categories: NewCategoryManager(),
		Tags:       NewTagManager(),
	}
}

func (s *Service) GetCategoryTree(_ context.Context) ([]domain.PluginCategory, error) {
	return s.Categories.GetCategoryTree(), nil
}

func (s *Service) GetTags(_ context.Context) ([]domain.PluginTag, error) {
	return s.Tags.GetTags(), nil
}

func (s *Service) SuggestCategories(_ context.Context, entry domain.PluginStoreEntry) ([]domain.CategorySuggestion, error) {
	return s.Categories.SuggestCategories(entry), nil
}

func (s *Service) SuggestTags(_ context.Context, entry domain.PluginStoreEntry) ([]domain.TagSuggestion, error) {
	return s.Tags.SuggestTags(entry), nil
}

func (s *Service) GetCategoryStatistics(_ context.Context, categoryID string) (*domain.CategoryStatistics, error) {
	stats, ok := s.Categories.GetStatistics(categoryID)
	if !ok {
		return nil, fmt.Errorf("分类 '%s' 暂无统计快照", categoryID)
	}
	return &stats, nil
}

func (s *Service) GetTagStatistics(_ context.Context, tag string) (*domain.TagStatistics, error) {
	stats, ok := s.Tags.GetStatistics(tag)
	if !ok {
		return nil, fmt.Errorf("标签 '%s' 暂无统计快照", tag)
	}
	return &stats, nil
}

// RefreshStatistics 用一份新鲜目录同时重算两侧统计
func (s *Service) RefreshStatistics(entries []domain.PluginStoreEntry) {
	s.Categories.UpdateStatistics(entries)
	s.Tags.UpdateStatistics(entries)
}
