package services

import (
	"context"
	"errors"
	"strconv"

	"hadiscover/internal/models"

	"gorm.io/gorm"
)

// Statistics summarizes the index for the landing page.
type Statistics struct {
	TotalRepositories int64   `json:"total_repositories"`
	TotalAutomations  int64   `json:"total_automations"`
	LastIndexedAt     *string `json:"last_indexed_at"`
	RepoStarCount     *int    `json:"repo_star_count"`
}

// Statistics returns corpus counts and indexer metadata. Failures are logged
// and yield zero values.
func (s *SearchService) Statistics(ctx context.Context) (stats *Statistics) {
	stats = &Statistics{}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("statistics panicked: %v", r)
			stats = &Statistics{}
		}
	}()

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Repository{}).Count(&stats.TotalRepositories).Error; err != nil {
		s.logger.WithError(err).Error("count repositories failed")
		return &Statistics{}
	}
	if err := db.Model(&models.Automation{}).Count(&stats.TotalAutomations).Error; err != nil {
		s.logger.WithError(err).Error("count automations failed")
		return &Statistics{}
	}

	if v, ok := s.metadata(ctx, models.MetadataLastCompletedAt); ok {
		stats.LastIndexedAt = &v
	}
	if v, ok := s.metadata(ctx, models.MetadataRepoStarCount); ok {
		if n, err := strconv.Atoi(v); err == nil {
			stats.RepoStarCount = &n
		}
	}
	return stats
}

func (s *SearchService) metadata(ctx context.Context, key string) (string, bool) {
	var m models.IndexingMetadata
	err := s.db.WithContext(ctx).Where(&models.IndexingMetadata{Key: key}).First(&m).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.WithError(err).Warnf("read metadata %s", key)
		}
		return "", false
	}
	return m.Value, true
}
