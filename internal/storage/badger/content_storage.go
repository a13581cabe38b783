package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

// ContentStorage implements the ContentStorage interface for Badger.
// Content rows are insert-only; concurrent mutation of the same row is
// impossible by construction.
type ContentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewContentStorage creates a new ContentStorage instance
func NewContentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ContentStorage {
	return &ContentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ContentStorage) SaveContent(ctx context.Context, content *models.Content) error {
	if content.ID == "" {
		return fmt.Errorf("content ID is required")
	}
	if content.JobID == "" {
		return fmt.Errorf("content job ID is required")
	}
	if content.CreatedAt.IsZero() {
		content.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(content.ID, content); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("content already exists: %s", content.ID)
		}
		return fmt.Errorf("failed to save content: %w", err)
	}
	return nil
}

// FindByJobID returns all content rows for a job ordered by scenario_id
// ascending; completion order is not meaningful to callers.
func (s *ContentStorage) FindByJobID(ctx context.Context, jobID string) ([]*models.Content, error) {
	var rows []models.Content
	if err := s.db.Store().Find(&rows, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to find content for job %s: %w", jobID, err)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ScenarioID < rows[j].ScenarioID
	})

	result := make([]*models.Content, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (s *ContentStorage) StatsByJobID(ctx context.Context, jobID string) (*models.ContentStats, error) {
	rows, err := s.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	stats := &models.ContentStats{}
	var totalGenMs int64
	okCount := 0
	for _, row := range rows {
		if row.Status != models.ContentStatusOK {
			continue
		}
		okCount++
		stats.TotalWords += row.WordCount
		totalGenMs += row.GenerationTimeMs
	}

	stats.TotalPosts = okCount
	if okCount > 0 {
		stats.AvgWordCount = stats.TotalWords / okCount
		stats.AvgGenerationTimeMs = totalGenMs / int64(okCount)
	}
	return stats, nil
}

func (s *ContentStorage) CountByStatus(ctx context.Context, jobID string, status models.ContentStatus) (int, error) {
	count, err := s.db.Store().Count(&models.Content{},
		badgerhold.Where("JobID").Eq(jobID).And("Status").Eq(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count content: %w", err)
	}
	return int(count), nil
}

func (s *ContentStorage) DeleteByJobID(ctx context.Context, jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.Content{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete content for job %s: %w", jobID, err)
	}
	return nil
}
