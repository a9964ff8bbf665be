package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/deepresearch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultHistoryLimit = 50

// ResearchRepository archives jobs that reached a terminal status.
type ResearchRepository struct {
	db *gorm.DB
}

// NewResearchRepository creates a new ResearchRepository.
func NewResearchRepository(db *gorm.DB) *ResearchRepository {
	return &ResearchRepository{db: db}
}

// Save creates or replaces the archived copy of job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job snapshot to persist.
//
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ResearchRepository) Save(ctx context.Context, job *domain.Job) error {
	rec := domain.NewResearchRecord(job)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(rec).Error
}

// GetByID returns an archived job, or domain.ErrJobNotFound.
func (r *ResearchRepository) GetByID(ctx context.Context, id string) (*domain.ResearchRecord, error) {
	var rec domain.ResearchRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get research record: %w", err)
	}
	return &rec, nil
}

// List returns archived jobs, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records; <= 0 uses the default of 50.
//   - status: optional status filter; empty matches all.
//
// Returns:
//   - []domain.ResearchRecord: archived jobs.
//   - error: non-nil if the query fails.
func (r *ResearchRepository) List(ctx context.Context, limit int, status domain.JobStatus) ([]domain.ResearchRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query := r.db.WithContext(ctx).Model(&domain.ResearchRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var recs []domain.ResearchRecord
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list research records: %w", err)
	}
	return recs, nil
}

// Delete removes an archived job. Missing ids are not an error.
func (r *ResearchRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.ResearchRecord{}).Error
}
