package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/codeclash-dev/codeclash-api/internal/models"
)

// SubmissionRepository exposes persistence operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, offset, limit int) ([]models.Submission, int64, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Submission, error)
	ListByTask(ctx context.Context, taskID uint, userID *uint, offset, limit int) ([]models.Submission, int64, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByTaskAndUser(ctx context.Context, taskID, userID uint) (models.Submission, error)
	CreateWithTaskCounter(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	Delete(ctx context.Context, id uint) error
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) List(ctx context.Context, offset, limit int) ([]models.Submission, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Submission{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var submissions []models.Submission
	err := db.
		Preload("Task").
		Preload("User").
		Order("submitted_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&submissions).Error
	if err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (r *submissionRepository) ListByUser(ctx context.Context, userID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Preload("Task").
		Where("user_id = ?", userID).
		Order("submitted_at DESC").
		Find(&submissions).Error
	return submissions, err
}

func (r *submissionRepository) ListByTask(ctx context.Context, taskID uint, userID *uint, offset, limit int) ([]models.Submission, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Submission{}).Where("task_id = ?", taskID)
	if userID != nil {
		db = db.Where("user_id = ?", *userID)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var submissions []models.Submission
	err := db.
		Preload("User").
		Order("submitted_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&submissions).Error
	if err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Preload("Task").
		Preload("User").
		First(&submission, id).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByTaskAndUser(ctx context.Context, taskID, userID uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

// CreateWithTaskCounter inserts the submission and bumps the task's
// submission counter in the same transaction, so the counter never
// drifts from the row count.
func (r *submissionRepository) CreateWithTaskCounter(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(submission).Error; err != nil {
			return err
		}
		return tx.Model(&models.Task{}).
			Where("id = ?", submission.TaskID).
			UpdateColumn("submission_count", gorm.Expr("submission_count + 1")).Error
	})
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Submission{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
