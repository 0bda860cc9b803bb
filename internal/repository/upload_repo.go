package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/codeclash-dev/codeclash-api/internal/models"
)

// UploadRepository records stored files for audit.
type UploadRepository interface {
	Create(ctx context.Context, record *models.UploadRecord) error
}

// NewUploadRepository constructs an upload repository.
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

type uploadRepository struct {
	db *gorm.DB
}

func (r *uploadRepository) Create(ctx context.Context, record *models.UploadRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}
