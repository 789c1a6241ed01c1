package repository

import (
	"context"

	"postpilot/internal/models"
	"postpilot/internal/observability"

	"gorm.io/gorm"
)

// AttemptRepository stores the delivery audit trail.
type AttemptRepository interface {
	Record(ctx context.Context, attempt *models.DeliveryAttempt) error
	CountByPost(ctx context.Context, postID string) (int64, error)
	ListByPost(ctx context.Context, postID string) ([]*models.DeliveryAttempt, error)
}

type attemptRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewAttemptRepository returns a new AttemptRepository implementation.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db, log: observability.NewRepoLogger("delivery_attempts")}
}

func (r *attemptRepository) Record(ctx context.Context, attempt *models.DeliveryAttempt) error {
	defer observability.TrackQuery("create", "delivery_attempts")()
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	return nil
}

func (r *attemptRepository) CountByPost(ctx context.Context, postID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.DeliveryAttempt{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}

func (r *attemptRepository) ListByPost(ctx context.Context, postID string) ([]*models.DeliveryAttempt, error) {
	var attempts []*models.DeliveryAttempt
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("attempt_number ASC, created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return attempts, nil
}
