// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"time"

	"postpilot/internal/models"
	"postpilot/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// PostChanges is a column-to-value set applied by ApplyTransition.
// A nil value writes NULL.
type PostChanges map[string]interface{}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Post, error)
	// ListDue returns scheduled posts due at now with retry_count below ceiling,
	// oldest scheduled_at first, ties broken by id.
	ListDue(ctx context.Context, now time.Time, ceiling, limit int) ([]*models.Post, error)
	// ApplyTransition updates the post only while it is still in expectedStatus.
	// It reports whether a row was changed.
	ApplyTransition(ctx context.Context, id string, expectedStatus models.PostStatus, changes PostChanges) (bool, error)
	// ResetForRetry puts a non-posted post back into the pipeline with a fresh retry budget.
	ResetForRetry(ctx context.Context, id string, now time.Time) (bool, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db, log: observability.NewRepoLogger("posts")}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("create", "posts")()
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"post_id": post.ID, "status": post.Status})
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	defer observability.TrackQuery("get", "posts")()
	var post models.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func (r *postRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Post, error) {
	if limit <= 0 {
		limit = 20
	}
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) ListDue(ctx context.Context, now time.Time, ceiling, limit int) ([]*models.Post, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "ListDue", "posts")
	defer span.End()
	defer observability.TrackQuery("list_due", "posts")()

	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PostStatusScheduled).
		Where("scheduled_at IS NOT NULL").
		Where("scheduled_at <= ?", now).
		Where("retry_count < ?", ceiling).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		span.RecordError(err)
		r.log.LogError(ctx, err, "list_due")
		return nil, err
	}
	span.SetAttributes(attribute.Int("posts.due", len(posts)))
	return posts, nil
}

func (r *postRepository) ApplyTransition(ctx context.Context, id string, expectedStatus models.PostStatus, changes PostChanges) (bool, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "ApplyTransition", "posts")
	defer span.End()
	defer observability.TrackQuery("apply_transition", "posts")()

	if len(changes) == 0 {
		return false, nil
	}

	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(map[string]interface{}(changes))
	if res.Error != nil {
		span.RecordError(res.Error)
		r.log.LogError(ctx, res.Error, "apply_transition")
		return false, res.Error
	}

	updated := res.RowsAffected > 0
	r.log.LogUpdate(ctx, map[string]interface{}{
		"post_id": id,
		"status":  changes["status"],
		"updated": updated,
	})
	return updated, nil
}

func (r *postRepository) ResetForRetry(ctx context.Context, id string, now time.Time) (bool, error) {
	defer observability.TrackQuery("reset_for_retry", "posts")()

	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ? AND status IN ?", id, []models.PostStatus{models.PostStatusFailed, models.PostStatusScheduled}).
		Updates(map[string]interface{}{
			"status":        models.PostStatusScheduled,
			"retry_count":   0,
			"error_message": nil,
			"scheduled_at":  gorm.Expr("COALESCE(scheduled_at, ?)", now),
		})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "reset_for_retry")
		return false, models.NewInternalError(res.Error)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"post_id": id, "status": models.PostStatusScheduled, "reset": true})
	return res.RowsAffected > 0, nil
}
