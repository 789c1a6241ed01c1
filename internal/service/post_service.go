// Package service holds the user-facing post actions that sit beside the dispatch sweep.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"postpilot/internal/dispatch"
	"postpilot/internal/gateway"
	"postpilot/internal/middleware"
	"postpilot/internal/models"
	"postpilot/internal/repository"
	"postpilot/internal/validation"
)

// Deliverer publishes a single post outside a sweep.
type Deliverer interface {
	Deliver(ctx context.Context, post *models.Post, scheduleDate *time.Time) (dispatch.PostResult, error)
}

type PostService struct {
	postRepo    repository.PostRepository
	attemptRepo repository.AttemptRepository
	deliverer   Deliverer
	isAdmin     func(ctx context.Context, userID string) (bool, error)
	now         func() time.Time
}

func NewPostService(
	postRepo repository.PostRepository,
	attemptRepo repository.AttemptRepository,
	deliverer Deliverer,
	isAdmin func(ctx context.Context, userID string) (bool, error),
) *PostService {
	return &PostService{
		postRepo:    postRepo,
		attemptRepo: attemptRepo,
		deliverer:   deliverer,
		isAdmin:     isAdmin,
		now:         time.Now,
	}
}

// RetryPost puts a failed or stalled post back into the sweep with a fresh retry budget.
func (s *PostService) RetryPost(ctx context.Context, userID, postID string) (*models.Post, error) {
	post, err := s.ownedPost(ctx, userID, postID, "You can only retry your own posts")
	if err != nil {
		return nil, err
	}

	switch post.Status {
	case models.PostStatusPosted:
		return nil, models.NewConflictError("Post has already been published")
	case models.PostStatusDraft:
		return nil, models.NewConflictError("Draft posts must be scheduled before they can be retried")
	}

	reset, err := s.postRepo.ResetForRetry(ctx, post.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !reset {
		return nil, models.NewConflictError("Post changed while it was being reset")
	}

	middleware.Logger.InfoContext(ctx, "post reset for retry",
		slog.String("post_id", post.ID),
		slog.String("previous_status", string(post.Status)),
		slog.Int("previous_retry_count", post.RetryCount),
	)
	return s.postRepo.GetByID(ctx, post.ID)
}

// PublishPost delivers a post now, or hands it to the gateway for publishing at scheduleDate.
func (s *PostService) PublishPost(
	ctx context.Context, userID, postID string, scheduleDate *time.Time,
) (*dispatch.PostResult, error) {
	post, err := s.ownedPost(ctx, userID, postID, "You can only publish your own posts")
	if err != nil {
		return nil, err
	}

	if post.Status == models.PostStatusPosted {
		return nil, models.NewConflictError("Post has already been published")
	}
	if post.GatewayRef != nil && *post.GatewayRef != "" {
		return nil, models.NewConflictError("Post is already scheduled for publishing")
	}
	if scheduleDate != nil && !scheduleDate.After(s.now()) {
		return nil, models.NewValidationError("schedule_date must be in the future")
	}

	if err := validation.ValidatePost(
		gateway.ComposeContent(post.Content, post.Hashtags), post.Hashtags, models.Deref(post.MediaURL),
	); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	result, err := s.deliverer.Deliver(ctx, post, scheduleDate)
	if err != nil {
		if errors.Is(err, dispatch.ErrPostBusy) || errors.Is(err, dispatch.ErrPostChanged) {
			return nil, models.NewConflictError(err.Error())
		}
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, models.NewInternalError(err)
	}
	return &result, nil
}

// ListPosts returns the caller's posts, newest first.
func (s *PostService) ListPosts(ctx context.Context, userID string, limit, offset int) ([]*models.Post, error) {
	return s.postRepo.ListByUser(ctx, userID, limit, offset)
}

// GetPost returns a post its owner or an admin may see.
func (s *PostService) GetPost(ctx context.Context, userID, postID string) (*models.Post, error) {
	return s.ownedPost(ctx, userID, postID, "You can only view your own posts")
}

// ListAttempts returns the delivery history of a post, oldest first.
func (s *PostService) ListAttempts(ctx context.Context, userID, postID string) ([]*models.DeliveryAttempt, error) {
	post, err := s.ownedPost(ctx, userID, postID, "You can only view your own posts")
	if err != nil {
		return nil, err
	}
	return s.attemptRepo.ListByPost(ctx, post.ID)
}

func (s *PostService) ownedPost(ctx context.Context, userID, postID, denied string) (*models.Post, error) {
	if postID == "" {
		return nil, models.NewValidationError("Post id is required")
	}
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID == userID {
		return post, nil
	}

	if s.isAdmin == nil {
		return nil, models.NewForbiddenError(denied)
	}
	admin, err := s.isAdmin(ctx, userID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !admin {
		return nil, models.NewForbiddenError(denied)
	}
	return post, nil
}
