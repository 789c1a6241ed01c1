package dispatch

import (
	"context"
	"fmt"
	"time"

	"postpilot/internal/models"
	"postpilot/internal/repository"
)

// Selector returns the posts a sweep should attempt. It has no side effects.
type Selector struct {
	posts   repository.PostRepository
	ceiling int
	limit   int
}

// NewSelector returns a selector bounded by ceiling and limit.
func NewSelector(posts repository.PostRepository, ceiling, limit int) Selector {
	return Selector{posts: posts, ceiling: ceiling, limit: limit}
}

// Due lists scheduled posts due at now, oldest first.
func (s Selector) Due(ctx context.Context, now time.Time) ([]*models.Post, error) {
	posts, err := s.posts.ListDue(ctx, now.UTC(), s.ceiling, s.limit)
	if err != nil {
		return nil, fmt.Errorf("select due posts: %w", err)
	}
	return posts, nil
}
