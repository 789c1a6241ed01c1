package server

import (
	"time"

	"postpilot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// PublishRequest is the optional body of POST /api/posts/:id/publish.
type PublishRequest struct {
	ScheduleDate *time.Time `json:"schedule_date"`
}

// ListMyPosts handles GET /api/posts
func (s *Server) ListMyPosts(c *fiber.Ctx) error {
	page := parsePagination(c, 20)

	posts, err := s.postService.ListPosts(c.UserContext(), currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.GetPost(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(post)
}

// RetryPost handles POST /api/posts/:id/retry
func (s *Server) RetryPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.RetryPost(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(post)
}

// PublishPost handles POST /api/posts/:id/publish
func (s *Server) PublishPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req PublishRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body; schedule_date must be RFC 3339"))
		}
	}

	result, err := s.postService.PublishPost(c.UserContext(), currentUserID(c), id, req.ScheduleDate)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(result)
}

// GetPostAttempts handles GET /api/posts/:id/attempts
func (s *Server) GetPostAttempts(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	attempts, err := s.postService.ListAttempts(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(attempts)
}
