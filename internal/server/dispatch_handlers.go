package server

import (
	"log/slog"

	"postpilot/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// RunSweep handles POST /api/dispatch/sweep.
// Per-post failures are part of the 200 report; only sweep-level errors change the status.
func (s *Server) RunSweep(c *fiber.Ctx) error {
	identity := middleware.Trigger(c)

	report, err := s.dispatcher.RunSweep(c.UserContext(), identity)
	if err != nil {
		middleware.Logger.ErrorContext(c.UserContext(), "sweep failed",
			slog.String("trigger", identity.Label()),
			slog.String("error", err.Error()),
		)
		return respondAppError(c, err)
	}

	return c.JSON(report)
}
