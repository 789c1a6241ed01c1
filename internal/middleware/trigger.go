package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"

	"postpilot/internal/models"

	"github.com/gofiber/fiber/v2"
)

const triggerLocalKey = "trigger"

// AdminLookup reports whether a user holds the admin capability.
type AdminLookup interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// TriggerResolver turns the Authorization header of a sweep request into a TriggerIdentity.
type TriggerResolver struct {
	cronSecret string
	jwtSecret  string
	admins     AdminLookup
}

// NewTriggerResolver builds a resolver. An empty cronSecret disables the shared-secret path.
func NewTriggerResolver(cronSecret, jwtSecret string, admins AdminLookup) *TriggerResolver {
	return &TriggerResolver{cronSecret: cronSecret, jwtSecret: jwtSecret, admins: admins}
}

// ResolveTrigger checks the shared scheduler secret first, then an admin JWT.
// The returned error is reserved for lookup failures, not for rejected callers.
func (r *TriggerResolver) ResolveTrigger(ctx context.Context, authorization string) (models.TriggerIdentity, error) {
	token, err := bearerToken(authorization)
	if err != nil {
		return models.Unauthenticated(err.Error()), nil
	}

	if r.cronSecret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(r.cronSecret)) == 1 {
		return models.TrustedTrigger(), nil
	}

	userID, err := subjectFromToken(token, r.jwtSecret)
	if err != nil {
		return models.Unauthenticated("Invalid trigger credentials"), nil
	}

	if r.admins == nil {
		return models.Forbidden(userID, "Admin access required"), nil
	}
	isAdmin, err := r.admins.IsAdmin(ctx, userID)
	if err != nil {
		return models.TriggerIdentity{}, fmt.Errorf("resolve admin capability: %w", err)
	}
	if !isAdmin {
		return models.Forbidden(userID, "Admin access required"), nil
	}
	return models.AdminTrigger(userID), nil
}

// TriggerGuard admits the scheduler or an admin and stores the identity for the handler.
func TriggerGuard(r *TriggerResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := r.ResolveTrigger(c.UserContext(), c.Get("Authorization"))
		if err != nil {
			Logger.ErrorContext(c.UserContext(), "trigger resolution failed", slog.String("error", err.Error()))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to authorize trigger",
			})
		}

		if !identity.Allowed() {
			Logger.WarnContext(c.UserContext(), "sweep trigger rejected",
				slog.Bool("forbidden", identity.Forbidden),
				slog.String("reason", identity.Reason),
			)
			status := fiber.StatusUnauthorized
			if identity.Forbidden {
				status = fiber.StatusForbidden
			}
			return models.RespondWithError(c, status, identity.Err())
		}

		if identity.UserID != "" {
			c.Locals("userID", identity.UserID)
			c.SetUserContext(WithUserID(c.UserContext(), identity.UserID))
		}
		c.Locals(triggerLocalKey, identity)
		return c.Next()
	}
}

// Trigger returns the identity stored by TriggerGuard.
func Trigger(c *fiber.Ctx) models.TriggerIdentity {
	if identity, ok := c.Locals(triggerLocalKey).(models.TriggerIdentity); ok {
		return identity
	}
	return models.Unauthenticated("no trigger identity")
}
