package middleware

import (
	"errors"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/taskhub/backend/internal/config"
	"github.com/taskhub/backend/internal/dto"
	"github.com/taskhub/backend/internal/scope"
	"github.com/taskhub/backend/internal/services"
)

// JWTProtected rejects requests without a valid bearer token. Missing and
// invalid credentials both yield 401.
func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
	})
}

// ActiveUser resolves the token subject to a live user record. A token whose
// user was deleted or deactivated after issuance stops here; the payload is
// only an identity hint.
func ActiveUser(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := scope.UserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		if _, err := authService.CurrentUser(userID); err != nil {
			if errors.Is(err, services.ErrUserNotFound) || errors.Is(err, services.ErrUserInactive) {
				return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
					Error: true, Message: "Unauthorized",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: true, Message: "Internal server error",
			})
		}

		return c.Next()
	}
}
