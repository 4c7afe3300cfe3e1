package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// RequireAuth rejects anonymous requests with a JSON 401.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return apperror.Respond(c, apperror.Unauthorized("Authentication required"))
	}
	return c.Next()
}

// RequireRole allows only the listed roles. It implies RequireAuth.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		if !uc.IsLoggedIn {
			return apperror.Respond(c, apperror.Unauthorized("Authentication required"))
		}
		for _, r := range roles {
			if uc.Role == r {
				return c.Next()
			}
		}
		return apperror.Respond(c, apperror.Forbidden("You do not have permission to perform this action"))
	}
}

// RequireAdmin ensures a logged-in admin.
func RequireAdmin(c *fiber.Ctx) error {
	return RequireRole(models.RoleAdmin)(c)
}
