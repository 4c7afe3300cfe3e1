package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/security"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// UserLookup resolves the subject of a verified token.
type UserLookup interface {
	GetByID(id uint) (*models.User, error)
}

// UserContextMiddleware sets up the user context for every request from an
// optional bearer token. Requests without a token continue anonymously; a
// present but invalid token is rejected. The role is read from the database so
// role changes apply to tokens already issued.
func UserContextMiddleware(tokens *security.TokenManager, users UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		claims, err := tokens.VerifyToken(raw)
		if err != nil {
			return apperror.Respond(c, apperror.Unauthorized("Invalid or expired token"))
		}

		user, err := users.GetByID(claims.UserID())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.Respond(c, apperror.Unauthorized("User no longer exists"))
			}
			log.Errorf("[Auth] User lookup for %d failed: %v", claims.UserID(), err)
			return apperror.Respond(c, apperror.Internal("User lookup failed", err))
		}
		if !user.IsActive {
			return apperror.Respond(c, apperror.Unauthorized("Account is deactivated"))
		}

		usercontext.Set(c, usercontext.FromUser(user))
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
