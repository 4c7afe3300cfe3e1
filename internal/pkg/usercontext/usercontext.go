package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
)

// Key is the fiber Locals key the auth middleware stores the context under.
const Key = "USER_CONTEXT"

// UserContext represents the complete user context for a request
type UserContext struct {
	UserID     uint        `json:"user_id"`
	Name       string      `json:"name"`
	Role       models.Role `json:"role"`
	IsLoggedIn bool        `json:"is_logged_in"`
}

// FromUser builds the context of an authenticated user.
func FromUser(u *models.User) UserContext {
	return UserContext{UserID: u.ID, Name: u.Name, Role: u.Role, IsLoggedIn: true}
}

func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(Key, uc)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if uc, ok := c.Locals(Key).(UserContext); ok {
		return uc
	}
	return UserContext{}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	uc := GetUserContext(c)
	return uc.IsLoggedIn && uc.Role == models.RoleAdmin
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

// Principal returns the caller as seen by the entitlement checks. Anonymous
// requests yield the zero principal.
func Principal(c *fiber.Ctx) entitlements.Principal {
	uc := GetUserContext(c)
	if !uc.IsLoggedIn {
		return entitlements.Principal{}
	}
	return entitlements.Principal{UserID: uc.UserID, Role: uc.Role}
}
