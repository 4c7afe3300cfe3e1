package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/courses"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

const (
	userPageSize    = 10
	userMaxPageSize = 100
)

type adminUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=2,max=100"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

// HandleAdminListUsers lists accounts for admins. role and search narrow the
// result, page and limit page through it.
func HandleAdminListUsers(c *fiber.Ctx) error {
	var filter repository.UserFilter
	if raw := strings.TrimSpace(c.Query("role")); raw != "" {
		role, ok := models.ParseRole(raw)
		if !ok {
			return respondError(c, apperror.BadRequest("Invalid role"))
		}
		filter.Role = role
	}
	filter.Search = strings.TrimSpace(c.Query("search"))

	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(c, "limit", userPageSize)
	if limit < 1 || limit > userMaxPageSize {
		limit = userPageSize
	}

	repo := deps.Repos.GetUserRepository()
	total, err := repo.Count(filter)
	if err != nil {
		return respondError(c, apperror.Internal("Failed to count users", err))
	}
	users, err := repo.List(filter, (page-1)*limit, limit)
	if err != nil {
		return respondError(c, apperror.Internal("Failed to load users", err))
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	return c.JSON(fiber.Map{
		"users":      users,
		"pagination": courses.Pagination{Page: page, Limit: limit, Total: total, Pages: pages},
	})
}

// HandleGetUser returns an account with its enrollment and teaching counts.
// Users may read themselves, admins anyone.
func HandleGetUser(c *fiber.Ctx) error {
	user, err := loadVisibleUser(c)
	if err != nil {
		return respondError(c, err)
	}
	stats, err := deps.Repos.GetUserRepository().GetStatsByUserID(user.ID)
	if err != nil {
		return respondError(c, apperror.Internal("Failed to load user stats", err))
	}
	return c.JSON(fiber.Map{"user": user, "stats": stats})
}

// HandleAdminUpdateUser changes name, role or active flag of an account.
// Admins cannot change their own role or deactivate themselves.
func HandleAdminUpdateUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req adminUserRequest
	if err := bindJSON(c, &req, true); err != nil {
		return respondError(c, err)
	}

	repo := deps.Repos.GetUserRepository()
	user, err := repo.GetByID(id)
	if err != nil {
		return respondError(c, apperror.FromStore(err, "User not found"))
	}

	self := id == usercontext.GetUserID(c)
	if req.Role != nil {
		role, ok := models.ParseRole(*req.Role)
		if !ok {
			return respondError(c, apperror.BadRequest("Invalid role"))
		}
		if self && role != user.Role {
			return respondError(c, apperror.Forbidden("You cannot change your own role"))
		}
		user.Role = role
	}
	if req.IsActive != nil {
		if self && !*req.IsActive {
			return respondError(c, apperror.Forbidden("You cannot deactivate your own account"))
		}
		user.IsActive = *req.IsActive
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}

	if err := repo.Update(user); err != nil {
		return respondError(c, apperror.Internal("Failed to update user", err))
	}
	invalidateStats()
	log.Infof("[Admin] User %d updated account %d (role=%s active=%t)", usercontext.GetUserID(c), user.ID, user.Role, user.IsActive)
	return c.JSON(fiber.Map{"user": user})
}

// HandleAdminDeleteUser soft deletes an account. Its enrollments and payments
// stay untouched.
func HandleAdminDeleteUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if id == usercontext.GetUserID(c) {
		return respondError(c, apperror.Forbidden("You cannot delete your own account"))
	}
	if err := deps.Repos.GetUserRepository().Delete(id); err != nil {
		return respondError(c, apperror.FromStore(err, "User not found"))
	}
	invalidateStats()
	log.Infof("[Admin] User %d deleted account %d", usercontext.GetUserID(c), id)
	return c.JSON(fiber.Map{"message": "User deleted successfully"})
}

// HandleListUserEnrollments lists the enrollments of one account for itself
// or an admin.
func HandleListUserEnrollments(c *fiber.Ctx) error {
	user, err := loadVisibleUser(c)
	if err != nil {
		return respondError(c, err)
	}
	enrollments, err := deps.Repos.GetEnrollmentRepository().ListByUser(user.ID, "")
	if err != nil {
		return respondError(c, apperror.Internal("Failed to load enrollments", err))
	}
	return c.JSON(fiber.Map{"enrollments": enrollments})
}

// HandleInstructorStats returns course, enrollment, rating and revenue totals
// of an instructor.
func HandleInstructorStats(c *fiber.Ctx) error {
	user, err := loadVisibleUser(c)
	if err != nil {
		return respondError(c, err)
	}
	if user.Role != models.RoleInstructor && user.Role != models.RoleAdmin {
		return respondError(c, apperror.BadRequest("User is not an instructor"))
	}
	stats, err := deps.Stats.Instructor(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, apperror.Internal("Failed to load statistics", err))
	}
	return c.JSON(fiber.Map{"stats": stats})
}

// HandleListInstructorCourses is the public catalogue of one instructor.
func HandleListInstructorCourses(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	filter := courses.CourseFilter{
		InstructorID: id,
		Page:         queryInt(c, "page", 1),
		Limit:        queryInt(c, "limit", 10),
	}
	list, pagination, err := deps.Courses.ListCourses(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"courses": list, "pagination": pagination})
}

// loadVisibleUser resolves the :id account if the caller may see it.
func loadVisibleUser(c *fiber.Ctx) (*models.User, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	if !entitlements.CanViewUser(usercontext.Principal(c), id) {
		return nil, apperror.Forbidden("Not authorized to view this user")
	}
	user, err := deps.Repos.GetUserRepository().GetByID(id)
	if err != nil {
		return nil, apperror.FromStore(err, "User not found")
	}
	return user, nil
}

func invalidateStats() {
	if deps.Stats != nil {
		deps.Stats.Invalidate()
	}
}
