package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// HandleListMyEnrollments lists the caller's enrollments with their courses.
// The optional status query narrows the result to one payment status.
func HandleListMyEnrollments(c *fiber.Ctx) error {
	var status models.PaymentStatus
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status = models.PaymentStatus(strings.ToLower(raw))
		switch status {
		case models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentStatusFailed, models.PaymentStatusRefunded:
		default:
			return respondError(c, apperror.BadRequest("Invalid status"))
		}
	}
	enrollments, err := deps.Repos.GetEnrollmentRepository().ListByUser(usercontext.GetUserID(c), status)
	if err != nil {
		return respondError(c, apperror.Internal("Failed to load enrollments", err))
	}
	return c.JSON(fiber.Map{"enrollments": enrollments})
}
