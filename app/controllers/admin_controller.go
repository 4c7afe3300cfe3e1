package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// HandleReconcileCourse recomputes rating, duration, enrolled students and
// enrollment progress of one course right away.
func HandleReconcileCourse(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if _, err := deps.Courses.GetCourse(c.UserContext(), usercontext.Principal(c), id); err != nil {
		return respondError(c, err)
	}
	if err := deps.Aggregates.ReconcileCourse(c.UserContext(), id); err != nil {
		return respondError(c, apperror.Internal("Failed to reconcile course", err))
	}
	log.Infof("[Admin] User %d reconciled course %d", usercontext.GetUserID(c), id)

	detail, err := deps.Courses.GetCourse(c.UserContext(), usercontext.Principal(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"course": detail.Course})
}

// HandleReconcileAll queues a reconciliation of every course.
func HandleReconcileAll(c *fiber.Ctx) error {
	if deps.Scheduler == nil {
		return respondError(c, apperror.New(apperror.KindInternal, "Background jobs are not available"))
	}
	if err := deps.Scheduler.ScheduleReconcileAll(); err != nil {
		return respondError(c, apperror.Internal("Failed to queue reconciliation", err))
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "Reconciliation queued"})
}

// HandleAdminStats returns the platform snapshot. It may be a few minutes old.
func HandleAdminStats(c *fiber.Ctx) error {
	snap, err := deps.Stats.Snapshot(c.UserContext())
	if err != nil {
		return respondError(c, apperror.Internal("Failed to load statistics", err))
	}
	return c.JSON(fiber.Map{"stats": snap})
}
