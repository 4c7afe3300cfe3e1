package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/courses"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// HandleListReviews lists approved reviews. Admins may pass includePending=true.
func HandleListReviews(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	includePending := strings.EqualFold(c.Query("includePending"), "true")
	reviews, pagination, err := deps.Courses.ListReviews(c.UserContext(), usercontext.Principal(c), courseID,
		includePending, queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"reviews": reviews, "pagination": pagination})
}

func HandleCreateReview(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in courses.ReviewInput
	if err := bindJSON(c, &in, false); err != nil {
		return respondError(c, err)
	}
	review, err := deps.Courses.AddReview(c.UserContext(), usercontext.Principal(c), courseID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"review": review})
}

func HandleDeleteReview(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := deps.Courses.RemoveReview(c.UserContext(), usercontext.Principal(c), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Review deleted"})
}

// HandleSetReviewApproval approves or hides a review.
func HandleSetReviewApproval(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		IsApproved *bool `json:"isApproved"`
	}
	if err := bindJSON(c, &req, false); err != nil {
		return respondError(c, err)
	}
	if req.IsApproved == nil {
		return respondError(c, apperror.BadRequest("isApproved is required"))
	}
	review, err := deps.Courses.SetReviewApproval(c.UserContext(), usercontext.Principal(c), id, *req.IsApproved)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"review": review})
}
