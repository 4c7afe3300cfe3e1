package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/courses"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

// HandleListLectures lists the lectures of a course in position order.
// Content of lectures the caller may not open is redacted.
func HandleListLectures(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	lectures, err := deps.Courses.ListLectures(c.UserContext(), usercontext.Principal(c), courseID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"lectures": lectures})
}

func HandleGetLecture(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	lecture, err := deps.Courses.GetLecture(c.UserContext(), usercontext.Principal(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"lecture": lecture})
}

func HandleCreateLecture(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in courses.LectureInput
	if err := bindJSON(c, &in, false); err != nil {
		return respondError(c, err)
	}
	lecture, err := deps.Courses.CreateLecture(c.UserContext(), usercontext.Principal(c), courseID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"lecture": lecture})
}

func HandleUpdateLecture(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in courses.LectureUpdate
	if err := bindJSON(c, &in, false); err != nil {
		return respondError(c, err)
	}
	lecture, err := deps.Courses.UpdateLecture(c.UserContext(), usercontext.Principal(c), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"lecture": lecture})
}

func HandleDeleteLecture(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := deps.Courses.DeleteLecture(c.UserContext(), usercontext.Principal(c), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Lecture deleted"})
}

// HandleReorderLectures applies a batch of {id, position} moves.
func HandleReorderLectures(c *fiber.Ctx) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		Lectures []courses.LecturePosition `json:"lectures"`
	}
	if err := bindJSON(c, &req, false); err != nil {
		return respondError(c, err)
	}
	if len(req.Lectures) == 0 {
		return respondError(c, apperror.BadRequest("lectures must not be empty"))
	}
	lectures, err := deps.Courses.ReorderLectures(c.UserContext(), usercontext.Principal(c), courseID, req.Lectures)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"lectures": lectures})
}

// HandleUpdateProgress marks a lecture completed or not for the caller.
func HandleUpdateProgress(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	req := struct {
		Completed *bool `json:"completed"`
	}{}
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req, false); err != nil {
			return respondError(c, err)
		}
	}
	completed := req.Completed == nil || *req.Completed
	result, err := deps.Courses.UpdateProgress(c.UserContext(), usercontext.Principal(c), id, completed)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}
