package controllers

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/assets"
	"github.com/ManuelReschke/CourseFox/internal/pkg/courses"
	"github.com/ManuelReschke/CourseFox/internal/pkg/usercontext"
)

const (
	maxThumbnailBytes = 5 << 20
	maxVideoBytes     = 500 << 20
)

// HandleListCourses returns the published catalogue with filters and paging.
func HandleListCourses(c *fiber.Ctx) error {
	filter := courses.CourseFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Level:    strings.TrimSpace(c.Query("level")),
		Page:     queryInt(c, "page", 1),
		Limit:    queryInt(c, "limit", 10),
	}
	if raw := c.Query("instructor"); raw != "" {
		id := queryInt(c, "instructor", 0)
		if id <= 0 {
			return respondError(c, apperror.BadRequest("Invalid instructor"))
		}
		filter.InstructorID = uint(id)
	}
	for key, dst := range map[string]**decimal.Decimal{"minPrice": &filter.MinPrice, "maxPrice": &filter.MaxPrice} {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return respondError(c, apperror.BadRequest("Invalid "+key))
		}
		*dst = &v
	}

	list, pagination, err := deps.Courses.ListCourses(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"courses": list, "pagination": pagination})
}

// HandleListMyCourses returns every course of the calling instructor.
func HandleListMyCourses(c *fiber.Ctx) error {
	list, err := deps.Courses.ListInstructorCourses(c.UserContext(), usercontext.Principal(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"courses": list})
}

func HandleGetCourse(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	detail, err := deps.Courses.GetCourse(c.UserContext(), usercontext.Principal(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(detail)
}

func HandleCreateCourse(c *fiber.Ctx) error {
	var in courses.CourseInput
	if err := bindJSON(c, &in, false); err != nil {
		return respondError(c, err)
	}
	course, err := deps.Courses.CreateCourse(c.UserContext(), usercontext.Principal(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"course": course})
}

func HandleUpdateCourse(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in courses.CourseUpdate
	if err := bindJSON(c, &in, false); err != nil {
		return respondError(c, err)
	}
	course, err := deps.Courses.UpdateCourse(c.UserContext(), usercontext.Principal(c), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"course": course})
}

// HandlePublishCourse sets is_published. An empty body toggles the flag.
func HandlePublishCourse(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req struct {
		IsPublished *bool `json:"isPublished"`
	}
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req, false); err != nil {
			return respondError(c, err)
		}
	}
	p := usercontext.Principal(c)
	published := true
	if req.IsPublished != nil {
		published = *req.IsPublished
	} else {
		detail, err := deps.Courses.GetCourse(c.UserContext(), p, id)
		if err != nil {
			return respondError(c, err)
		}
		published = !detail.Course.IsPublished
	}
	course, err := deps.Courses.SetPublished(c.UserContext(), p, id, published)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"course": course})
}

func HandleDeleteCourse(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := deps.Courses.DeleteCourse(c.UserContext(), usercontext.Principal(c), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Course deleted"})
}

// HandleUploadThumbnail accepts a multipart "thumbnail" image.
func HandleUploadThumbnail(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	data, _, err := readUpload(c, "thumbnail", maxThumbnailBytes)
	if err != nil {
		return respondError(c, err)
	}
	course, err := deps.Courses.UploadThumbnail(c.UserContext(), usercontext.Principal(c), id, data)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"course": course})
}

// HandleUploadVideo stores a lecture video for the course and returns its
// URL for use in a lecture's video_url.
func HandleUploadVideo(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	data, name, err := readUpload(c, "video", maxVideoBytes)
	if err != nil {
		return respondError(c, err)
	}
	asset, err := deps.Courses.UploadMedia(c.UserContext(), usercontext.Principal(c), id, data, assets.KindVideo, name)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": asset.URL, "id": asset.ID})
}

func readUpload(c *fiber.Ctx, field string, limit int64) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, "", apperror.BadRequest("Missing file field " + field)
	}
	if fh.Size > limit {
		return nil, "", apperror.BadRequest("File is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", apperror.Internal("Failed to read upload", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, "", apperror.Internal("Failed to read upload", err)
	}
	if int64(len(data)) > limit {
		return nil, "", apperror.BadRequest("File is too large")
	}
	return data, filepath.Base(fh.Filename), nil
}
