package courses

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/assets"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
)

const shortDescriptionLength = 200

// CourseInput is the writable part of a course. Derived fields are not
// accepted from clients.
type CourseInput struct {
	Title            string          `json:"title" validate:"required,max=100"`
	Description      string          `json:"description" validate:"required"`
	ShortDescription string          `json:"short_description" validate:"max=200"`
	Category         string          `json:"category" validate:"required"`
	Level            string          `json:"level"`
	Price            decimal.Decimal `json:"price"`
}

// CourseUpdate carries the fields to change; nil fields stay untouched.
type CourseUpdate struct {
	Title            *string          `json:"title" validate:"omitempty,min=1,max=100"`
	Description      *string          `json:"description" validate:"omitempty,min=1"`
	ShortDescription *string          `json:"short_description" validate:"omitempty,max=200"`
	Category         *string          `json:"category"`
	Level            *string          `json:"level"`
	Price            *decimal.Decimal `json:"price"`
}

// CourseFilter narrows the catalogue listing.
type CourseFilter struct {
	Category     string
	Level        string
	InstructorID uint
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Page         int
	Limit        int
}

// CourseDetail is a course as seen by one principal.
type CourseDetail struct {
	Course     *models.Course `json:"course"`
	IsEnrolled bool           `json:"isEnrolled"`
	CanAccess  bool           `json:"canAccess"`
}

func (s *Service) CreateCourse(ctx context.Context, p entitlements.Principal, in CourseInput) (*models.Course, error) {
	if !entitlements.CanCreateCourse(p) {
		return nil, apperror.Forbidden("Only instructors can create courses")
	}
	if err := validate.Struct(in); err != nil {
		return nil, apperror.Validation(err)
	}
	category, level, err := parseCategoryAndLevel(in.Category, in.Level)
	if err != nil {
		return nil, err
	}
	if in.Price.IsNegative() {
		return nil, apperror.BadRequest("price must not be negative")
	}

	short := strings.TrimSpace(in.ShortDescription)
	if short == "" {
		short = truncateRunes(in.Description, shortDescriptionLength)
	}
	course := &models.Course{
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		ShortDescription: short,
		Category:         category,
		Level:            level,
		InstructorID:     p.UserID,
		Price:            in.Price.Round(2),
		IsPublished:      false,
	}
	if err := s.db.WithContext(ctx).Create(course).Error; err != nil {
		return nil, apperror.FromStore(err, "Course not found")
	}
	log.Infof("[Courses] Instructor %d created course %d", p.UserID, course.ID)
	return course, nil
}

// GetCourse returns a course with its ordered lectures. Lecture media is
// hidden unless the principal may open it.
func (s *Service) GetCourse(ctx context.Context, p entitlements.Principal, courseID uint) (*CourseDetail, error) {
	var course models.Course
	err := s.db.WithContext(ctx).
		Preload("Instructor").
		Preload("Lectures", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&course, courseID).Error
	if err != nil {
		return nil, apperror.FromStore(err, "Course not found")
	}
	manager := entitlements.CanManageCourse(p, &course)
	if !course.IsPublished && !manager {
		return nil, apperror.NotFound("Course not found")
	}

	detail := &CourseDetail{Course: &course, CanAccess: manager}
	if p.IsAuthenticated() {
		enrolled, err := s.gate.IsEnrolled(ctx, p.UserID, course.ID)
		if err != nil {
			return nil, apperror.Internal("Failed to check enrollment", err)
		}
		detail.IsEnrolled = enrolled
		detail.CanAccess = detail.CanAccess || enrolled
	}
	redactLectures(course.Lectures, detail.CanAccess)
	return detail, nil
}

// ListCourses returns one page of published courses, newest first.
func (s *Service) ListCourses(ctx context.Context, f CourseFilter) ([]models.Course, Pagination, error) {
	page, limit := normalizePage(f.Page, f.Limit)
	q := s.db.WithContext(ctx).Model(&models.Course{}).Where("is_published = ?", true)
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Level != "" {
		q = q.Where("level = ?", f.Level)
	}
	if f.InstructorID != 0 {
		q = q.Where("instructor_id = ?", f.InstructorID)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Pagination{}, apperror.Internal("Failed to list courses", err)
	}
	courses := []models.Course{}
	err := q.Preload("Instructor").
		Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&courses).Error
	if err != nil {
		return nil, Pagination{}, apperror.Internal("Failed to list courses", err)
	}
	return courses, newPagination(page, limit, total), nil
}

// ListInstructorCourses returns every course of the calling instructor,
// published or not.
func (s *Service) ListInstructorCourses(ctx context.Context, p entitlements.Principal) ([]models.Course, error) {
	if !entitlements.CanCreateCourse(p) {
		return nil, apperror.Forbidden("Only instructors have courses")
	}
	courses := []models.Course{}
	if err := s.db.WithContext(ctx).Where("instructor_id = ?", p.UserID).
		Order("created_at DESC").Order("id DESC").Find(&courses).Error; err != nil {
		return nil, apperror.Internal("Failed to list courses", err)
	}
	return courses, nil
}

func (s *Service) UpdateCourse(ctx context.Context, p entitlements.Principal, courseID uint, in CourseUpdate) (*models.Course, error) {
	course, err := s.loadManagedCourse(ctx, p, courseID)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, apperror.Validation(err)
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		updates["description"] = *in.Description
		if in.ShortDescription == nil {
			updates["short_description"] = truncateRunes(*in.Description, shortDescriptionLength)
		}
	}
	if in.ShortDescription != nil {
		updates["short_description"] = *in.ShortDescription
	}
	if in.Category != nil {
		if !models.IsValidCategory(models.CourseCategory(*in.Category)) {
			return nil, apperror.BadRequest("Unknown category")
		}
		updates["category"] = *in.Category
	}
	if in.Level != nil {
		if !models.IsValidLevel(models.CourseLevel(*in.Level)) {
			return nil, apperror.BadRequest("Unknown level")
		}
		updates["level"] = *in.Level
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return nil, apperror.BadRequest("price must not be negative")
		}
		updates["price"] = in.Price.Round(2)
	}
	if len(updates) == 0 {
		return course, nil
	}

	if err := s.db.WithContext(ctx).Model(course).Updates(updates).Error; err != nil {
		return nil, apperror.Internal("Failed to update course", err)
	}
	return s.reloadCourse(ctx, courseID)
}

// SetPublished publishes or unpublishes a course.
func (s *Service) SetPublished(ctx context.Context, p entitlements.Principal, courseID uint, published bool) (*models.Course, error) {
	course, err := s.loadManagedCourse(ctx, p, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(course).Update("is_published", published).Error; err != nil {
		return nil, apperror.Internal("Failed to update course", err)
	}
	course.IsPublished = published
	log.Infof("[Courses] Course %d published=%t by user %d", courseID, published, p.UserID)
	return course, nil
}

// DeleteCourse removes a course and its lectures. Courses with completed
// enrollments cannot be deleted.
func (s *Service) DeleteCourse(ctx context.Context, p entitlements.Principal, courseID uint) error {
	course, err := s.loadManagedCourse(ctx, p, courseID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.Enrollment{}).
			Where("course_id = ? AND payment_status = ?", course.ID, models.PaymentStatusCompleted).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return apperror.Conflict("Cannot delete course with active enrollments")
		}
		lectureIDs := tx.Model(&models.Lecture{}).Select("id").Where("course_id = ?", course.ID)
		if err := tx.Where("lecture_id IN (?)", lectureIDs).Delete(&models.LectureCompletion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_id = ?", course.ID).Delete(&models.Lecture{}).Error; err != nil {
			return err
		}
		return tx.Delete(course).Error
	})
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperror.Internal("Failed to delete course", err)
	}
	log.Infof("[Courses] Course %d deleted by user %d", courseID, p.UserID)
	return nil
}

// UploadThumbnail normalizes an image to the catalogue format, stores it and
// points the course at it.
func (s *Service) UploadThumbnail(ctx context.Context, p entitlements.Principal, courseID uint, data []byte) (*models.Course, error) {
	course, err := s.loadManagedCourse(ctx, p, courseID)
	if err != nil {
		return nil, err
	}
	if s.assets == nil {
		return nil, apperror.BadRequest("Asset uploads are not configured")
	}
	thumb, err := assets.NormalizeThumbnail(data)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindBadRequest, "Thumbnail must be a JPEG, PNG or GIF image", err)
	}
	asset, err := s.assets.Store(ctx, thumb, assets.KindImage, "thumbnail.jpg")
	if err != nil {
		return nil, apperror.Internal("Failed to store thumbnail", err)
	}
	if err := s.db.WithContext(ctx).Model(course).Update("thumbnail", asset.URL).Error; err != nil {
		return nil, apperror.Internal("Failed to update course", err)
	}
	course.Thumbnail = asset.URL
	return course, nil
}

// UploadMedia stores a lecture video or resource for a course the principal manages.
func (s *Service) UploadMedia(ctx context.Context, p entitlements.Principal, courseID uint, data []byte, kind assets.Kind, filename string) (*assets.Asset, error) {
	if _, err := s.loadManagedCourse(ctx, p, courseID); err != nil {
		return nil, err
	}
	if s.assets == nil {
		return nil, apperror.BadRequest("Asset uploads are not configured")
	}
	asset, err := s.assets.Store(ctx, data, kind, filename)
	if err != nil {
		return nil, apperror.Internal("Failed to store upload", err)
	}
	return asset, nil
}

func (s *Service) reloadCourse(ctx context.Context, courseID uint) (*models.Course, error) {
	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		return nil, apperror.FromStore(err, "Course not found")
	}
	return &course, nil
}

func parseCategoryAndLevel(category, level string) (models.CourseCategory, models.CourseLevel, error) {
	c := models.CourseCategory(category)
	if !models.IsValidCategory(c) {
		return "", "", apperror.BadRequest("Unknown category")
	}
	l := models.CourseLevel(level)
	if l == "" {
		l = models.LevelBeginner
	}
	if !models.IsValidLevel(l) {
		return "", "", apperror.BadRequest("Unknown level")
	}
	return c, l, nil
}

// redactLectures blanks media of lectures the caller may not open.
func redactLectures(lectures []models.Lecture, canAccess bool) {
	if canAccess {
		return
	}
	for i := range lectures {
		if lectures[i].IsPreview {
			continue
		}
		lectures[i].VideoURL = ""
		lectures[i].Resources = nil
	}
}
