package courses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
)

// LectureInput creates a lecture. Position 0 appends after the last lecture.
type LectureInput struct {
	Title       string                   `json:"title" validate:"required,max=100"`
	Description string                   `json:"description"`
	VideoURL    string                   `json:"video_url" validate:"required,max=255"`
	Thumbnail   string                   `json:"thumbnail" validate:"max=255"`
	Position    int                      `json:"position" validate:"gte=0"`
	Duration    float64                  `json:"duration" validate:"gt=0"`
	IsPreview   bool                     `json:"is_preview"`
	Resources   []models.LectureResource `json:"resources" validate:"omitempty,dive"`
}

// LectureUpdate carries the lecture fields to change.
type LectureUpdate struct {
	Title       *string                   `json:"title" validate:"omitempty,min=1,max=100"`
	Description *string                   `json:"description"`
	VideoURL    *string                   `json:"video_url" validate:"omitempty,min=1,max=255"`
	Thumbnail   *string                   `json:"thumbnail" validate:"omitempty,max=255"`
	Position    *int                      `json:"position" validate:"omitempty,gte=1"`
	Duration    *float64                  `json:"duration" validate:"omitempty,gt=0"`
	IsPreview   *bool                     `json:"is_preview"`
	Resources   *[]models.LectureResource `json:"resources" validate:"omitempty,dive"`
}

// LecturePosition is one entry of a reorder request.
type LecturePosition struct {
	ID       uint `json:"id"`
	Position int  `json:"position"`
}

// ListLectures returns the lectures of a visible course in position order.
func (s *Service) ListLectures(ctx context.Context, p entitlements.Principal, courseID uint) ([]models.Lecture, error) {
	course, err := s.loadCourse(ctx, p, courseID)
	if err != nil {
		return nil, err
	}
	canAccess, err := s.gate.CanAccess(ctx, p, course, nil)
	if err != nil {
		return nil, apperror.Internal("Failed to check access", err)
	}

	lectures := []models.Lecture{}
	if err := s.db.WithContext(ctx).Where("course_id = ?", courseID).
		Order("position ASC").Find(&lectures).Error; err != nil {
		return nil, apperror.Internal("Failed to list lectures", err)
	}
	redactLectures(lectures, canAccess)
	return lectures, nil
}

// GetLecture returns a lecture the principal may open.
func (s *Service) GetLecture(ctx context.Context, p entitlements.Principal, lectureID uint) (*models.Lecture, error) {
	lecture, course, err := s.loadLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	ok, err := s.gate.CanAccess(ctx, p, course, lecture)
	if err != nil {
		return nil, apperror.Internal("Failed to check access", err)
	}
	if !ok {
		if !course.IsPublished {
			return nil, apperror.NotFound("Lecture not found")
		}
		return nil, apperror.Forbidden("You are not enrolled in this course")
	}
	return lecture, nil
}

func (s *Service) CreateLecture(ctx context.Context, p entitlements.Principal, courseID uint, in LectureInput) (*models.Lecture, error) {
	course, err := s.loadManagedCourse(ctx, p, courseID)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, apperror.Validation(err)
	}

	lecture := &models.Lecture{
		CourseID:    course.ID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		VideoURL:    in.VideoURL,
		Thumbnail:   in.Thumbnail,
		Position:    in.Position,
		Duration:    in.Duration,
		IsPreview:   in.IsPreview,
		Resources:   in.Resources,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lecture.Position == 0 {
			var last int
			if err := tx.Model(&models.Lecture{}).Where("course_id = ?", course.ID).
				Select("COALESCE(MAX(position), 0)").Scan(&last).Error; err != nil {
				return err
			}
			lecture.Position = last + 1
		}
		return tx.Create(lecture).Error
	})
	if err != nil {
		return nil, positionError(err, lecture.Position)
	}

	s.refreshLectureAggregates(ctx, course.ID)
	log.Infof("[Courses] Lecture %d added to course %d at position %d", lecture.ID, course.ID, lecture.Position)
	return lecture, nil
}

func (s *Service) UpdateLecture(ctx context.Context, p entitlements.Principal, lectureID uint, in LectureUpdate) (*models.Lecture, error) {
	lecture, course, err := s.loadLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	if !entitlements.CanManageCourse(p, course) {
		return nil, apperror.Forbidden("You are not authorized to update this lecture")
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
	}
	if in.VideoURL != nil {
		updates["video_url"] = *in.VideoURL
	}
	if in.Thumbnail != nil {
		updates["thumbnail"] = *in.Thumbnail
	}
	if in.Position != nil {
		updates["position"] = *in.Position
	}
	if in.Duration != nil {
		updates["duration"] = *in.Duration
	}
	if in.IsPreview != nil {
		updates["is_preview"] = *in.IsPreview
	}
	if in.Resources != nil {
		updates["resources"] = datatypes.JSONSlice[models.LectureResource](*in.Resources)
	}
	if len(updates) == 0 {
		return lecture, nil
	}

	if err := s.db.WithContext(ctx).Model(lecture).Updates(updates).Error; err != nil {
		position := lecture.Position
		if in.Position != nil {
			position = *in.Position
		}
		return nil, positionError(err, position)
	}
	if in.Duration != nil {
		s.refreshCourseAggregate(ctx, course.ID, "total_duration", s.aggregates.RecomputeDuration)
	}

	var updated models.Lecture
	if err := s.db.WithContext(ctx).First(&updated, lectureID).Error; err != nil {
		return nil, apperror.FromStore(err, "Lecture not found")
	}
	return &updated, nil
}

// DeleteLecture removes a lecture together with its completions.
func (s *Service) DeleteLecture(ctx context.Context, p entitlements.Principal, lectureID uint) error {
	lecture, course, err := s.loadLecture(ctx, lectureID)
	if err != nil {
		return err
	}
	if !entitlements.CanManageCourse(p, course) {
		return apperror.Forbidden("You are not authorized to delete this lecture")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lecture_id = ?", lecture.ID).Delete(&models.LectureCompletion{}).Error; err != nil {
			return err
		}
		return tx.Delete(lecture).Error
	})
	if err != nil {
		return apperror.Internal("Failed to delete lecture", err)
	}

	s.refreshLectureAggregates(ctx, course.ID)
	log.Infof("[Courses] Lecture %d removed from course %d", lecture.ID, course.ID)
	return nil
}

// ReorderLectures moves lectures to new positions in one transaction. Moved
// lectures are first parked at -id so swaps never trip the unique
// (course_id, position) index. Targets held by lectures outside the request
// are rejected.
func (s *Service) ReorderLectures(ctx context.Context, p entitlements.Principal, courseID uint, moves []LecturePosition) ([]models.Lecture, error) {
	course, err := s.loadManagedCourse(ctx, p, courseID)
	if err != nil {
		return nil, err
	}
	if len(moves) == 0 {
		return nil, apperror.BadRequest("No lectures to reorder")
	}

	seenIDs := make(map[uint]struct{}, len(moves))
	seenPositions := make(map[int]struct{}, len(moves))
	for _, m := range moves {
		if m.Position < 1 {
			return nil, apperror.BadRequest(fmt.Sprintf("Position of lecture %d must be at least 1", m.ID))
		}
		if _, dup := seenIDs[m.ID]; dup {
			return nil, apperror.BadRequest(fmt.Sprintf("Lecture %d is listed more than once", m.ID))
		}
		if _, dup := seenPositions[m.Position]; dup {
			return nil, apperror.BadRequest(fmt.Sprintf("Position %d is assigned more than once", m.Position))
		}
		seenIDs[m.ID] = struct{}{}
		seenPositions[m.Position] = struct{}{}
	}

	lectures := []models.Lecture{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []models.Lecture
		if err := tx.Select("id", "position").Where("course_id = ?", course.ID).Find(&current).Error; err != nil {
			return err
		}
		owned := make(map[uint]struct{}, len(current))
		for _, l := range current {
			owned[l.ID] = struct{}{}
		}
		for _, m := range moves {
			if _, ok := owned[m.ID]; !ok {
				return apperror.BadRequest(fmt.Sprintf("Lecture %d does not belong to this course", m.ID))
			}
		}
		for _, l := range current {
			if _, moved := seenIDs[l.ID]; moved {
				continue
			}
			if _, taken := seenPositions[l.Position]; taken {
				return apperror.Conflict(fmt.Sprintf("Position %d is taken by lecture %d", l.Position, l.ID))
			}
		}

		for _, m := range moves {
			if err := tx.Model(&models.Lecture{}).Where("id = ?", m.ID).
				UpdateColumn("position", -int(m.ID)).Error; err != nil {
				return err
			}
		}
		for _, m := range moves {
			if err := tx.Model(&models.Lecture{}).Where("id = ?", m.ID).
				UpdateColumn("position", m.Position).Error; err != nil {
				return err
			}
		}
		return tx.Where("course_id = ?", course.ID).Order("position ASC").Find(&lectures).Error
	})
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, positionError(err, 0)
	}
	log.Infof("[Courses] Reordered %d lectures of course %d", len(moves), course.ID)
	return lectures, nil
}

func (s *Service) loadLecture(ctx context.Context, lectureID uint) (*models.Lecture, *models.Course, error) {
	var lecture models.Lecture
	if err := s.db.WithContext(ctx).First(&lecture, lectureID).Error; err != nil {
		return nil, nil, apperror.FromStore(err, "Lecture not found")
	}
	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, lecture.CourseID).Error; err != nil {
		return nil, nil, apperror.FromStore(err, "Lecture not found")
	}
	return &lecture, &course, nil
}

func positionError(err error, position int) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if position > 0 {
			return apperror.Wrap(apperror.KindConflict, fmt.Sprintf("Position %d is already taken in this course", position), err)
		}
		return apperror.Wrap(apperror.KindConflict, "Lecture positions collide", err)
	}
	return apperror.Internal("Failed to save lecture", err)
}
