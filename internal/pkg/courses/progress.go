package courses

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/aggregate"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
)

// UpdateProgress marks a lecture as completed or not for the caller's
// enrollment and returns the recomputed progress.
func (s *Service) UpdateProgress(ctx context.Context, p entitlements.Principal, lectureID uint, completed bool) (*aggregate.ProgressResult, error) {
	if !p.IsAuthenticated() {
		return nil, apperror.Unauthorized("Login required")
	}
	lecture, _, err := s.loadLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}

	var enrollment models.Enrollment
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", p.UserID, lecture.CourseID).
		First(&enrollment).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Internal("Failed to load enrollment", err)
	}
	if err != nil || !enrollment.IsActive() {
		return nil, apperror.Forbidden("You are not enrolled in this course")
	}

	db := s.db.WithContext(ctx)
	if completed {
		err = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.LectureCompletion{
			EnrollmentID: enrollment.ID,
			LectureID:    lecture.ID,
		}).Error
	} else {
		err = db.Where("enrollment_id = ? AND lecture_id = ?", enrollment.ID, lecture.ID).
			Delete(&models.LectureCompletion{}).Error
	}
	if err != nil {
		return nil, apperror.Internal("Failed to update progress", err)
	}

	result, err := s.aggregates.RecomputeProgress(ctx, enrollment.ID)
	if err != nil {
		return nil, apperror.Internal("Failed to compute progress", err)
	}
	return result, nil
}
