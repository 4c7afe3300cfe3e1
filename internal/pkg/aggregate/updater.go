// Package aggregate keeps the denormalized course and enrollment fields in
// sync with their source rows. Every recompute derives the value from the
// sources in one statement, so repeated or concurrent runs converge.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

const (
	FieldRating           = "rating"
	FieldDuration         = "total_duration"
	FieldEnrolledStudents = "enrolled_students"
	FieldProgress         = "progress"
)

// Updater recomputes derived fields. Failures are logged and counted here;
// callers decide whether to propagate them.
type Updater struct {
	db  *gorm.DB
	now func() time.Time
}

func NewUpdater(db *gorm.DB) *Updater {
	return &Updater{db: db, now: time.Now}
}

// ProgressResult is the outcome of a progress recompute.
type ProgressResult struct {
	Progress          int    `json:"progress"`
	CompletedLectures []uint `json:"completedLectures"`
}

// RecomputeRating sets rating to the sum and total_ratings to the count of
// approved reviews.
func (u *Updater) RecomputeRating(ctx context.Context, courseID uint) error {
	db := u.db.WithContext(ctx)
	approved := func() *gorm.DB {
		return db.Model(&models.Review{}).Where("course_id = ? AND is_approved = ?", courseID, true)
	}
	err := db.Model(&models.Course{}).Where("id = ?", courseID).UpdateColumns(map[string]interface{}{
		"rating":        approved().Select("COALESCE(SUM(rating), 0)"),
		"total_ratings": approved().Select("COUNT(*)"),
	}).Error
	return u.fail(FieldRating, courseID, err)
}

// RecomputeDuration sets total_duration to the sum of lecture durations.
func (u *Updater) RecomputeDuration(ctx context.Context, courseID uint) error {
	db := u.db.WithContext(ctx)
	err := db.Model(&models.Course{}).Where("id = ?", courseID).UpdateColumns(map[string]interface{}{
		"total_duration": db.Model(&models.Lecture{}).Select("COALESCE(SUM(duration), 0)").Where("course_id = ?", courseID),
	}).Error
	return u.fail(FieldDuration, courseID, err)
}

// RecomputeEnrolledStudents sets enrolled_students to the number of enrollments
// with a completed payment.
func (u *Updater) RecomputeEnrolledStudents(ctx context.Context, courseID uint) error {
	db := u.db.WithContext(ctx)
	err := db.Model(&models.Course{}).Where("id = ?", courseID).UpdateColumns(map[string]interface{}{
		"enrolled_students": db.Model(&models.Enrollment{}).Select("COUNT(*)").
			Where("course_id = ? AND payment_status = ?", courseID, models.PaymentStatusCompleted),
	}).Error
	return u.fail(FieldEnrolledStudents, courseID, err)
}

// RecomputeProgress derives progress from the completions of an enrollment
// and stamps last_accessed. Completions of lectures that no longer belong to
// the course are ignored.
func (u *Updater) RecomputeProgress(ctx context.Context, enrollmentID uint) (*ProgressResult, error) {
	res, err := u.recomputeProgress(ctx, enrollmentID, true)
	return res, u.fail(FieldProgress, enrollmentID, err)
}

// RecomputeCourseProgress refreshes progress for every enrollment of a course,
// used after lectures were added or removed. last_accessed is left untouched.
func (u *Updater) RecomputeCourseProgress(ctx context.Context, courseID uint) error {
	var ids []uint
	if err := u.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("course_id = ?", courseID).Pluck("id", &ids).Error; err != nil {
		return u.fail(FieldProgress, courseID, err)
	}

	var errs []error
	for _, id := range ids {
		if _, err := u.recomputeProgress(ctx, id, false); err != nil {
			errs = append(errs, u.fail(FieldProgress, id, err))
		}
	}
	return errors.Join(errs...)
}

func (u *Updater) recomputeProgress(ctx context.Context, enrollmentID uint, touch bool) (*ProgressResult, error) {
	result := &ProgressResult{CompletedLectures: []uint{}}
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var enrollment models.Enrollment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&enrollment, enrollmentID).Error; err != nil {
			return err
		}

		var total int64
		if err := tx.Model(&models.Lecture{}).Where("course_id = ?", enrollment.CourseID).Count(&total).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.LectureCompletion{}).
			Joins("JOIN lectures ON lectures.id = lecture_completions.lecture_id").
			Where("lecture_completions.enrollment_id = ? AND lectures.course_id = ?", enrollmentID, enrollment.CourseID).
			Order("lectures.position ASC").
			Pluck("lecture_completions.lecture_id", &result.CompletedLectures).Error; err != nil {
			return err
		}

		result.Progress = Percent(len(result.CompletedLectures), int(total))
		updates := map[string]interface{}{"progress": result.Progress}
		if touch {
			updates["last_accessed"] = u.now()
		}
		return tx.Model(&models.Enrollment{}).Where("id = ?", enrollmentID).UpdateColumns(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReconcileCourse recomputes every derived field owned by a course.
func (u *Updater) ReconcileCourse(ctx context.Context, courseID uint) error {
	return errors.Join(
		u.RecomputeRating(ctx, courseID),
		u.RecomputeDuration(ctx, courseID),
		u.RecomputeEnrolledStudents(ctx, courseID),
		u.RecomputeCourseProgress(ctx, courseID),
	)
}

// ReconcileAll walks every course and repairs drifted aggregates. It returns
// the number of courses visited.
func (u *Updater) ReconcileAll(ctx context.Context) (int, error) {
	var ids []uint
	if err := u.db.WithContext(ctx).Model(&models.Course{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list courses: %w", err)
	}

	var errs []error
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := u.ReconcileCourse(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("course %d: %w", id, err))
		}
	}
	log.Infof("[Aggregate] Reconciled %d courses (%d with errors)", len(ids), len(errs))
	return len(ids), errors.Join(errs...)
}

func (u *Updater) fail(field string, id uint, err error) error {
	if err == nil {
		return nil
	}
	metrics.AggregateFailures.WithLabelValues(field).Inc()
	log.Errorf("[Aggregate] Recompute of %s for %d failed: %v", field, id, err)
	return err
}

// Percent returns round(100*k/n), 0 when n is 0.
func Percent(k, n int) int {
	if n <= 0 {
		return 0
	}
	if k > n {
		k = n
	}
	return int(math.Round(100 * float64(k) / float64(n)))
}
