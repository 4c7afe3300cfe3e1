// Package courses implements the catalogue write paths: courses, lectures,
// reviews and lecture progress. Every write that touches a source of a derived
// field triggers the matching aggregate recompute after it committed.
package courses

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/aggregate"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/assets"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

var validate = validator.New()

// Aggregates recomputes the derived fields the course write paths touch.
type Aggregates interface {
	RecomputeRating(ctx context.Context, courseID uint) error
	RecomputeDuration(ctx context.Context, courseID uint) error
	RecomputeCourseProgress(ctx context.Context, courseID uint) error
	RecomputeProgress(ctx context.Context, enrollmentID uint) (*aggregate.ProgressResult, error)
}

// Reconciler schedules an out-of-band recomputation of a course.
type Reconciler interface {
	ReconcileCourse(ctx context.Context, courseID uint) error
}

type Service struct {
	db         *gorm.DB
	aggregates Aggregates
	reconciler Reconciler
	gate       *entitlements.Gate
	assets     assets.Store
	now        func() time.Time
}

type Option func(*Service)

// WithAssets enables thumbnail and media uploads.
func WithAssets(store assets.Store) Option {
	return func(s *Service) { s.assets = store }
}

// WithAggregates replaces the default updater.
func WithAggregates(a Aggregates) Option {
	return func(s *Service) { s.aggregates = a }
}

// WithReconciler hands courses whose recompute failed to a background job.
func WithReconciler(r Reconciler) Option {
	return func(s *Service) { s.reconciler = r }
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:         db,
		aggregates: aggregate.NewUpdater(db),
		gate:       entitlements.NewGate(db),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Gate exposes the access checks used by the service.
func (s *Service) Gate() *entitlements.Gate {
	return s.gate
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

func newPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

// loadCourse returns a course the principal may see. Unpublished courses only
// exist for their instructor and admins.
func (s *Service) loadCourse(ctx context.Context, p entitlements.Principal, courseID uint) (*models.Course, error) {
	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		return nil, apperror.FromStore(err, "Course not found")
	}
	if !course.IsPublished && !entitlements.CanManageCourse(p, &course) {
		return nil, apperror.NotFound("Course not found")
	}
	return &course, nil
}

// loadManagedCourse returns a course the principal may modify.
func (s *Service) loadManagedCourse(ctx context.Context, p entitlements.Principal, courseID uint) (*models.Course, error) {
	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		return nil, apperror.FromStore(err, "Course not found")
	}
	if !entitlements.CanManageCourse(p, &course) {
		return nil, apperror.Forbidden("You are not authorized to modify this course")
	}
	return &course, nil
}

// refreshLectureAggregates recomputes duration and progress after lectures changed.
func (s *Service) refreshLectureAggregates(ctx context.Context, courseID uint) {
	s.refreshCourseAggregate(ctx, courseID, "total_duration", s.aggregates.RecomputeDuration)
	s.refreshCourseAggregate(ctx, courseID, "progress", s.aggregates.RecomputeCourseProgress)
}

// refreshCourseAggregate runs one recompute after a committed write. A failure
// never fails the write; the course is queued for reconciliation instead.
func (s *Service) refreshCourseAggregate(ctx context.Context, courseID uint, field string, recompute func(context.Context, uint) error) {
	err := recompute(ctx, courseID)
	if err == nil {
		return
	}
	log.Warnf("[Courses] %s recompute for course %d failed: %v", field, courseID, err)
	if s.reconciler == nil {
		return
	}
	if err := s.reconciler.ReconcileCourse(ctx, courseID); err != nil {
		log.Errorf("[Courses] Could not queue reconcile of course %d: %v", courseID, err)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
