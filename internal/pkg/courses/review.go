package courses

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/entitlements"
)

type ReviewInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// ListReviews returns approved reviews, newest first. Moderators may ask for
// pending ones as well.
func (s *Service) ListReviews(ctx context.Context, p entitlements.Principal, courseID uint, includePending bool, page, limit int) ([]models.Review, Pagination, error) {
	if _, err := s.loadCourse(ctx, p, courseID); err != nil {
		return nil, Pagination{}, err
	}
	page, limit = normalizePage(page, limit)

	q := s.db.WithContext(ctx).Model(&models.Review{}).Where("course_id = ?", courseID)
	if !includePending || !entitlements.CanModerateReviews(p) {
		q = q.Where("is_approved = ?", true)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Pagination{}, apperror.Internal("Failed to list reviews", err)
	}
	reviews := []models.Review{}
	err := q.Preload("User", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "name", "profile_picture")
	}).Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&reviews).Error
	if err != nil {
		return nil, Pagination{}, apperror.Internal("Failed to list reviews", err)
	}
	return reviews, newPagination(page, limit, total), nil
}

// AddReview records a rating by an enrolled student. Admin reviews are
// approved immediately and count towards the course rating at once.
func (s *Service) AddReview(ctx context.Context, p entitlements.Principal, courseID uint, in ReviewInput) (*models.Review, error) {
	if !p.IsAuthenticated() {
		return nil, apperror.Unauthorized("Login required")
	}
	if err := validate.Struct(in); err != nil {
		return nil, apperror.Validation(err)
	}
	course, err := s.loadCourse(ctx, p, courseID)
	if err != nil {
		return nil, err
	}
	enrolled, err := s.gate.IsEnrolled(ctx, p.UserID, course.ID)
	if err != nil {
		return nil, apperror.Internal("Failed to check enrollment", err)
	}
	if !enrolled {
		return nil, apperror.Forbidden("You must be enrolled in the course to review it")
	}

	review := &models.Review{
		UserID:     p.UserID,
		CourseID:   course.ID,
		Rating:     in.Rating,
		Comment:    strings.TrimSpace(in.Comment),
		IsApproved: p.IsAdmin(),
	}
	if err := s.db.WithContext(ctx).Create(review).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Wrap(apperror.KindConflict, "You have already reviewed this course", err)
		}
		return nil, apperror.Internal("Failed to save review", err)
	}
	if review.IsApproved {
		s.refreshCourseAggregate(ctx, course.ID, "rating", s.aggregates.RecomputeRating)
	}
	return review, nil
}

// RemoveReview deletes a review by its author or an admin.
func (s *Service) RemoveReview(ctx context.Context, p entitlements.Principal, reviewID uint) error {
	var review models.Review
	if err := s.db.WithContext(ctx).First(&review, reviewID).Error; err != nil {
		return apperror.FromStore(err, "Review not found")
	}
	if !entitlements.CanRemoveReview(p, &review) {
		return apperror.Forbidden("You are not authorized to delete this review")
	}
	if err := s.db.WithContext(ctx).Delete(&review).Error; err != nil {
		return apperror.Internal("Failed to delete review", err)
	}
	s.refreshCourseAggregate(ctx, review.CourseID, "rating", s.aggregates.RecomputeRating)
	return nil
}

// SetReviewApproval approves or hides a review.
func (s *Service) SetReviewApproval(ctx context.Context, p entitlements.Principal, reviewID uint, approved bool) (*models.Review, error) {
	if !entitlements.CanModerateReviews(p) {
		return nil, apperror.Forbidden("Only admins can moderate reviews")
	}
	var review models.Review
	if err := s.db.WithContext(ctx).First(&review, reviewID).Error; err != nil {
		return nil, apperror.FromStore(err, "Review not found")
	}
	if review.IsApproved != approved {
		if err := s.db.WithContext(ctx).Model(&review).Update("is_approved", approved).Error; err != nil {
			return nil, apperror.Internal("Failed to update review", err)
		}
		review.IsApproved = approved
	}
	s.refreshCourseAggregate(ctx, review.CourseID, "rating", s.aggregates.RecomputeRating)
	log.Infof("[Courses] Review %d approved=%t by admin %d", review.ID, approved, p.UserID)
	return &review, nil
}
