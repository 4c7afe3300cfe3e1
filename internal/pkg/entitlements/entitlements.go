package entitlements

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
)

// Principal is the authenticated caller of an operation. The zero value is an
// anonymous visitor.
type Principal struct {
	UserID uint
	Role   models.Role
}

func (p Principal) IsAuthenticated() bool {
	return p.UserID != 0
}

func (p Principal) IsAdmin() bool {
	return p.IsAuthenticated() && p.Role == models.RoleAdmin
}

// CanCreateCourse allows instructors and admins to author courses.
func CanCreateCourse(p Principal) bool {
	if !p.IsAuthenticated() {
		return false
	}
	return p.Role == models.RoleInstructor || p.Role == models.RoleAdmin
}

// CanManageCourse allows the owning instructor and admins to change a course,
// its lectures and its thumbnail.
func CanManageCourse(p Principal, course *models.Course) bool {
	if course == nil || !p.IsAuthenticated() {
		return false
	}
	return p.IsAdmin() || course.InstructorID == p.UserID
}

func CanModerateReviews(p Principal) bool {
	return p.IsAdmin()
}

// CanRemoveReview allows the author of a review and admins to delete it.
func CanRemoveReview(p Principal, review *models.Review) bool {
	if review == nil || !p.IsAuthenticated() {
		return false
	}
	return p.IsAdmin() || review.UserID == p.UserID
}

// CanViewPayment allows the payer and admins to read a payment.
func CanViewPayment(p Principal, payment *models.Payment) bool {
	if payment == nil || !p.IsAuthenticated() {
		return false
	}
	return p.IsAdmin() || payment.UserID == p.UserID
}

// CanViewUser allows a user to read their own account and admins to read any.
func CanViewUser(p Principal, userID uint) bool {
	return p.IsAdmin() || (p.IsAuthenticated() && p.UserID == userID)
}

// Gate answers whether a principal may consume course content.
type Gate struct {
	db *gorm.DB
}

func NewGate(db *gorm.DB) *Gate {
	return &Gate{db: db}
}

// CanAccess reports whether p may open the course, or a lecture of it when
// lecture is not nil. Admins, the course instructor and preview lectures are
// always allowed; everybody else needs a completed enrollment.
func (g *Gate) CanAccess(ctx context.Context, p Principal, course *models.Course, lecture *models.Lecture) (bool, error) {
	if course == nil {
		return false, nil
	}
	if lecture != nil && lecture.CourseID != course.ID {
		return false, nil
	}
	if CanManageCourse(p, course) {
		return true, nil
	}
	if lecture != nil && lecture.IsPreview {
		return true, nil
	}
	if !p.IsAuthenticated() {
		return false, nil
	}
	return g.IsEnrolled(ctx, p.UserID, course.ID)
}

// IsEnrolled reports whether the user holds a completed enrollment.
func (g *Gate) IsEnrolled(ctx context.Context, userID, courseID uint) (bool, error) {
	var enrollment models.Enrollment
	err := g.db.WithContext(ctx).
		Select("id", "payment_status").
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enrollment.IsActive(), nil
}
