package repository

import (
	"github.com/ManuelReschke/CourseFox/app/models"
	"gorm.io/gorm"
)

type enrollmentRepository struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

// GetByUserAndCourse returns the enrollment with its completed lectures.
func (r *enrollmentRepository) GetByUserAndCourse(userID, courseID uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.Preload("Completions", func(db *gorm.DB) *gorm.DB {
		return db.Order("completed_at ASC, id ASC")
	}).Where("user_id = ? AND course_id = ?", userID, courseID).First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByUser returns the user's enrollments, newest first, with their courses.
// An empty status returns every state.
func (r *enrollmentRepository) ListByUser(userID uint, status models.PaymentStatus) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	q := r.db.Preload("Course").Preload("Course.Instructor", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "name", "profile_picture")
	}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("payment_status = ?", status)
	}
	err := q.Order("enrolled_at DESC, id DESC").Find(&enrollments).Error
	return enrollments, err
}

func (r *enrollmentRepository) CountByCourse(courseID uint, status models.PaymentStatus) (int64, error) {
	var count int64
	err := r.db.Model(&models.Enrollment{}).
		Where("course_id = ? AND payment_status = ?", courseID, status).
		Count(&count).Error
	return count, err
}
