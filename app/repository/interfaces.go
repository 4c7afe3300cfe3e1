package repository

import (
	"github.com/ManuelReschke/CourseFox/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	UpdateProfile(id uint, name, bio string) error
	UpdatePassword(id uint, hash string) error
	TouchLastLogin(id uint) error
	GetStatsByUserID(userID uint) (*UserStats, error)
	List(filter UserFilter, offset, limit int) ([]models.User, error)
	Count(filter UserFilter) (int64, error)
	Update(user *models.User) error
	Delete(id uint) error
}

// UserFilter narrows admin user listings. Search matches name or email.
type UserFilter struct {
	Role   models.Role
	Search string
}

// EnrollmentRepository defines the read side of enrollments used by controllers.
// Writes belong to the billing service.
type EnrollmentRepository interface {
	GetByUserAndCourse(userID, courseID uint) (*models.Enrollment, error)
	ListByUser(userID uint, status models.PaymentStatus) ([]models.Enrollment, error)
	CountByCourse(courseID uint, status models.PaymentStatus) (int64, error)
}

// UserStats provides aggregated counts for a single user.
type UserStats struct {
	ActiveEnrollments int64 `json:"active_enrollments"`
	CompletedCourses  int64 `json:"completed_courses"`
	CoursesTaught     int64 `json:"courses_taught"`
}

// Repositories struct holds all repository instances
type Repositories struct {
	User       UserRepository
	Enrollment EnrollmentRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		Enrollment: NewEnrollmentRepository(db),
	}
}
