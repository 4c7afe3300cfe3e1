package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Enrollment grants a user access to a course. (UserID, CourseID) is unique and
// doubles as the compare-and-set for settlement and free enrollment.
// Progress is derived from LectureCompletion rows by the aggregate updater.
type Enrollment struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	UserID        uint                `gorm:"not null;index:ux_enrollments_user_course,unique,priority:1" json:"user_id"`
	CourseID      uint                `gorm:"not null;index:ux_enrollments_user_course,unique,priority:2;index" json:"course_id"`
	Course        *Course             `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	PaymentStatus PaymentStatus       `gorm:"type:varchar(20);not null;default:'pending';index" json:"payment_status"`
	PaymentID     *uint               `gorm:"index" json:"payment_id,omitempty"`
	Progress      int                 `gorm:"not null;default:0" json:"progress"`
	Completions   []LectureCompletion `gorm:"foreignKey:EnrollmentID" json:"completed_lectures,omitempty"`
	LastAccessed  time.Time           `json:"last_accessed"`
	EnrolledAt    time.Time           `json:"enrolled_at"`
	AmountPaid    decimal.Decimal     `gorm:"type:decimal(10,2);not null;default:0" json:"amount_paid"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the enrollment currently grants access.
func (e *Enrollment) IsActive() bool {
	return e.PaymentStatus == PaymentStatusCompleted
}

// LectureCompletion marks one lecture as completed inside an enrollment.
type LectureCompletion struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EnrollmentID uint      `gorm:"not null;index:ux_lecture_completions_enrollment_lecture,unique,priority:1" json:"enrollment_id"`
	LectureID    uint      `gorm:"not null;index:ux_lecture_completions_enrollment_lecture,unique,priority:2;index" json:"lecture_id"`
	CompletedAt  time.Time `gorm:"autoCreateTime" json:"completed_at"`
}
