// Package testutil provides database fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/CourseFox/app/models"
)

// NewDB opens an isolated in-memory SQLite database with all tables migrated.
// The pool is capped at one connection so every query sees the same memory DB.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=off", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Name:     "user-" + uuid.NewString()[:8],
		Email:    uuid.NewString() + "@example.com",
		Password: "x",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateCourse inserts a published course priced at price (e.g. "49.99").
func CreateCourse(t *testing.T, db *gorm.DB, instructorID uint, price string) *models.Course {
	t.Helper()
	c := &models.Course{
		Title:        "Course " + uuid.NewString()[:8],
		Description:  "A course",
		Category:     models.CategoryProgramming,
		Level:        models.LevelBeginner,
		InstructorID: instructorID,
		Price:        decimal.RequireFromString(price),
		IsPublished:  true,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func CreateLecture(t *testing.T, db *gorm.DB, courseID uint, position int, duration float64) *models.Lecture {
	t.Helper()
	l := &models.Lecture{
		CourseID: courseID,
		Title:    fmt.Sprintf("Lecture %d", position),
		VideoURL: "https://cdn.example.com/video.mp4",
		Position: position,
		Duration: duration,
	}
	require.NoError(t, db.Create(l).Error)
	return l
}

func CreateEnrollment(t *testing.T, db *gorm.DB, userID, courseID uint, status models.PaymentStatus) *models.Enrollment {
	t.Helper()
	e := &models.Enrollment{
		UserID:        userID,
		CourseID:      courseID,
		PaymentStatus: status,
		AmountPaid:    decimal.Zero,
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

func Reload[T any](t *testing.T, db *gorm.DB, id uint) *T {
	t.Helper()
	var out T
	require.NoError(t, db.First(&out, id).Error)
	return &out
}
