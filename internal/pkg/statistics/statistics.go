// Package statistics computes the platform snapshot shown to admins and keeps
// it in the cache for a few minutes.
package statistics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
)

const (
	CacheKeySnapshot = "statistics:platform:snapshot"
	CacheExpiration  = 5 * time.Minute
)

// Snapshot holds platform wide counters.
type Snapshot struct {
	TotalUsers        int64           `json:"totalUsers"`
	TotalInstructors  int64           `json:"totalInstructors"`
	PublishedCourses  int64           `json:"publishedCourses"`
	ActiveEnrollments int64           `json:"activeEnrollments"`
	EnrollmentsToday  int64           `json:"enrollmentsToday"`
	Revenue           decimal.Decimal `json:"revenue"`
	RefundedPayments  int64           `json:"refundedPayments"`
	GeneratedAt       time.Time       `json:"generatedAt"`
}

// Store is the key value cache the snapshot is kept in.
type Store interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, expiration time.Duration) error
	Delete(key string) error
}

type cacheStore struct{}

func (cacheStore) Get(key string) (string, error) { return cache.Get(key) }

func (cacheStore) Set(key string, value interface{}, expiration time.Duration) error {
	return cache.Set(key, value, expiration)
}

func (cacheStore) Delete(key string) error { return cache.Delete(key) }

type Service struct {
	db    *gorm.DB
	store Store
	now   func() time.Time
}

// NewService uses the shared redis cache. A nil store disables caching.
func NewService(db *gorm.DB) *Service {
	return NewServiceWithStore(db, cacheStore{})
}

func NewServiceWithStore(db *gorm.DB, store Store) *Service {
	return &Service{db: db, store: store, now: time.Now}
}

// Snapshot returns the cached snapshot or computes and caches a fresh one.
// Cache failures only cost a recomputation.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s.store != nil {
		if raw, err := s.store.Get(CacheKeySnapshot); err == nil {
			var snap Snapshot
			if err := json.Unmarshal([]byte(raw), &snap); err == nil {
				return &snap, nil
			}
			log.Warnf("[Statistics] Dropping unreadable cached snapshot")
		}
	}

	snap, err := s.Compute(ctx)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if raw, err := json.Marshal(snap); err == nil {
			if err := s.store.Set(CacheKeySnapshot, string(raw), CacheExpiration); err != nil {
				log.Warnf("[Statistics] Failed to cache snapshot: %v", err)
			}
		}
	}
	return snap, nil
}

// Invalidate drops the cached snapshot.
func (s *Service) Invalidate() {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(CacheKeySnapshot); err != nil {
		log.Warnf("[Statistics] Failed to invalidate snapshot: %v", err)
	}
}

// Compute reads every counter from the database.
func (s *Service) Compute(ctx context.Context) (*Snapshot, error) {
	db := s.db.WithContext(ctx)
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	snap := &Snapshot{GeneratedAt: now}
	counts := []struct {
		name  string
		dst   *int64
		query *gorm.DB
	}{
		{"users", &snap.TotalUsers, db.Model(&models.User{})},
		{"instructors", &snap.TotalInstructors, db.Model(&models.User{}).Where("role = ?", models.RoleInstructor)},
		{"published courses", &snap.PublishedCourses, db.Model(&models.Course{}).Where("is_published = ?", true)},
		{"active enrollments", &snap.ActiveEnrollments, db.Model(&models.Enrollment{}).Where("payment_status = ?", models.PaymentStatusCompleted)},
		{"enrollments today", &snap.EnrollmentsToday, db.Model(&models.Enrollment{}).
			Where("payment_status = ? AND enrolled_at >= ?", models.PaymentStatusCompleted, dayStart)},
		{"refunds", &snap.RefundedPayments, db.Model(&models.Payment{}).Where("status = ?", models.PaymentStatusRefunded)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", c.name, err)
		}
	}

	err := db.Model(&models.Payment{}).
		Where("status = ?", models.PaymentStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Row().Scan(&snap.Revenue)
	if err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	return snap, nil
}

// InstructorStats summarises the courses of one instructor.
type InstructorStats struct {
	InstructorID     uint            `json:"instructorId"`
	TotalCourses     int64           `json:"totalCourses"`
	PublishedCourses int64           `json:"publishedCourses"`
	TotalEnrollments int64           `json:"totalEnrollments"`
	TotalRatings     int64           `json:"totalRatings"`
	AverageRating    float64         `json:"averageRating"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
}

// Instructor reads the stats from the course aggregates and completed
// payments. It is not cached.
func (s *Service) Instructor(ctx context.Context, instructorID uint) (*InstructorStats, error) {
	db := s.db.WithContext(ctx)
	var row struct {
		Total     int64
		Published int64
		Enrolled  int64
		RatingSum float64
		Ratings   int64
	}
	err := db.Model(&models.Course{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN is_published = ? THEN 1 ELSE 0 END), 0) AS published, "+
			"COALESCE(SUM(enrolled_students), 0) AS enrolled, "+
			"COALESCE(SUM(rating), 0) AS rating_sum, "+
			"COALESCE(SUM(total_ratings), 0) AS ratings", true).
		Where("instructor_id = ?", instructorID).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("sum instructor courses: %w", err)
	}

	stats := &InstructorStats{
		InstructorID:     instructorID,
		TotalCourses:     row.Total,
		PublishedCourses: row.Published,
		TotalEnrollments: row.Enrolled,
		TotalRatings:     row.Ratings,
	}
	if row.Ratings > 0 {
		stats.AverageRating = math.Round(row.RatingSum/float64(row.Ratings)*10) / 10
	}

	err = db.Model(&models.Payment{}).
		Joins("JOIN courses ON courses.id = payments.course_id").
		Where("courses.instructor_id = ? AND payments.status = ?", instructorID, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(payments.amount), 0)").
		Row().Scan(&stats.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("sum instructor revenue: %w", err)
	}
	return stats, nil
}
