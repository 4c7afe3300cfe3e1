package billing

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

// OpenPayment starts a checkout for a course. Paid courses get a pending
// payment plus a provider client secret; free courses are enrolled directly.
// No payment row is written when the provider call fails.
func (s *Service) OpenPayment(ctx context.Context, userID, courseID uint) (*IntentResult, error) {
	course, err := s.purchasableCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindEnrollment(ctx, userID, courseID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Internal("Failed to check enrollment", err)
	}
	if existing != nil && existing.IsActive() {
		return nil, apperror.Conflict("You are already enrolled in this course")
	}

	summary := CourseSummary{ID: course.ID, Title: course.Title, Thumbnail: course.Thumbnail}
	if course.IsFree() {
		enrollment, err := s.EnrollFree(ctx, userID, courseID)
		if err != nil {
			return nil, err
		}
		metrics.IntentsCreated.WithLabelValues("free").Inc()
		return &IntentResult{Amount: decimal.Zero, Currency: s.currency, Course: summary, Enrollment: enrollment, Free: true}, nil
	}

	if s.provider == nil {
		metrics.IntentsCreated.WithLabelValues("error").Inc()
		return nil, apperror.Internal("Payment provider not configured", errors.New("no intent provider"))
	}

	transactionID := "txn_" + uuid.NewString()
	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	intent, err := s.provider.CreateIntent(pctx, IntentRequest{
		Amount:   course.Price,
		Currency: s.currency,
		Metadata: map[string]string{
			"userId":        strconv.FormatUint(uint64(userID), 10),
			"courseId":      strconv.FormatUint(uint64(course.ID), 10),
			"courseTitle":   course.Title,
			"transactionId": transactionID,
		},
		IdempotencyKey: transactionID,
	})
	if err != nil {
		metrics.IntentsCreated.WithLabelValues("error").Inc()
		log.Errorf("[Billing] intent creation for user %d course %d failed: %v", userID, courseID, err)
		return nil, apperror.Internal("Payment provider unavailable", err)
	}

	payment := &models.Payment{
		UserID:             userID,
		CourseID:           course.ID,
		Amount:             course.Price,
		Currency:           s.currency,
		Status:             models.PaymentStatusPending,
		PaymentMethod:      models.PaymentProviderStripe,
		TransactionID:      transactionID,
		ExternalIntentID:   intent.ID,
		ExternalCustomerID: intent.CustomerID,
		Metadata: datatypes.JSONMap{
			"courseTitle":    course.Title,
			"courseCategory": string(course.Category),
		},
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		metrics.IntentsCreated.WithLabelValues("error").Inc()
		return nil, apperror.Internal("Failed to record payment", err)
	}

	metrics.IntentsCreated.WithLabelValues("created").Inc()
	log.Infof("[Billing] Opened payment %d (intent %s) for user %d course %d", payment.ID, intent.ID, userID, courseID)
	return &IntentResult{
		ClientSecret: intent.ClientSecret,
		PaymentID:    payment.ID,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		Course:       summary,
	}, nil
}

// EnrollFree enrolls a user into a free course. The unique enrollment pair
// decides concurrent calls: exactly one wins, the others get Conflict.
func (s *Service) EnrollFree(ctx context.Context, userID, courseID uint) (*models.Enrollment, error) {
	course, err := s.purchasableCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsFree() {
		return nil, apperror.BadRequest("This course is not free")
	}

	now := s.now()
	created, enrollment, err := s.repo.CreateEnrollmentIfNotExists(ctx, &models.Enrollment{
		UserID:        userID,
		CourseID:      courseID,
		PaymentStatus: models.PaymentStatusCompleted,
		AmountPaid:    decimal.Zero,
		EnrolledAt:    now,
		LastAccessed:  now,
	})
	if err != nil {
		return nil, apperror.Internal("Failed to create enrollment", err)
	}
	if !created {
		if enrollment.IsActive() {
			return nil, apperror.Conflict("You are already enrolled in this course")
		}
		if err := s.repo.ActivateEnrollment(ctx, enrollment.ID, nil, decimal.Zero, now); err != nil {
			return nil, apperror.Internal("Failed to activate enrollment", err)
		}
		if enrollment, err = s.repo.FindEnrollment(ctx, userID, courseID); err != nil {
			return nil, apperror.Internal("Failed to reload enrollment", err)
		}
	}

	s.refreshEnrolledStudents(ctx, courseID)
	s.notifyEnrollment(ctx, enrollment)
	log.Infof("[Billing] Free enrollment %d for user %d course %d", enrollment.ID, userID, courseID)
	return enrollment, nil
}

func (s *Service) purchasableCourse(ctx context.Context, courseID uint) (*models.Course, error) {
	course, err := s.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, apperror.FromStore(err, "Course not found")
	}
	if !course.IsPublished {
		return nil, apperror.BadRequest("Course is not available for enrollment")
	}
	return course, nil
}
