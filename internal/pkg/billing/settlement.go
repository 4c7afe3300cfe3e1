package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

// Settle applies a verified provider event to the payment it references.
//
// Allowed transitions are pending->completed, pending->failed and
// completed->refunded. Redelivery of an already applied event returns the
// stored records with OutcomeReplayed. Every other combination is rejected
// without error so the provider stops retrying.
func (s *Service) Settle(ctx context.Context, ev Event) (*SettlementResult, error) {
	if ev.Kind == EventIgnored {
		metrics.SettlementEvents.WithLabelValues(string(ev.Kind), string(OutcomeIgnored)).Inc()
		return &SettlementResult{Outcome: OutcomeIgnored}, nil
	}
	if strings.TrimSpace(ev.IntentID) == "" {
		return nil, apperror.BadRequest("Event does not reference a payment intent")
	}

	var (
		result *SettlementResult
		err    error
	)
	switch ev.Kind {
	case EventSucceeded:
		result, err = s.settleSucceeded(ctx, ev)
	case EventFailed:
		result, err = s.settleFailed(ctx, ev)
	case EventRefunded:
		result, err = s.settleRefunded(ctx, ev)
	default:
		return nil, apperror.BadRequest(fmt.Sprintf("Unsupported event kind %q", ev.Kind))
	}
	if err != nil {
		metrics.SettlementEvents.WithLabelValues(string(ev.Kind), "error").Inc()
		return nil, err
	}
	metrics.SettlementEvents.WithLabelValues(string(ev.Kind), string(result.Outcome)).Inc()

	switch result.Outcome {
	case OutcomeSettled:
		s.refreshEnrolledStudents(ctx, result.Payment.CourseID)
		s.notifyReceipt(ctx, result.Payment)
		s.notifyEnrollment(ctx, result.Enrollment)
	case OutcomeRefunded:
		s.refreshEnrolledStudents(ctx, result.Payment.CourseID)
	case OutcomeRejected:
		log.Warnf("[Billing] Rejected %s event for intent %s: payment %d is %s",
			ev.Kind, ev.IntentID, result.Payment.ID, result.Payment.Status)
	}
	return result, nil
}

// VerifyPayment settles a payment of userID from the provider's current view
// of the intent. It lets a client recover when the webhook never arrived.
func (s *Service) VerifyPayment(ctx context.Context, userID uint, intentID string) (*SettlementResult, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, apperror.BadRequest("paymentIntentId is required")
	}
	payment, err := s.repo.GetPaymentByIntent(ctx, intentID)
	if err != nil {
		return nil, apperror.FromStore(err, "Payment not found")
	}
	if payment.UserID != userID {
		return nil, apperror.NotFound("Payment not found")
	}
	if s.provider == nil {
		return nil, apperror.Internal("Payment provider is not configured", nil)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	ev, err := s.provider.RetrieveIntent(lookupCtx, intentID)
	if err != nil {
		return nil, apperror.Internal("Payment provider unavailable", err)
	}
	if ev.Kind != EventSucceeded {
		return nil, apperror.BadRequest("Payment not successful")
	}
	return s.Settle(ctx, *ev)
}

func (s *Service) settleSucceeded(ctx context.Context, ev Event) (*SettlementResult, error) {
	result := &SettlementResult{}
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		payment, err := s.lockPayment(ctx, tx, ev.IntentID)
		if err != nil {
			return err
		}
		result.Payment = payment

		switch payment.Status {
		case models.PaymentStatusCompleted:
			result.Outcome = OutcomeReplayed
			result.Enrollment, err = s.ensureEnrollment(ctx, tx, payment)
			return err
		case models.PaymentStatusFailed, models.PaymentStatusRefunded:
			result.Outcome = OutcomeRejected
			return nil
		}

		if ev.Currency != "" && ev.Currency != normalizeCurrency(payment.Currency) {
			log.Warnf("[Billing] Event %s for payment %d is in %s, payment expects %s",
				ev.ID, payment.ID, ev.Currency, payment.Currency)
			result.Outcome = OutcomeRejected
			return nil
		}

		now := s.now()
		amount := ev.AmountReceived
		updates := map[string]interface{}{
			"amount":     amount,
			"settled_at": &now,
		}
		if ev.ReceiptURL != "" {
			updates["receipt_url"] = ev.ReceiptURL
		}
		if ev.CustomerID != "" {
			updates["external_customer_id"] = ev.CustomerID
		}

		moved, err := tx.TransitionPayment(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusCompleted, updates)
		if err != nil {
			return err
		}
		if !moved {
			// A concurrent delivery won the conditional update; converge on its result.
			reread, err := tx.GetPaymentByIntentForUpdate(ctx, ev.IntentID)
			if err != nil {
				return err
			}
			result.Payment = reread
			if reread.Status != models.PaymentStatusCompleted {
				result.Outcome = OutcomeRejected
				return nil
			}
			result.Outcome = OutcomeReplayed
			result.Enrollment, err = s.ensureEnrollment(ctx, tx, reread)
			return err
		}

		payment.Status = models.PaymentStatusCompleted
		payment.Amount = amount
		payment.SettledAt = &now
		if ev.ReceiptURL != "" {
			payment.ReceiptURL = ev.ReceiptURL
		}
		if ev.CustomerID != "" {
			payment.ExternalCustomerID = ev.CustomerID
		}
		result.Outcome = OutcomeSettled
		result.Enrollment, err = s.ensureEnrollment(ctx, tx, payment)
		return err
	})
	if err != nil {
		return nil, s.settlementError(err)
	}
	if result.Outcome == OutcomeSettled {
		log.Infof("[Billing] Settled payment %d, enrollment %d (user %d, course %d)",
			result.Payment.ID, result.Enrollment.ID, result.Payment.UserID, result.Payment.CourseID)
	}
	return result, nil
}

// ensureEnrollment creates or activates the enrollment a completed payment
// grants. An enrollment that is already active is returned as is.
func (s *Service) ensureEnrollment(ctx context.Context, tx Repository, payment *models.Payment) (*models.Enrollment, error) {
	now := s.now()
	paymentID := payment.ID
	created, enrollment, err := tx.CreateEnrollmentIfNotExists(ctx, &models.Enrollment{
		UserID:        payment.UserID,
		CourseID:      payment.CourseID,
		PaymentStatus: models.PaymentStatusCompleted,
		PaymentID:     &paymentID,
		AmountPaid:    payment.Amount,
		EnrolledAt:    now,
		LastAccessed:  now,
	})
	if err != nil {
		return nil, err
	}
	if created || enrollment.IsActive() {
		if !created && (enrollment.PaymentID == nil || *enrollment.PaymentID != payment.ID) {
			log.Warnf("[Billing] User %d already enrolled in course %d via another payment; payment %d kept for review",
				payment.UserID, payment.CourseID, payment.ID)
		}
		return enrollment, nil
	}

	if err := tx.ActivateEnrollment(ctx, enrollment.ID, &paymentID, payment.Amount, now); err != nil {
		return nil, err
	}
	return tx.FindEnrollment(ctx, payment.UserID, payment.CourseID)
}

func (s *Service) settleFailed(ctx context.Context, ev Event) (*SettlementResult, error) {
	result := &SettlementResult{}
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		payment, err := s.lockPayment(ctx, tx, ev.IntentID)
		if err != nil {
			return err
		}
		result.Payment = payment

		switch payment.Status {
		case models.PaymentStatusFailed:
			result.Outcome = OutcomeReplayed
			return nil
		case models.PaymentStatusCompleted, models.PaymentStatusRefunded:
			result.Outcome = OutcomeRejected
			return nil
		}

		moved, err := tx.TransitionPayment(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusFailed, map[string]interface{}{
			"failure_reason": ev.FailureReason,
		})
		if err != nil {
			return err
		}
		if !moved {
			result.Outcome = OutcomeRejected
			return nil
		}
		payment.Status = models.PaymentStatusFailed
		payment.FailureReason = ev.FailureReason
		result.Outcome = OutcomeFailed
		return nil
	})
	if err != nil {
		return nil, s.settlementError(err)
	}
	return result, nil
}

func (s *Service) settleRefunded(ctx context.Context, ev Event) (*SettlementResult, error) {
	result := &SettlementResult{}
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		payment, err := s.lockPayment(ctx, tx, ev.IntentID)
		if err != nil {
			return err
		}
		result.Payment = payment

		switch payment.Status {
		case models.PaymentStatusRefunded:
			result.Outcome = OutcomeReplayed
			return nil
		case models.PaymentStatusPending, models.PaymentStatusFailed:
			result.Outcome = OutcomeRejected
			return nil
		}

		moved, err := tx.TransitionPayment(ctx, payment.ID, models.PaymentStatusCompleted, models.PaymentStatusRefunded, nil)
		if err != nil {
			return err
		}
		if !moved {
			result.Outcome = OutcomeRejected
			return nil
		}
		payment.Status = models.PaymentStatusRefunded

		enrollment, err := tx.FindEnrollment(ctx, payment.UserID, payment.CourseID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if enrollment != nil && enrollment.PaymentID != nil && *enrollment.PaymentID == payment.ID {
			if err := tx.SetEnrollmentPaymentStatus(ctx, payment.UserID, payment.CourseID, models.PaymentStatusRefunded); err != nil {
				return err
			}
			enrollment.PaymentStatus = models.PaymentStatusRefunded
			result.Enrollment = enrollment
		}
		result.Outcome = OutcomeRefunded
		return nil
	})
	if err != nil {
		return nil, s.settlementError(err)
	}
	return result, nil
}

func (s *Service) lockPayment(ctx context.Context, tx Repository, intentID string) (*models.Payment, error) {
	payment, err := tx.GetPaymentByIntentForUpdate(ctx, intentID)
	if err != nil {
		return nil, apperror.FromStore(err, "Payment not found")
	}
	return payment, nil
}

func (s *Service) settlementError(err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal("Settlement failed", err)
}
