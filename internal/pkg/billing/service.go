package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/aggregate"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
)

// EnrollmentCounter refreshes the enrolled student count of a course.
type EnrollmentCounter interface {
	RecomputeEnrolledStudents(ctx context.Context, courseID uint) error
}

// Reconciler schedules an out-of-band recomputation of a course.
type Reconciler interface {
	ReconcileCourse(ctx context.Context, courseID uint) error
}

// Notifier delivers best-effort messages after settlement. Errors are logged
// and never undo a settlement.
type Notifier interface {
	PaymentReceipt(ctx context.Context, payment *models.Payment) error
	EnrollmentConfirmed(ctx context.Context, enrollment *models.Enrollment) error
}

// Service opens payments, settles provider events and owns the free
// enrollment path.
type Service struct {
	repo            Repository
	provider        IntentProvider
	aggregates      EnrollmentCounter
	notifier        Notifier
	reconciler      Reconciler
	currency        string
	providerTimeout time.Duration
	now             func() time.Time
}

type Option func(*Service)

func WithProvider(p IntentProvider) Option { return func(s *Service) { s.provider = p } }

func WithAggregates(a EnrollmentCounter) Option { return func(s *Service) { s.aggregates = a } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithReconciler(r Reconciler) Option { return func(s *Service) { s.reconciler = r } }

func WithCurrency(c string) Option { return func(s *Service) { s.currency = normalizeCurrency(c) } }

// WithProviderTimeout bounds each call to the payment provider.
func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		currency:        models.DefaultCurrency,
		providerTimeout: 15 * time.Second,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle with the
// aggregate updater wired in.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	base := []Option{WithAggregates(aggregate.NewUpdater(db))}
	return NewService(NewRepository(db), append(base, opts...)...)
}

// GetPayment loads a payment with its course.
func (s *Service) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, apperror.FromStore(err, "Payment not found")
	}
	return p, nil
}

// ListPayments returns the payment history of a user, newest first.
func (s *Service) ListPayments(ctx context.Context, userID uint) ([]models.Payment, error) {
	payments, err := s.repo.ListPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("Failed to load payments", err)
	}
	return payments, nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// NeedsProcessing reports whether a recorded event should be settled. Events
// that never finished or hit an internal error are retried on redelivery;
// settlement itself is idempotent.
func NeedsProcessing(event *models.PaymentWebhookEvent) bool {
	if event == nil {
		return false
	}
	return event.ProcessedAt == nil || event.Outcome == string(OutcomeError)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome Outcome, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, string(outcome), errMsg)
}

func (s *Service) refreshEnrolledStudents(ctx context.Context, courseID uint) {
	if s.aggregates == nil {
		return
	}
	err := s.aggregates.RecomputeEnrolledStudents(ctx, courseID)
	if err == nil {
		return
	}
	log.Warnf("[Billing] enrolled_students recompute for course %d failed: %v", courseID, err)
	if s.reconciler == nil {
		return
	}
	if err := s.reconciler.ReconcileCourse(ctx, courseID); err != nil {
		log.Errorf("[Billing] Could not queue reconcile of course %d: %v", courseID, err)
	}
}

func (s *Service) notifyReceipt(ctx context.Context, payment *models.Payment) {
	if s.notifier == nil || payment == nil {
		return
	}
	if err := s.notifier.PaymentReceipt(ctx, payment); err != nil {
		log.Warnf("[Billing] payment receipt for payment %d not queued: %v", payment.ID, err)
	}
}

func (s *Service) notifyEnrollment(ctx context.Context, enrollment *models.Enrollment) {
	if s.notifier == nil || enrollment == nil {
		return
	}
	if err := s.notifier.EnrollmentConfirmed(ctx, enrollment); err != nil {
		log.Warnf("[Billing] enrollment confirmation for enrollment %d not queued: %v", enrollment.ID, err)
	}
}
