package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/aggregate"
	"github.com/ManuelReschke/CourseFox/internal/pkg/mail"
)

// Processors holds the dependencies of the built-in job handlers.
type Processors struct {
	db         *gorm.DB
	mailer     mail.Mailer
	aggregates *aggregate.Updater
	publicURL  string
}

func NewProcessors(db *gorm.DB, mailer mail.Mailer, publicURL string) *Processors {
	return &Processors{
		db:         db,
		mailer:     mailer,
		aggregates: aggregate.NewUpdater(db),
		publicURL:  strings.TrimRight(publicURL, "/"),
	}
}

// Register installs every handler on q.
func (p *Processors) Register(q *Queue) {
	q.Handle(JobTypePaymentReceipt, p.processPaymentReceipt)
	q.Handle(JobTypeEnrollmentConfirmation, p.processEnrollmentConfirmation)
	q.Handle(JobTypeReconcileCourse, p.processReconcileCourse)
	q.Handle(JobTypeReconcileAll, p.processReconcileAll)
}

func (p *Processors) processPaymentReceipt(ctx context.Context, job *Job) error {
	payload, err := PaymentReceiptJobPayloadFromMap(job.Payload)
	if err != nil {
		return Permanent(fmt.Errorf("invalid receipt payload: %w", err))
	}

	var payment models.Payment
	err = p.db.WithContext(ctx).Preload("Course").First(&payment, payload.PaymentID).Error
	if err != nil {
		return notFoundIsPermanent(err, "payment", payload.PaymentID)
	}
	if payment.Status != models.PaymentStatusCompleted {
		log.Infof("[Jobs] Payment %d is %s, skipping receipt", payment.ID, payment.Status)
		return nil
	}
	var user models.User
	if err := p.db.WithContext(ctx).First(&user, payment.UserID).Error; err != nil {
		return notFoundIsPermanent(err, "user", payment.UserID)
	}

	paidAt := payment.UpdatedAt
	if payment.SettledAt != nil {
		paidAt = *payment.SettledAt
	}
	receipt := mail.Receipt{
		Name:          user.Name,
		Amount:        payment.Amount.StringFixed(2),
		Currency:      strings.ToUpper(payment.Currency),
		TransactionID: payment.TransactionID,
		ReceiptURL:    payment.ReceiptURL,
		PaidAt:        paidAt.UTC(),
	}
	if payment.Course != nil {
		receipt.CourseTitle = payment.Course.Title
	}
	subject, body, err := mail.RenderReceipt(receipt)
	if err != nil {
		return Permanent(err)
	}
	return p.mailer.Send(user.Email, subject, body)
}

func (p *Processors) processEnrollmentConfirmation(ctx context.Context, job *Job) error {
	payload, err := EnrollmentConfirmationJobPayloadFromMap(job.Payload)
	if err != nil {
		return Permanent(fmt.Errorf("invalid enrollment payload: %w", err))
	}

	var enrollment models.Enrollment
	err = p.db.WithContext(ctx).Preload("Course").First(&enrollment, payload.EnrollmentID).Error
	if err != nil {
		return notFoundIsPermanent(err, "enrollment", payload.EnrollmentID)
	}
	if !enrollment.IsActive() {
		log.Infof("[Jobs] Enrollment %d is %s, skipping confirmation", enrollment.ID, enrollment.PaymentStatus)
		return nil
	}
	var user models.User
	if err := p.db.WithContext(ctx).First(&user, enrollment.UserID).Error; err != nil {
		return notFoundIsPermanent(err, "user", enrollment.UserID)
	}

	confirmation := mail.EnrollmentConfirmation{Name: user.Name}
	if enrollment.Course != nil {
		confirmation.CourseTitle = enrollment.Course.Title
	}
	if p.publicURL != "" {
		confirmation.CourseURL = fmt.Sprintf("%s/courses/%d", p.publicURL, enrollment.CourseID)
	}
	subject, body, err := mail.RenderEnrollmentConfirmation(confirmation)
	if err != nil {
		return Permanent(err)
	}
	return p.mailer.Send(user.Email, subject, body)
}

func (p *Processors) processReconcileCourse(ctx context.Context, job *Job) error {
	payload, err := ReconcileCourseJobPayloadFromMap(job.Payload)
	if err != nil || payload.CourseID == 0 {
		return Permanent(fmt.Errorf("invalid reconcile payload: %v", job.Payload))
	}
	return p.aggregates.ReconcileCourse(ctx, payload.CourseID)
}

func (p *Processors) processReconcileAll(ctx context.Context, _ *Job) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()
	_, err := p.aggregates.ReconcileAll(ctx)
	return err
}

func notFoundIsPermanent(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Permanent(fmt.Errorf("%s %d not found", what, id))
	}
	return fmt.Errorf("load %s %d: %w", what, id, err)
}
