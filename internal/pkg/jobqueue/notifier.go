package jobqueue

import (
	"context"

	"github.com/ManuelReschke/CourseFox/app/models"
)

// Enqueuer is the part of Queue the notifier needs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error)
}

// Notifier turns settlement notifications into mail jobs.
type Notifier struct {
	queue Enqueuer
}

func NewNotifier(q Enqueuer) *Notifier {
	return &Notifier{queue: q}
}

func (n *Notifier) PaymentReceipt(ctx context.Context, payment *models.Payment) error {
	_, err := n.queue.EnqueueJob(ctx, JobTypePaymentReceipt, PaymentReceiptJobPayload{PaymentID: payment.ID}.ToMap())
	return err
}

func (n *Notifier) EnrollmentConfirmed(ctx context.Context, enrollment *models.Enrollment) error {
	_, err := n.queue.EnqueueJob(ctx, JobTypeEnrollmentConfirmation, EnrollmentConfirmationJobPayload{EnrollmentID: enrollment.ID}.ToMap())
	return err
}

// ReconcileCourse schedules a background recomputation of one course.
func (n *Notifier) ReconcileCourse(ctx context.Context, courseID uint) error {
	_, err := n.queue.EnqueueJob(ctx, JobTypeReconcileCourse, ReconcileCourseJobPayload{CourseID: courseID}.ToMap())
	return err
}

func (n *Notifier) ReconcileAll(ctx context.Context) (*Job, error) {
	return n.queue.EnqueueJob(ctx, JobTypeReconcileAll, map[string]interface{}{})
}
