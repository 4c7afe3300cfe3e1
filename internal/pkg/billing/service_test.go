package billing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/testutil"
)

type fakeProvider struct {
	calls    int32
	err      error
	block    bool
	retrieve func(intentID string) (*Event, error)
}

func (p *fakeProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	id := "pi_test_" + req.IdempotencyKey
	return &Intent{ID: id, ClientSecret: id + "_secret", CustomerID: "cus_test"}, nil
}

func (p *fakeProvider) RetrieveIntent(_ context.Context, intentID string) (*Event, error) {
	if p.retrieve == nil {
		return nil, errors.New("no such intent")
	}
	return p.retrieve(intentID)
}

type failingCounter struct{}

func (failingCounter) RecomputeEnrolledStudents(context.Context, uint) error {
	return errors.New("lock wait timeout")
}

type recordingReconciler struct {
	courses []uint
}

func (r *recordingReconciler) ReconcileCourse(_ context.Context, courseID uint) error {
	r.courses = append(r.courses, courseID)
	return nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	receipts    []uint
	enrollments []uint
	err         error
}

func (n *fakeNotifier) PaymentReceipt(_ context.Context, p *models.Payment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts = append(n.receipts, p.ID)
	return n.err
}

func (n *fakeNotifier) EnrollmentConfirmed(_ context.Context, e *models.Enrollment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enrollments = append(n.enrollments, e.ID)
	return n.err
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	provider *fakeProvider
	notifier *fakeNotifier
	student  *models.User
	paid     *models.Course
	free     *models.Course
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{db: db, provider: &fakeProvider{}, notifier: &fakeNotifier{}}
	base := []Option{WithProvider(f.provider), WithNotifier(f.notifier)}
	f.svc = NewServiceFromDB(db, append(base, opts...)...)

	instructor := testutil.CreateUser(t, db, models.RoleInstructor)
	f.student = testutil.CreateUser(t, db, models.RoleStudent)
	f.paid = testutil.CreateCourse(t, db, instructor.ID, "49.99")
	f.free = testutil.CreateCourse(t, db, instructor.ID, "0")
	return f
}

func (f *fixture) open(t *testing.T) (*IntentResult, *models.Payment) {
	t.Helper()
	res, err := f.svc.OpenPayment(context.Background(), f.student.ID, f.paid.ID)
	require.NoError(t, err)
	var p models.Payment
	require.NoError(t, f.db.First(&p, res.PaymentID).Error)
	return res, &p
}

func succeeded(intentID string) Event {
	return Event{ID: "evt_" + intentID, Kind: EventSucceeded, IntentID: intentID, AmountReceived: decimal.RequireFromString("49.99"), Currency: "usd", ReceiptURL: "https://pay.example.com/r"}
}

func countEnrollments(t *testing.T, db *gorm.DB, userID, courseID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Enrollment{}).Where("user_id = ? AND course_id = ?", userID, courseID).Count(&n).Error)
	return n
}

func TestOpenPayment_CreatesPendingPayment(t *testing.T) {
	f := newFixture(t)

	res, p := f.open(t)
	assert.False(t, res.Free)
	assert.NotEmpty(t, res.ClientSecret)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("49.99")))
	assert.Equal(t, f.paid.ID, res.Course.ID)
	assert.Equal(t, f.paid.Title, res.Course.Title)

	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, "usd", p.Currency)
	assert.Equal(t, models.PaymentProviderStripe, p.PaymentMethod)
	assert.Contains(t, p.TransactionID, "txn_")
	assert.Equal(t, "pi_test_"+p.TransactionID, p.ExternalIntentID)
	assert.Equal(t, f.paid.Title, p.Metadata["courseTitle"])
	assert.Equal(t, string(models.CategoryProgramming), p.Metadata["courseCategory"])
	assert.Equal(t, int64(0), countEnrollments(t, f.db, f.student.ID, f.paid.ID))
}

func TestOpenPayment_FreshTransactionIDs(t *testing.T) {
	f := newFixture(t)
	_, first := f.open(t)
	_, second := f.open(t)
	assert.NotEqual(t, first.TransactionID, second.TransactionID)
}

func TestOpenPayment_ProviderFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("provider down")

	_, err := f.svc.OpenPayment(context.Background(), f.student.ID, f.paid.ID)
	require.Error(t, err)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))

	var n int64
	require.NoError(t, f.db.Model(&models.Payment{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestOpenPayment_ProviderTimeout(t *testing.T) {
	f := newFixture(t, WithProviderTimeout(20*time.Millisecond))
	f.provider.block = true

	start := time.Now()
	_, err := f.svc.OpenPayment(context.Background(), f.student.ID, f.paid.ID)
	require.Error(t, err)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)

	var n int64
	require.NoError(t, f.db.Model(&models.Payment{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestOpenPayment_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.OpenPayment(context.Background(), f.student.ID, 9999)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	testutil.CreateEnrollment(t, f.db, f.student.ID, f.paid.ID, models.PaymentStatusCompleted)
	_, err = f.svc.OpenPayment(context.Background(), f.student.ID, f.paid.ID)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.provider.calls))
}

func TestOpenPayment_UnpublishedCourse(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.paid).Update("is_published", false).Error)

	_, err := f.svc.OpenPayment(context.Background(), f.student.ID, f.paid.ID)
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))
}

func TestOpenPayment_FreeCourseEnrollsDirectly(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.OpenPayment(context.Background(), f.student.ID, f.free.ID)
	require.NoError(t, err)
	assert.True(t, res.Free)
	require.NotNil(t, res.Enrollment)
	assert.Equal(t, models.PaymentStatusCompleted, res.Enrollment.PaymentStatus)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.provider.calls))
}

func TestEnrollFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EnrollFree(ctx, f.student.ID, f.paid.ID)
	require.Error(t, err)
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))
	assert.Equal(t, "This course is not free", apperror.Message(err))

	e, err := f.svc.EnrollFree(ctx, f.student.ID, f.free.ID)
	require.NoError(t, err)
	assert.True(t, e.AmountPaid.IsZero())
	assert.Nil(t, e.PaymentID)

	_, err = f.svc.EnrollFree(ctx, f.student.ID, f.free.ID)
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	assert.Equal(t, int64(1), countEnrollments(t, f.db, f.student.ID, f.free.ID))
	assert.Equal(t, 1, testutil.Reload[models.Course](t, f.db, f.free.ID).EnrolledStudents)
	assert.Equal(t, []uint{e.ID}, f.notifier.enrollments)
}

func TestEnrollFree_ConcurrentCallsProduceOneEnrollment(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	var ok, conflicts int32
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.EnrollFree(context.Background(), f.student.ID, f.free.ID)
			if err == nil {
				atomic.AddInt32(&ok, 1)
			} else if apperror.Is(err, apperror.KindConflict) {
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(5), conflicts)
	assert.Equal(t, int64(1), countEnrollments(t, f.db, f.student.ID, f.free.ID))
}

func TestSettle_SucceededCreatesEnrollment(t *testing.T) {
	f := newFixture(t)
	_, p := f.open(t)

	ev := succeeded(p.ExternalIntentID)
	ev.AmountReceived = decimal.RequireFromString("45.00")
	res, err := f.svc.Settle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	require.NotNil(t, res.Enrollment)

	stored := testutil.Reload[models.Payment](t, f.db, p.ID)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("45.00")))
	assert.Equal(t, "https://pay.example.com/r", stored.ReceiptURL)
	assert.NotNil(t, stored.SettledAt)

	e := testutil.Reload[models.Enrollment](t, f.db, res.Enrollment.ID)
	assert.Equal(t, models.PaymentStatusCompleted, e.PaymentStatus)
	require.NotNil(t, e.PaymentID)
	assert.Equal(t, p.ID, *e.PaymentID)
	assert.True(t, e.AmountPaid.Equal(decimal.RequireFromString("45.00")))

	assert.Equal(t, 1, testutil.Reload[models.Course](t, f.db, f.paid.ID).EnrolledStudents)
	assert.Equal(t, []uint{p.ID}, f.notifier.receipts)
	assert.Equal(t, []uint{e.ID}, f.notifier.enrollments)
}

func TestSettle_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, p := f.open(t)
	ev := succeeded(p.ExternalIntentID)

	first, err := f.svc.Settle(context.Background(), ev)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := f.svc.Settle(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, OutcomeReplayed, again.Outcome)
		assert.Equal(t, first.Enrollment.ID, again.Enrollment.ID)
		assert.Equal(t, first.Payment.ID, again.Payment.ID)
	}

	assert.Equal(t, int64(1), countEnrollments(t, f.db, f.student.ID, f.paid.ID))
	assert.Equal(t, 1, testutil.Reload[models.Course](t, f.db, f.paid.ID).EnrolledStudents)
	assert.Len(t, f.notifier.receipts, 1)
}

func TestSettle_ConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	_, p := f.open(t)
	ev := succeeded(p.ExternalIntentID)

	var wg sync.WaitGroup
	var settled, replayed int32
	ids := make(chan uint, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Settle(context.Background(), ev)
			if !assert.NoError(t, err) {
				return
			}
			ids <- res.Enrollment.ID
			switch res.Outcome {
			case OutcomeSettled:
				atomic.AddInt32(&settled, 1)
			case OutcomeReplayed:
				atomic.AddInt32(&replayed, 1)
			}
		}()
	}
	wg.Wait()
	close(ids)

	assert.Equal(t, int32(1), settled)
	assert.Equal(t, int32(7), replayed)
	seen := map[uint]struct{}{}
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, int64(1), countEnrollments(t, f.db, f.student.ID, f.paid.ID))
}

func TestSettle_UnknownIntent(t *testing.T) {
	f := newFixture(t)

	for _, kind := range []EventKind{EventSucceeded, EventFailed, EventRefunded} {
		_, err := f.svc.Settle(context.Background(), Event{Kind: kind, IntentID: "pi_missing"})
		require.Error(t, err)
		assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err), string(kind))
	}
	var n int64
	require.NoError(t, f.db.Model(&models.Enrollment{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSettle_FailedThenSucceededIsRejected(t *testing.T) {
	f := newFixture(t)
	_, p := f.open(t)
	ctx := context.Background()

	res, err := f.svc.Settle(ctx, Event{Kind: EventFailed, IntentID: p.ExternalIntentID, FailureReason: "card declined"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	stored := testutil.Reload[models.Payment](t, f.db, p.ID)
	assert.Equal(t, models.PaymentStatusFailed, stored.Status)
	assert.Equal(t, "card declined", stored.FailureReason)

	res, err = f.svc.Settle(ctx, Event{Kind: EventFailed, IntentID: p.ExternalIntentID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayed, res.Outcome)

	res, err = f.svc.Settle(ctx, succeeded(p.ExternalIntentID))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Nil(t, res.Enrollment)
	assert.Equal(t, models.PaymentStatusFailed, testutil.Reload[models.Payment](t, f.db, p.ID).Status)
	assert.Equal(t, int64(0), countEnrollments(t, f.db, f.student.ID, f.paid.ID))
}

func TestSettle_FailedAfterCompletedIsRejected(t *testing.T) {
	f := newFixture(t)
	_, p := f.open(t)
	ctx := context.Background()

	_, err := f.svc.Settle(ctx, succeeded(p.ExternalIntentID))
	require.NoError(t, err)

	res, err := f.svc.Settle(ctx, Event{Kind: EventFailed, IntentID: p.ExternalIntentID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, models.PaymentStatusCompleted, testutil.Reload[models.Payment](t, f.db, p.ID).Status)
}

func TestSettle_Refund(t *testing.T) {
	f := newFixture(t)
	_, p := f.open(t)
	ctx := context.Background()

	res, err := f.svc.Settle(ctx, Event{Kind: EventRefunded, IntentID: p.ExternalIntentID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome, "pending payments cannot be refunded")

	settled, err := f.svc.Settle(ctx, succeeded(p.ExternalIntentID))
	require.NoError(t, err)

	res, err = f.svc.Settle(ctx, Event{Kind: EventRefunded, IntentID: p.ExternalIntentID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefunded, res.Outcome)
	assert.Equal(t, models.PaymentStatusRefunded, testutil.Reload[models.Payment](t, f.db, p.ID).Status)
	assert.Equal(t, models.PaymentStatusRefunded, testutil.Reload[models.Enrollment](t, f.db, settled.Enrollment.ID).PaymentStatus)
	assert.Equal(t, 0, testutil.Reload[models.Course](t, f.db, f.paid.ID).EnrolledStudents)

	res, err = f.svc.Settle(ctx, Event{Kind: EventRefunded, IntentID: p.ExternalIntentID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayed, res.Outcome)
}

func TestSettle_RepurchaseAfterRefundReactivatesEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, first := f.open(t)
	settled, err := f.svc.Settle(ctx, succeeded(first.ExternalIntentID))
	require.NoError(t, err)
	_, err = f.svc.Settle(ctx, Event{Kind: EventRefunded, IntentID: first.ExternalIntentID})
	require.NoError(t, err)

	_, second := f.open(t)
	res, err := f.svc.Settle(ctx, succeeded(second.ExternalIntentID))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Equal(t, settled.Enrollment.ID, res.Enrollment.ID)
	assert.Equal(t, models.PaymentStatusCompleted, res.Enrollment.PaymentStatus)
	require.NotNil(t, res.Enrollment.PaymentID)
	assert.Equal(t, second.ID, *res.Enrollment.PaymentID)
	assert.Equal(t, 1, testutil.Reload[models.Course](t, f.db, f.paid.ID).EnrolledStudents)
}

func TestSettle_NotifierFailureDoesNotUndoSettlement(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("queue unavailable")
	_, p := f.open(t)

	res, err := f.svc.Settle(context.Background(), succeeded(p.ExternalIntentID))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Equal(t, models.PaymentStatusCompleted, testutil.Reload[models.Payment](t, f.db, p.ID).Status)
}

func TestSettle_IgnoredAndInvalid(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Settle(context.Background(), Event{Kind: EventIgnored})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	_, err = f.svc.Settle(context.Background(), Event{Kind: EventSucceeded})
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))
}

func TestRecordWebhookEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := WebhookEventInput{Provider: "Stripe", ProviderEventID: "evt_1", EventType: StripeEventIntentSucceeded, PayloadJSON: `{"id":"evt_1"}`, SignatureValid: true}
	created, stored, err := f.svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "stripe", stored.Provider)

	created, again, err := f.svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)

	created, hashed, err := f.svc.RecordWebhookEvent(ctx, WebhookEventInput{Provider: "stripe", PayloadJSON: `{"x":1}`})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, hashed.ProviderEventID, "hash:")

	require.NoError(t, f.svc.MarkWebhookProcessed(ctx, stored.ID, OutcomeSettled, nil))
	var ev models.PaymentWebhookEvent
	require.NoError(t, f.db.First(&ev, stored.ID).Error)
	assert.NotNil(t, ev.ProcessedAt)
	assert.Equal(t, "settled", ev.Outcome)

	assert.Error(t, f.svc.MarkWebhookProcessed(ctx, 0, OutcomeSettled, nil))
	_, _, err = f.svc.RecordWebhookEvent(ctx, WebhookEventInput{})
	assert.Error(t, err)
}

func TestListAndGetPayments(t *testing.T) {
	f := newFixture(t)
	_, first := f.open(t)
	_, second := f.open(t)

	payments, err := f.svc.ListPayments(context.Background(), f.student.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, second.ID, payments[0].ID)
	assert.Equal(t, first.ID, payments[1].ID)
	require.NotNil(t, payments[0].Course)

	p, err := f.svc.GetPayment(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, p.TransactionID)

	_, err = f.svc.GetPayment(context.Background(), 4242)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestSettle_AmountIsTakenFromEvent(t *testing.T) {
	f := newFixture(t)
	_, p := f.open(t)

	ev := succeeded(p.ExternalIntentID)
	ev.AmountReceived = decimal.Zero
	res, err := f.svc.Settle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)

	assert.True(t, testutil.Reload[models.Payment](t, f.db, p.ID).Amount.IsZero())
	assert.True(t, testutil.Reload[models.Enrollment](t, f.db, res.Enrollment.ID).AmountPaid.IsZero())
}

func TestSettle_CurrencyMismatchIsRejected(t *testing.T) {
	f := newFixture(t)
	_, p := f.open(t)

	ev := succeeded(p.ExternalIntentID)
	ev.Currency = "eur"
	res, err := f.svc.Settle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Nil(t, res.Enrollment)

	assert.Equal(t, models.PaymentStatusPending, testutil.Reload[models.Payment](t, f.db, p.ID).Status)
	assert.Zero(t, countEnrollments(t, f.db, f.student.ID, f.paid.ID))
	assert.Empty(t, f.notifier.receipts)
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture(t)
	_, p := f.open(t)
	ctx := context.Background()

	f.provider.retrieve = func(intentID string) (*Event, error) {
		ev := succeeded(intentID)
		ev.ID = "retrieve:" + intentID
		return &ev, nil
	}

	res, err := f.svc.VerifyPayment(ctx, f.student.ID, p.ExternalIntentID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	require.NotNil(t, res.Enrollment)

	again, err := f.svc.VerifyPayment(ctx, f.student.ID, p.ExternalIntentID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayed, again.Outcome)
	assert.Equal(t, res.Enrollment.ID, again.Enrollment.ID)
	assert.Equal(t, int64(1), countEnrollments(t, f.db, f.student.ID, f.paid.ID))

	stranger := testutil.CreateUser(t, f.db, models.RoleStudent)
	_, err = f.svc.VerifyPayment(ctx, stranger.ID, p.ExternalIntentID)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	_, err = f.svc.VerifyPayment(ctx, f.student.ID, "pi_missing")
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	_, err = f.svc.VerifyPayment(ctx, f.student.ID, " ")
	assert.Equal(t, apperror.KindBadRequest, apperror.KindOf(err))
}

func TestVerifyPayment_ProviderStates(t *testing.T) {
	tests := []struct {
		name     string
		retrieve func(intentID string) (*Event, error)
		kind     apperror.Kind
	}{
		{
			name: "still processing",
			retrieve: func(intentID string) (*Event, error) {
				return &Event{Kind: EventIgnored, IntentID: intentID, Type: "payment_intent.processing"}, nil
			},
			kind: apperror.KindBadRequest,
		},
		{
			name: "provider down",
			retrieve: func(string) (*Event, error) {
				return nil, errors.New("connection refused")
			},
			kind: apperror.KindInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, p := f.open(t)
			f.provider.retrieve = tt.retrieve

			_, err := f.svc.VerifyPayment(context.Background(), f.student.ID, p.ExternalIntentID)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
			assert.Equal(t, models.PaymentStatusPending, testutil.Reload[models.Payment](t, f.db, p.ID).Status)
		})
	}
}

func TestNeedsProcessing(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		event *models.PaymentWebhookEvent
		want  bool
	}{
		{"nil", nil, false},
		{"never finished", &models.PaymentWebhookEvent{}, true},
		{"internal error", &models.PaymentWebhookEvent{ProcessedAt: &now, Outcome: string(OutcomeError)}, true},
		{"settled", &models.PaymentWebhookEvent{ProcessedAt: &now, Outcome: string(OutcomeSettled)}, false},
		{"payment failed", &models.PaymentWebhookEvent{ProcessedAt: &now, Outcome: string(OutcomeFailed)}, false},
		{"rejected", &models.PaymentWebhookEvent{ProcessedAt: &now, Outcome: string(OutcomeRejected)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsProcessing(tt.event))
		})
	}
}

func TestSettle_FailedRecomputeQueuesReconcile(t *testing.T) {
	rec := &recordingReconciler{}
	f := newFixture(t, WithAggregates(failingCounter{}), WithReconciler(rec))
	_, p := f.open(t)

	res, err := f.svc.Settle(context.Background(), succeeded(p.ExternalIntentID))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Equal(t, []uint{f.paid.ID}, rec.courses)
	assert.Equal(t, 0, testutil.Reload[models.Course](t, f.db, f.paid.ID).EnrolledStudents)
}
