package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/controllers"
	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/aggregate"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/courses"
	"github.com/ManuelReschke/CourseFox/internal/pkg/security"
	"github.com/ManuelReschke/CourseFox/internal/pkg/statistics"
	"github.com/ManuelReschke/CourseFox/internal/pkg/testutil"
)

const webhookSecret = "whsec_test"

// stubProvider reports every intent it created as succeeded for the full amount.
type stubProvider struct {
	amounts map[string]decimal.Decimal
}

func (p *stubProvider) CreateIntent(_ context.Context, req billing.IntentRequest) (*billing.Intent, error) {
	id := "pi_" + req.IdempotencyKey
	p.amounts[id] = req.Amount
	return &billing.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (p *stubProvider) RetrieveIntent(_ context.Context, intentID string) (*billing.Event, error) {
	amount, ok := p.amounts[intentID]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	return &billing.Event{
		ID:             "retrieve:" + intentID,
		Type:           "payment_intent.succeeded",
		Kind:           billing.EventSucceeded,
		IntentID:       intentID,
		AmountReceived: amount,
		Currency:       "usd",
	}, nil
}

type stubScheduler struct{ calls int }

func (s *stubScheduler) ScheduleReconcileAll() error {
	s.calls++
	return nil
}

type apiFixture struct {
	app       *fiber.App
	db        *gorm.DB
	tokens    *security.TokenManager
	scheduler *stubScheduler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	t.Setenv("RATE_LIMIT_MAX", "0")

	db := testutil.NewDB(t)
	repos := repository.NewFactory(db)
	tokens := security.NewTokenManager("test-secret", time.Hour)
	scheduler := &stubScheduler{}

	controllers.Setup(controllers.Dependencies{
		Repos:         repos,
		Courses:       courses.NewService(db),
		Billing:       billing.NewServiceFromDB(db, billing.WithProvider(&stubProvider{amounts: map[string]decimal.Decimal{}})),
		Aggregates:    aggregate.NewUpdater(db),
		Tokens:        tokens,
		Stats:         statistics.NewServiceWithStore(db, nil),
		Scheduler:     scheduler,
		WebhookSecret: webhookSecret,
	})

	app := fiber.New(fiber.Config{ErrorHandler: apperror.ErrorHandler})
	InstallRouter(app, NewApiRouter(tokens, repos.GetUserRepository(), nil))
	return &apiFixture{app: app, db: db, tokens: tokens, scheduler: scheduler}
}

func (f *apiFixture) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := f.tokens.IssueToken(u.ID, u.Role)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return f.send(t, req)
}

func (f *apiFixture) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (f *apiFixture) webhook(t *testing.T, payload []byte, signature string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	return f.send(t, req)
}

func succeededEvent(eventID, intentID string, cents int64) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":"payment_intent.succeeded","data":{"object":{"id":%q,"amount":%d,"amount_received":%d,"currency":"usd","customer":"cus_1","charges":{"data":[{"receipt_url":"https://pay.example.com/r/1"}]}}}}`,
		eventID, intentID, cents, cents))
}

func TestSystemRoutes(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, "GET", "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	resp, err := f.app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = f.app.Test(httptest.NewRequest("GET", "/monitor", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRegisterLoginAndProfile(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, "POST", "/api/v1/auth/register", "", map[string]string{
		"name": "Grace", "email": "Grace@Example.com", "password": "secret123", "role": "admin",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "student", user["role"])
	assert.Equal(t, "grace@example.com", user["email"])
	assert.NotContains(t, user, "password")
	assert.Contains(t, user["profile_picture"], "gravatar.com/avatar/")

	status, body = f.do(t, "POST", "/api/v1/auth/register", "", map[string]string{
		"name": "Grace", "email": "grace@example.com", "password": "secret123",
	})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "conflict", body["error"])

	status, _ = f.do(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"email": "grace@example.com", "password": "wrong-password",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = f.do(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"email": "grace@example.com", "password": "secret123",
	})
	require.Equal(t, fiber.StatusOK, status)
	token := body["token"].(string)

	status, body = f.do(t, "PUT", "/api/v1/auth/me", token, map[string]string{"name": "Grace H", "bio": "Compilers"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "Grace H", body["user"].(map[string]interface{})["name"])

	status, body = f.do(t, "GET", "/api/v1/auth/me", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(0), stats["active_enrollments"])

	status, body = f.do(t, "PUT", "/api/v1/auth/password", token, map[string]string{
		"currentPassword": "nope", "newPassword": "another123",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Current password is incorrect", body["message"])

	status, _ = f.do(t, "PUT", "/api/v1/auth/password", token, map[string]string{
		"currentPassword": "secret123", "newPassword": "another123",
	})
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = f.do(t, "POST", "/api/v1/auth/login", "", map[string]string{
		"email": "grace@example.com", "password": "another123",
	})
	assert.Equal(t, fiber.StatusOK, status)
}

func TestCourseAuthoringPermissions(t *testing.T) {
	f := newAPIFixture(t)
	student := testutil.CreateUser(t, f.db, models.RoleStudent)
	instructor := testutil.CreateUser(t, f.db, models.RoleInstructor)
	other := testutil.CreateUser(t, f.db, models.RoleInstructor)

	input := map[string]interface{}{
		"title": "Go in Practice", "description": "Services and tooling",
		"category": "Programming", "level": "Intermediate", "price": "49.99",
	}

	status, _ := f.do(t, "POST", "/api/v1/courses", "", input)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body := f.do(t, "POST", "/api/v1/courses", f.token(t, student), input)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["error"])

	status, body = f.do(t, "POST", "/api/v1/courses", f.token(t, instructor), input)
	require.Equal(t, fiber.StatusCreated, status, body)
	course := body["course"].(map[string]interface{})
	id := uint(course["id"].(float64))
	assert.Equal(t, false, course["is_published"])

	// unpublished courses are hidden from everyone but the owner and admins
	status, _ = f.do(t, "GET", fmt.Sprintf("/api/v1/courses/%d", id), f.token(t, student), nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = f.do(t, "PUT", fmt.Sprintf("/api/v1/courses/%d", id), f.token(t, other), map[string]string{"title": "Hijacked"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = f.do(t, "PATCH", fmt.Sprintf("/api/v1/courses/%d/publish", id), f.token(t, instructor), nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["course"].(map[string]interface{})["is_published"])

	status, body = f.do(t, "GET", "/api/v1/courses?category=Programming", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["courses"], 1)
	assert.Equal(t, float64(1), body["pagination"].(map[string]interface{})["total"])

	status, _ = f.do(t, "GET", "/api/v1/courses?minPrice=abc", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = f.do(t, "GET", "/api/v1/courses/instructor/mine", f.token(t, instructor), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["courses"], 1)

	status, _ = f.do(t, "GET", "/api/v1/courses/abc", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestPurchaseWebhookAndLearningFlow(t *testing.T) {
	f := newAPIFixture(t)
	instructor := testutil.CreateUser(t, f.db, models.RoleInstructor)
	student := testutil.CreateUser(t, f.db, models.RoleStudent)
	stranger := testutil.CreateUser(t, f.db, models.RoleStudent)
	course := testutil.CreateCourse(t, f.db, instructor.ID, "19.99")
	first := testutil.CreateLecture(t, f.db, course.ID, 1, 10)
	testutil.CreateLecture(t, f.db, course.ID, 2, 20)
	studentToken := f.token(t, student)

	status, _ := f.do(t, "GET", fmt.Sprintf("/api/v1/lectures/%d", first.ID), studentToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := f.do(t, "POST", "/api/v1/payments/checkout", studentToken, map[string]uint{"courseId": course.ID})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotEmpty(t, body["clientSecret"])
	assert.Equal(t, "19.99", body["amount"])
	paymentID := uint(body["paymentId"].(float64))

	payment := testutil.Reload[models.Payment](t, f.db, paymentID)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)

	// bad signature: rejected and not recorded
	payload := succeededEvent("evt_1", payment.ExternalIntentID, 1999)
	status, _ = f.webhook(t, payload, billing.SignStripePayload(payload, "wrong-secret", time.Now()))
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = f.webhook(t, payload, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	var recorded int64
	require.NoError(t, f.db.Model(&models.PaymentWebhookEvent{}).Count(&recorded).Error)
	assert.Zero(t, recorded)

	signature := billing.SignStripePayload(payload, webhookSecret, time.Now())
	status, body = f.webhook(t, payload, signature)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "settled", body["outcome"])

	status, body = f.webhook(t, payload, signature)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	// same intent under a new event id replays without a second enrollment
	replay := succeededEvent("evt_2", payment.ExternalIntentID, 1999)
	status, body = f.webhook(t, replay, billing.SignStripePayload(replay, webhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "replayed", body["outcome"])

	var enrollments []models.Enrollment
	require.NoError(t, f.db.Where("user_id = ? AND course_id = ?", student.ID, course.ID).Find(&enrollments).Error)
	require.Len(t, enrollments, 1)
	assert.Equal(t, models.PaymentStatusCompleted, enrollments[0].PaymentStatus)
	assert.Equal(t, 1, testutil.Reload[models.Course](t, f.db, course.ID).EnrolledStudents)

	var event models.PaymentWebhookEvent
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_1").First(&event).Error)
	assert.Equal(t, "settled", event.Outcome)
	assert.True(t, event.SignatureValid)
	assert.NotNil(t, event.ProcessedAt)

	status, body = f.do(t, "GET", fmt.Sprintf("/api/v1/payments/%d", paymentID), studentToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "completed", body["payment"].(map[string]interface{})["status"])
	status, _ = f.do(t, "GET", fmt.Sprintf("/api/v1/payments/%d", paymentID), f.token(t, stranger), nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = f.do(t, "GET", "/api/v1/payments/mine", studentToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["payments"], 1)

	status, body = f.do(t, "GET", "/api/v1/enrollments/mine?status=completed", studentToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["enrollments"], 1)

	status, _ = f.do(t, "GET", fmt.Sprintf("/api/v1/lectures/%d", first.ID), studentToken, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = f.do(t, "POST", fmt.Sprintf("/api/v1/lectures/%d/progress", first.ID), studentToken, map[string]bool{"completed": true})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, float64(50), body["progress"])
	assert.Equal(t, []interface{}{float64(first.ID)}, body["completedLectures"])

	status, body = f.do(t, "POST", fmt.Sprintf("/api/v1/courses/%d/reviews", course.ID), studentToken, map[string]interface{}{"rating": 4, "comment": "Solid"})
	require.Equal(t, fiber.StatusCreated, status, body)
	review := body["review"].(map[string]interface{})
	assert.Equal(t, false, review["is_approved"])

	status, _ = f.do(t, "POST", fmt.Sprintf("/api/v1/courses/%d/reviews", course.ID), studentToken, map[string]interface{}{"rating": 5})
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = f.do(t, "POST", fmt.Sprintf("/api/v1/courses/%d/reviews", course.ID), f.token(t, stranger), map[string]interface{}{"rating": 5})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = f.do(t, "POST", "/api/v1/payments/checkout", studentToken, map[string]uint{"courseId": course.ID})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestWebhookUnknownIntentIsAcknowledged(t *testing.T) {
	f := newAPIFixture(t)

	payload := succeededEvent("evt_missing", "pi_unknown", 500)
	status, body := f.webhook(t, payload, billing.SignStripePayload(payload, webhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["settled"])

	var event models.PaymentWebhookEvent
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_missing").First(&event).Error)
	assert.NotEmpty(t, event.ProcessingError)
	assert.NotNil(t, event.ProcessedAt)

	ignored := []byte(`{"id":"evt_other","type":"customer.created","data":{"object":{}}}`)
	status, body = f.webhook(t, ignored, billing.SignStripePayload(ignored, webhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ignored", body["outcome"])
}

func TestWebhookRedeliverySettlesAfterInternalError(t *testing.T) {
	f := newAPIFixture(t)
	instructor := testutil.CreateUser(t, f.db, models.RoleInstructor)
	student := testutil.CreateUser(t, f.db, models.RoleStudent)
	course := testutil.CreateCourse(t, f.db, instructor.ID, "19.99")

	status, body := f.do(t, "POST", "/api/v1/payments/checkout", f.token(t, student), map[string]uint{"courseId": course.ID})
	require.Equal(t, fiber.StatusOK, status, body)
	payment := testutil.Reload[models.Payment](t, f.db, uint(body["paymentId"].(float64)))

	payload := succeededEvent("evt_retry", payment.ExternalIntentID, 1999)
	signature := billing.SignStripePayload(payload, webhookSecret, time.Now())

	// the enrollment write fails, so the whole settlement rolls back
	require.NoError(t, f.db.Migrator().RenameTable("enrollments", "enrollments_offline"))
	status, body = f.webhook(t, payload, signature)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["settled"])
	require.NoError(t, f.db.Migrator().RenameTable("enrollments_offline", "enrollments"))

	var event models.PaymentWebhookEvent
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_retry").First(&event).Error)
	assert.Equal(t, string(billing.OutcomeError), event.Outcome)
	assert.NotEmpty(t, event.ProcessingError)
	assert.Equal(t, models.PaymentStatusPending, testutil.Reload[models.Payment](t, f.db, payment.ID).Status)

	status, body = f.webhook(t, payload, signature)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "settled", body["outcome"])
	assert.Equal(t, models.PaymentStatusCompleted, testutil.Reload[models.Payment](t, f.db, payment.ID).Status)

	var enrollments int64
	require.NoError(t, f.db.Model(&models.Enrollment{}).Where("user_id = ? AND course_id = ?", student.ID, course.ID).Count(&enrollments).Error)
	assert.Equal(t, int64(1), enrollments)

	require.NoError(t, f.db.First(&event, event.ID).Error)
	assert.Equal(t, "settled", event.Outcome)
	assert.Empty(t, event.ProcessingError)

	status, body = f.webhook(t, payload, signature)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])
}

func TestVerifyPaymentWithoutWebhook(t *testing.T) {
	f := newAPIFixture(t)
	instructor := testutil.CreateUser(t, f.db, models.RoleInstructor)
	student := testutil.CreateUser(t, f.db, models.RoleStudent)
	stranger := testutil.CreateUser(t, f.db, models.RoleStudent)
	course := testutil.CreateCourse(t, f.db, instructor.ID, "19.99")
	token := f.token(t, student)

	status, body := f.do(t, "POST", "/api/v1/payments/checkout", token, map[string]uint{"courseId": course.ID})
	require.Equal(t, fiber.StatusOK, status, body)
	payment := testutil.Reload[models.Payment](t, f.db, uint(body["paymentId"].(float64)))
	verify := map[string]string{"paymentIntentId": payment.ExternalIntentID}

	status, _ = f.do(t, "POST", "/api/v1/payments/verify", "", verify)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = f.do(t, "POST", "/api/v1/payments/verify", f.token(t, stranger), verify)
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = f.do(t, "POST", "/api/v1/payments/verify", token, map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = f.do(t, "POST", "/api/v1/payments/verify", token, verify)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "settled", body["outcome"])
	assert.Equal(t, "completed", body["payment"].(map[string]interface{})["status"])
	assert.Equal(t, "completed", body["enrollment"].(map[string]interface{})["payment_status"])

	// the webhook arriving later replays onto the same enrollment
	payload := succeededEvent("evt_late", payment.ExternalIntentID, 1999)
	status, body = f.webhook(t, payload, billing.SignStripePayload(payload, webhookSecret, time.Now()))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "replayed", body["outcome"])
	assert.Equal(t, 1, testutil.Reload[models.Course](t, f.db, course.ID).EnrolledStudents)
}

func TestFreeEnrollment(t *testing.T) {
	f := newAPIFixture(t)
	instructor := testutil.CreateUser(t, f.db, models.RoleInstructor)
	student := testutil.CreateUser(t, f.db, models.RoleStudent)
	free := testutil.CreateCourse(t, f.db, instructor.ID, "0")
	paid := testutil.CreateCourse(t, f.db, instructor.ID, "10.00")
	token := f.token(t, student)

	status, body := f.do(t, "POST", "/api/v1/payments/enroll-free", token, map[string]uint{"courseId": free.ID})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "completed", body["enrollment"].(map[string]interface{})["payment_status"])

	status, _ = f.do(t, "POST", "/api/v1/payments/enroll-free", token, map[string]uint{"courseId": free.ID})
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = f.do(t, "POST", "/api/v1/payments/enroll-free", token, map[string]uint{"courseId": paid.ID})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = f.do(t, "POST", "/api/v1/payments/enroll-free", token, map[string]uint{})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestLectureManagementAndReorder(t *testing.T) {
	f := newAPIFixture(t)
	instructor := testutil.CreateUser(t, f.db, models.RoleInstructor)
	course := testutil.CreateCourse(t, f.db, instructor.ID, "10.00")
	a := testutil.CreateLecture(t, f.db, course.ID, 1, 5)
	b := testutil.CreateLecture(t, f.db, course.ID, 2, 5)
	token := f.token(t, instructor)

	status, body := f.do(t, "POST", fmt.Sprintf("/api/v1/courses/%d/lectures", course.ID), token, map[string]interface{}{
		"title": "Wrap up", "video_url": "https://cdn.example.com/c.mp4", "duration": 7.5,
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, float64(3), body["lecture"].(map[string]interface{})["position"])
	assert.InDelta(t, 17.5, testutil.Reload[models.Course](t, f.db, course.ID).TotalDuration, 0.001)

	status, body = f.do(t, "PUT", fmt.Sprintf("/api/v1/courses/%d/lectures/reorder", course.ID), token, map[string]interface{}{
		"lectures": []map[string]uint{{"id": a.ID, "position": 2}, {"id": b.ID, "position": 1}},
	})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, 2, testutil.Reload[models.Lecture](t, f.db, a.ID).Position)
	assert.Equal(t, 1, testutil.Reload[models.Lecture](t, f.db, b.ID).Position)

	status, _ = f.do(t, "PUT", fmt.Sprintf("/api/v1/courses/%d/lectures/reorder", course.ID), token, map[string]interface{}{"lectures": []int{}})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = f.do(t, "DELETE", fmt.Sprintf("/api/v1/lectures/%d", a.ID), token, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.InDelta(t, 12.5, testutil.Reload[models.Course](t, f.db, course.ID).TotalDuration, 0.001)

	// anonymous visitors see the outline without video links
	status, body = f.do(t, "GET", fmt.Sprintf("/api/v1/courses/%d/lectures", course.ID), "", nil)
	require.Equal(t, fiber.StatusOK, status)
	lectures := body["lectures"].([]interface{})
	require.Len(t, lectures, 2)
	assert.Empty(t, lectures[0].(map[string]interface{})["video_url"])
}

func TestAdminRoutes(t *testing.T) {
	f := newAPIFixture(t)
	admin := testutil.CreateUser(t, f.db, models.RoleAdmin)
	instructor := testutil.CreateUser(t, f.db, models.RoleInstructor)
	student := testutil.CreateUser(t, f.db, models.RoleStudent)
	course := testutil.CreateCourse(t, f.db, instructor.ID, "10.00")
	testutil.CreateLecture(t, f.db, course.ID, 1, 12.5)
	testutil.CreateEnrollment(t, f.db, student.ID, course.ID, models.PaymentStatusCompleted)
	review := &models.Review{UserID: student.ID, CourseID: course.ID, Rating: 5}
	require.NoError(t, f.db.Create(review).Error)
	require.NoError(t, f.db.Model(&models.Course{}).Where("id = ?", course.ID).
		Updates(map[string]interface{}{"enrolled_students": 40, "total_duration": 0}).Error)

	path := fmt.Sprintf("/api/v1/admin/courses/%d/reconcile", course.ID)
	status, _ := f.do(t, "POST", path, f.token(t, student), nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	adminToken := f.token(t, admin)
	status, body := f.do(t, "POST", path, adminToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	reconciled := testutil.Reload[models.Course](t, f.db, course.ID)
	assert.Equal(t, 1, reconciled.EnrolledStudents)
	assert.InDelta(t, 12.5, reconciled.TotalDuration, 0.001)
	assert.Equal(t, 0, reconciled.TotalRatings)

	status, _ = f.do(t, "POST", "/api/v1/admin/courses/9999/reconcile", adminToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = f.do(t, "PATCH", fmt.Sprintf("/api/v1/admin/reviews/%d/approval", review.ID), adminToken, map[string]bool{"isApproved": true})
	require.Equal(t, fiber.StatusOK, status, body)
	approved := testutil.Reload[models.Course](t, f.db, course.ID)
	assert.Equal(t, 5, approved.Rating)
	assert.Equal(t, 1, approved.TotalRatings)

	status, _ = f.do(t, "PATCH", fmt.Sprintf("/api/v1/admin/reviews/%d/approval", review.ID), adminToken, map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = f.do(t, "GET", "/api/v1/admin/stats", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(3), stats["totalUsers"])
	assert.Equal(t, float64(1), stats["activeEnrollments"])

	status, _ = f.do(t, "POST", "/api/v1/admin/reconcile", adminToken, nil)
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, 1, f.scheduler.calls)
}

func TestAdminUserManagement(t *testing.T) {
	f := newAPIFixture(t)
	admin := testutil.CreateUser(t, f.db, models.RoleAdmin)
	instructor := testutil.CreateUser(t, f.db, models.RoleInstructor)
	student := testutil.CreateUser(t, f.db, models.RoleStudent)
	require.NoError(t, f.db.Model(student).Update("name", "Linus Student").Error)
	course := testutil.CreateCourse(t, f.db, instructor.ID, "10.00")
	testutil.CreateEnrollment(t, f.db, student.ID, course.ID, models.PaymentStatusCompleted)
	adminToken := f.token(t, admin)
	studentToken := f.token(t, student)

	status, _ := f.do(t, "GET", "/api/v1/admin/users", studentToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := f.do(t, "GET", "/api/v1/admin/users?role=student&search=linus", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	users := body["users"].([]interface{})
	require.Len(t, users, 1)
	assert.Equal(t, float64(student.ID), users[0].(map[string]interface{})["id"])
	assert.Equal(t, float64(1), body["pagination"].(map[string]interface{})["total"])

	status, body = f.do(t, "GET", "/api/v1/admin/users?limit=2&page=2", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["users"].([]interface{}), 1)
	assert.Equal(t, float64(2), body["pagination"].(map[string]interface{})["pages"])

	status, _ = f.do(t, "GET", "/api/v1/admin/users?role=teacher", adminToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	self := fmt.Sprintf("/api/v1/admin/users/%d", admin.ID)
	status, body = f.do(t, "PUT", self, adminToken, map[string]string{"role": "student"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "You cannot change your own role", body["message"])
	status, _ = f.do(t, "PUT", self, adminToken, map[string]bool{"isActive": false})
	assert.Equal(t, fiber.StatusForbidden, status)
	status, body = f.do(t, "DELETE", self, adminToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "You cannot delete your own account", body["message"])

	target := fmt.Sprintf("/api/v1/admin/users/%d", student.ID)
	status, _ = f.do(t, "PUT", target, adminToken, map[string]string{"role": "superuser"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = f.do(t, "PUT", target, adminToken, map[string]string{"name": "x"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = f.do(t, "PUT", "/api/v1/admin/users/9999", adminToken, map[string]bool{"isActive": true})
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = f.do(t, "PUT", target, adminToken, map[string]interface{}{"role": "Instructor", "isActive": false})
	require.Equal(t, fiber.StatusOK, status, body)
	updated := body["user"].(map[string]interface{})
	assert.Equal(t, "instructor", updated["role"])
	assert.Equal(t, false, updated["is_active"])

	status, body = f.do(t, "GET", "/api/v1/auth/me", studentToken, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Account is deactivated", body["message"])

	status, _ = f.do(t, "PUT", target, adminToken, map[string]bool{"isActive": true})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = f.do(t, "GET", "/api/v1/auth/me", studentToken, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = f.do(t, "DELETE", target, adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = f.do(t, "DELETE", target, adminToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = f.do(t, "GET", "/api/v1/auth/me", studentToken, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	var kept int64
	require.NoError(t, f.db.Model(&models.Enrollment{}).Where("user_id = ?", student.ID).Count(&kept).Error)
	assert.Equal(t, int64(1), kept)
}

func TestUserRoutes(t *testing.T) {
	f := newAPIFixture(t)
	admin := testutil.CreateUser(t, f.db, models.RoleAdmin)
	instructor := testutil.CreateUser(t, f.db, models.RoleInstructor)
	student := testutil.CreateUser(t, f.db, models.RoleStudent)
	stranger := testutil.CreateUser(t, f.db, models.RoleStudent)
	course := testutil.CreateCourse(t, f.db, instructor.ID, "10.00")
	draft := testutil.CreateCourse(t, f.db, instructor.ID, "15.00")
	require.NoError(t, f.db.Model(draft).Update("is_published", false).Error)
	testutil.CreateEnrollment(t, f.db, student.ID, course.ID, models.PaymentStatusCompleted)
	require.NoError(t, f.db.Model(course).Update("enrolled_students", 1).Error)

	studentPath := fmt.Sprintf("/api/v1/users/%d", student.ID)
	status, _ := f.do(t, "GET", studentPath, "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = f.do(t, "GET", studentPath, f.token(t, stranger), nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := f.do(t, "GET", studentPath, f.token(t, student), nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, float64(1), body["stats"].(map[string]interface{})["active_enrollments"])

	status, body = f.do(t, "GET", studentPath+"/enrollments", f.token(t, admin), nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["enrollments"].([]interface{}), 1)
	status, _ = f.do(t, "GET", "/api/v1/users/9999/enrollments", f.token(t, admin), nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = f.do(t, "GET", studentPath+"/stats", f.token(t, admin), nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	instructorStats := fmt.Sprintf("/api/v1/users/%d/stats", instructor.ID)
	status, _ = f.do(t, "GET", instructorStats, f.token(t, student), nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	status, body = f.do(t, "GET", instructorStats, f.token(t, instructor), nil)
	require.Equal(t, fiber.StatusOK, status, body)
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["totalCourses"])
	assert.Equal(t, float64(1), stats["publishedCourses"])
	assert.Equal(t, float64(1), stats["totalEnrollments"])

	status, body = f.do(t, "GET", fmt.Sprintf("/api/v1/courses/instructor/%d/courses", instructor.ID), "", nil)
	require.Equal(t, fiber.StatusOK, status, body)
	listed := body["courses"].([]interface{})
	require.Len(t, listed, 1)
	assert.Equal(t, float64(course.ID), listed[0].(map[string]interface{})["id"])

	status, _ = f.do(t, "GET", "/api/v1/courses/instructor/abc/courses", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
