package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/app/controllers"
	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/middleware"
	"github.com/ManuelReschke/CourseFox/internal/pkg/security"
)

type ApiRouter struct {
	tokens  *security.TokenManager
	users   middleware.UserLookup
	storage fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", newLimiter(h.storage), middleware.UserContextMiddleware(h.tokens, h.users))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	registerAuthRoutes(v1)
	registerCourseRoutes(v1)
	registerLectureRoutes(v1)
	registerReviewRoutes(v1)
	registerPaymentRoutes(v1)
	registerUserRoutes(v1)
	registerAdminRoutes(v1)
}

func registerAuthRoutes(v1 fiber.Router) {
	auth := v1.Group("/auth")
	auth.Post("/register", controllers.HandleRegister)
	auth.Post("/login", controllers.HandleLogin)
	auth.Get("/me", middleware.RequireAuth, controllers.HandleGetMe)
	auth.Put("/me", middleware.RequireAuth, controllers.HandleUpdateMe)
	auth.Put("/password", middleware.RequireAuth, controllers.HandleChangePassword)
}

func registerCourseRoutes(v1 fiber.Router) {
	authoring := middleware.RequireRole(models.RoleInstructor, models.RoleAdmin)

	courses := v1.Group("/courses")
	courses.Get("/", controllers.HandleListCourses)
	courses.Get("/instructor/mine", middleware.RequireAuth, authoring, controllers.HandleListMyCourses)
	courses.Get("/instructor/:id/courses", controllers.HandleListInstructorCourses)
	courses.Post("/", middleware.RequireAuth, authoring, controllers.HandleCreateCourse)
	courses.Get("/:id", controllers.HandleGetCourse)
	courses.Put("/:id", middleware.RequireAuth, authoring, controllers.HandleUpdateCourse)
	courses.Patch("/:id/publish", middleware.RequireAuth, authoring, controllers.HandlePublishCourse)
	courses.Delete("/:id", middleware.RequireAuth, authoring, controllers.HandleDeleteCourse)
	courses.Post("/:id/thumbnail", middleware.RequireAuth, authoring, controllers.HandleUploadThumbnail)
	courses.Post("/:id/videos", middleware.RequireAuth, authoring, controllers.HandleUploadVideo)

	courses.Get("/:id/lectures", controllers.HandleListLectures)
	courses.Post("/:id/lectures", middleware.RequireAuth, authoring, controllers.HandleCreateLecture)
	courses.Put("/:id/lectures/reorder", middleware.RequireAuth, authoring, controllers.HandleReorderLectures)

	courses.Get("/:id/reviews", controllers.HandleListReviews)
	courses.Post("/:id/reviews", middleware.RequireAuth, controllers.HandleCreateReview)

	v1.Get("/enrollments/mine", middleware.RequireAuth, controllers.HandleListMyEnrollments)
}

func registerLectureRoutes(v1 fiber.Router) {
	lectures := v1.Group("/lectures")
	lectures.Get("/:id", controllers.HandleGetLecture)
	lectures.Put("/:id", middleware.RequireAuth, controllers.HandleUpdateLecture)
	lectures.Delete("/:id", middleware.RequireAuth, controllers.HandleDeleteLecture)
	lectures.Post("/:id/progress", middleware.RequireAuth, controllers.HandleUpdateProgress)
}

func registerReviewRoutes(v1 fiber.Router) {
	v1.Delete("/reviews/:id", middleware.RequireAuth, controllers.HandleDeleteReview)
}

func registerPaymentRoutes(v1 fiber.Router) {
	payments := v1.Group("/payments")
	payments.Post("/webhook", controllers.HandleStripeWebhook)
	payments.Post("/checkout", middleware.RequireAuth, controllers.HandleCheckout)
	payments.Post("/enroll-free", middleware.RequireAuth, controllers.HandleEnrollFree)
	payments.Post("/verify", middleware.RequireAuth, controllers.HandleVerifyPayment)
	payments.Get("/mine", middleware.RequireAuth, controllers.HandleListMyPayments)
	payments.Get("/:id", middleware.RequireAuth, controllers.HandleGetPayment)
}

func registerUserRoutes(v1 fiber.Router) {
	users := v1.Group("/users", middleware.RequireAuth)
	users.Get("/:id", controllers.HandleGetUser)
	users.Get("/:id/enrollments", controllers.HandleListUserEnrollments)
	users.Get("/:id/stats", controllers.HandleInstructorStats)
}

func registerAdminRoutes(v1 fiber.Router) {
	admin := v1.Group("/admin", middleware.RequireAuth, middleware.RequireAdmin)
	admin.Patch("/reviews/:id/approval", controllers.HandleSetReviewApproval)
	admin.Post("/courses/:id/reconcile", controllers.HandleReconcileCourse)
	admin.Post("/reconcile", controllers.HandleReconcileAll)
	admin.Get("/stats", controllers.HandleAdminStats)
	admin.Get("/users", controllers.HandleAdminListUsers)
	admin.Put("/users/:id", controllers.HandleAdminUpdateUser)
	admin.Delete("/users/:id", controllers.HandleAdminDeleteUser)
}

// NewApiRouter builds the /api router. A nil storage keeps rate limit
// counters in memory.
func NewApiRouter(tokens *security.TokenManager, users middleware.UserLookup, storage fiber.Storage) *ApiRouter {
	return &ApiRouter{tokens: tokens, users: users, storage: storage}
}

// NewApiRouterFromCache builds the /api router with redis-backed rate limits
// when the cache is connected.
func NewApiRouterFromCache(tokens *security.TokenManager, users middleware.UserLookup) *ApiRouter {
	return NewApiRouter(tokens, users, newLimiterStorage())
}
