package controllers

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/aggregate"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/courses"
	"github.com/ManuelReschke/CourseFox/internal/pkg/security"
	"github.com/ManuelReschke/CourseFox/internal/pkg/statistics"
)

// Scheduler queues background reconciliation. It is optional.
type Scheduler interface {
	ScheduleReconcileAll() error
}

// Dependencies are the services the handlers call. They are installed once at
// startup by Setup.
type Dependencies struct {
	Repos            *repository.Factory
	Courses          *courses.Service
	Billing          *billing.Service
	Aggregates       *aggregate.Updater
	Tokens           *security.TokenManager
	Stats            *statistics.Service
	Scheduler        Scheduler
	WebhookSecret    string
	WebhookTolerance time.Duration
}

var deps Dependencies

var validate = validator.New()

// Setup installs the handler dependencies.
func Setup(d Dependencies) {
	if d.WebhookTolerance <= 0 {
		d.WebhookTolerance = 5 * time.Minute
	}
	deps = d
}

func respondError(c *fiber.Ctx, err error) error {
	return apperror.Respond(c, err)
}

// paramID parses a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	raw := strings.TrimSpace(c.Params(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.BadRequest("Invalid " + name)
	}
	return uint(id), nil
}

// bindJSON decodes the body into out and runs struct validation when validated
// is true.
func bindJSON(c *fiber.Ctx, out interface{}, validated bool) error {
	if err := c.BodyParser(out); err != nil {
		return apperror.BadRequest("Invalid request body")
	}
	if validated {
		if err := validate.Struct(out); err != nil {
			return apperror.Validation(err)
		}
	}
	return nil
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return def
	}
	return v
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
