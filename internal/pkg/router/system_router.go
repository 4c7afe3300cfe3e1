package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

// SystemRouter serves health, Prometheus and the fiber monitor.
type SystemRouter struct{}

func (SystemRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	monitorAuth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("MONITOR_USER", "admin"): env.GetEnv("MONITOR_PASSWORD", "admin"),
		},
	})
	app.Get("/monitor", monitorAuth, monitor.New(monitor.Config{Title: "CourseFox Monitor"}))
}

func NewSystemRouter() *SystemRouter {
	return &SystemRouter{}
}
