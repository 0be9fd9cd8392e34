package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if h.deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.deps.Metrics.Handler()))
	}

	// fiber monitor dashboard, only with credentials configured
	if h.deps.MonitorUser != "" && h.deps.MonitorPassword != "" {
		app.Get("/monitor", basicauth.New(basicauth.Config{
			Users: map[string]string{
				h.deps.MonitorUser: h.deps.MonitorPassword,
			},
		}), monitor.New())
	}
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
