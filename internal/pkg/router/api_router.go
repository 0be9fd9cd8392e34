package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/nomadaapp/nomada/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	origins := h.deps.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	api := app.Group("/api",
		cors.New(cors.Config{
			AllowOrigins: origins,
			// Credentials only with an explicit origin list. With "*" the
			// profile cookie is never sent and pages must echo ProfileHeader.
			AllowCredentials: origins != "*",
			ExposeHeaders:    middleware.ProfileHeader,
		}),
		middleware.ProfileMiddleware(middleware.ProfileConfig{
			Secure:    h.deps.SecureCookies,
			CrossSite: origins != "*",
		}),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	visits := v1.Group("/visits")
	visits.Get("/", h.deps.Visits.HandleVisitStats)
	visits.Post("/", h.deps.Visits.HandleRegisterVisit)
	visits.Get("/total", h.deps.Visits.HandleVisitTotal)
	visits.Get("/stream", h.deps.Visits.HandleVisitStream)

	// The waitlist form is the only write endpoint open to the public.
	subscribers := v1.Group("/subscribers", limiter.New(limiter.Config{
		Max:        10,
		Expiration: time.Minute,
	}))
	subscribers.Post("/", h.deps.Subscribers.HandleJoin)
	subscribers.Delete("/:id", append(h.adminAuth(), h.deps.Subscribers.HandleDelete)...)
}

// adminAuth guards operator-only routes with the monitor credentials. Without
// credentials the routes stay open, as in local development.
func (h ApiRouter) adminAuth() []fiber.Handler {
	if h.deps.MonitorUser == "" || h.deps.MonitorPassword == "" {
		return nil
	}
	return []fiber.Handler{basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.deps.MonitorUser: h.deps.MonitorPassword,
		},
	})}
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
