package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nomadaapp/nomada/app/controllers"
	"github.com/nomadaapp/nomada/internal/pkg/metrics"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the wired controllers and settings the routers need.
type Dependencies struct {
	Visits          *controllers.VisitController
	Subscribers     *controllers.SubscriberController
	Metrics         *metrics.Service
	SecureCookies   bool
	CORSOrigins     string
	MonitorUser     string
	MonitorPassword string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
