package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nomadaapp/nomada/app/controllers"
	"github.com/nomadaapp/nomada/app/repository"
	"github.com/nomadaapp/nomada/internal/pkg/cache"
	"github.com/nomadaapp/nomada/internal/pkg/database"
	"github.com/nomadaapp/nomada/internal/pkg/env"
	"github.com/nomadaapp/nomada/internal/pkg/logging"
	"github.com/nomadaapp/nomada/internal/pkg/mail"
	"github.com/nomadaapp/nomada/internal/pkg/metrics"
	"github.com/nomadaapp/nomada/internal/pkg/router"
	"github.com/nomadaapp/nomada/internal/pkg/statistics"
	"github.com/nomadaapp/nomada/internal/pkg/waitlist"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log := logging.GetLogger()
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context) error {
	envFile := env.SetupEnvFile()
	log := logging.SetupLogger()
	if envFile != "" {
		log.Info().Str("file", envFile).Msg("loaded environment file")
	}

	application, err := NewApplication(ctx, log)
	if err != nil {
		return err
	}
	defer application.Close()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("listening")
		return application.App.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return application.App.ShutdownWithContext(shutdownCtx)
	})
	return g.Wait()
}

// Application bundles the fiber app with the resources that need an
// orderly shutdown.
type Application struct {
	App      *fiber.App
	cancel   context.CancelFunc
	trackers *statistics.TrackerPool
	waitlist *waitlist.Service
}

func NewApplication(ctx context.Context, log zerolog.Logger) (*Application, error) {
	ctx, cancel := context.WithCancel(ctx)
	ok := false
	defer func() {
		if !ok {
			cancel()
		}
	}()

	subscribers, fallbackStorage, err := setupRepositories()
	if err != nil {
		return nil, err
	}

	cache.SetupCache()

	loc := time.Local
	if tz := env.GetEnv("VISITS_TIMEZONE", ""); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("VISITS_TIMEZONE: %w", err)
		}
	}

	m := metrics.NewService()
	agg := statistics.NewAggregator(statistics.Config{
		Remote:        statistics.NewRedisStore(cache.GetClient()),
		Fallback:      statistics.NewLocalStore(fallbackStorage, statistics.DefaultNamespace),
		Location:      loc,
		SessionWindow: env.GetEnvDuration("VISITS_SESSION_WINDOW", statistics.DefaultSessionWindow),
		PollInterval:  env.GetEnvDuration("VISITS_POLL_INTERVAL", statistics.DefaultPollInterval),
		Logger:        logging.Component("statistics"),
		Observer:      m,
	})

	if env.GetEnvBool("VISITS_SEED_SAMPLE", true) {
		seedCtx, seedCancel := context.WithTimeout(ctx, 10*time.Second)
		if _, err := agg.SeedSampleHistory(seedCtx); err != nil {
			log.Warn().Err(err).Msg("could not generate sample visit history")
		}
		seedCancel()
	}

	trackerOpts := statistics.TrackerOptions{
		RefreshInterval: env.GetEnvDuration("VISITS_REFRESH_INTERVAL", statistics.DefaultRefreshInterval),
		LoadTimeout:     env.GetEnvDuration("VISITS_LOAD_TIMEOUT", statistics.DefaultLoadTimeout),
		Logger:          logging.Component("tracker"),
	}
	trackers, err := statistics.NewTrackerPool(ctx,
		env.GetEnvInt("VISITS_TRACKER_CAPACITY", 10000),
		env.GetEnvDuration("VISITS_TRACKER_IDLE", statistics.DefaultSessionWindow),
		func(profile string) *statistics.Tracker {
			opts := trackerOpts
			opts.Logger = opts.Logger.With().Str("profile", profile).Logger()
			return statistics.NewTracker(agg.ForProfile(profile), opts)
		},
	)
	if err != nil {
		return nil, err
	}
	m.TrackTrackers(trackers.Size)

	svc := waitlist.New(waitlist.Config{
		Repository: subscribers,
		Mailer:     mail.NewMailerFromEnv(logging.Component("mail")),
		Logger:     logging.Component("waitlist"),
		Observer:   m,
		SiteURL:    env.GetEnv("APP_URL", "https://nomada-landing.vercel.app"),
	})

	app := fiber.New(fiber.Config{
		AppName:   "nomada",
		BodyLimit: 64 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if docs := findDocs(); docs != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: docs,
			Path:     "v1",
		}))
	}

	router.InstallRouter(app, router.Dependencies{
		Visits:          controllers.NewVisitController(ctx, agg, trackers, env.IsDev(), logging.Component("visits")).
			WithHeartbeat(nil, env.GetEnvDuration("VISITS_STREAM_HEARTBEAT", controllers.DefaultStreamHeartbeat)),
		Subscribers:     controllers.NewSubscriberController(svc),
		Metrics:         m,
		SecureCookies:   !env.IsDev(),
		CORSOrigins:     env.GetEnv("CORS_ORIGINS", "*"),
		MonitorUser:     env.GetEnv("MONITOR_USER", ""),
		MonitorPassword: env.GetEnv("MONITOR_PASSWORD", ""),
	})

	ok = true
	return &Application{
		App:      app,
		cancel:   cancel,
		trackers: trackers,
		waitlist: svc,
	}, nil
}

// setupRepositories picks MySQL when DB_NAME is set and in-memory storage
// otherwise.
func setupRepositories() (repository.SubscriberRepository, statistics.Storage, error) {
	if env.GetEnv("DB_NAME", "") == "" {
		l := logging.Component("database")
		l.Warn().Msg("DB_NAME not set, subscribers and fallback visits are kept in memory")
		return repository.NewMemorySubscriberRepository(), statistics.NewMemoryStorage(), nil
	}

	if err := database.SetupDatabase(); err != nil {
		return nil, nil, err
	}
	repository.InitializeFactory(database.GetDB())
	factory := repository.GetGlobalFactory()

	var storage statistics.Storage = factory.GetKeyValueRepository()
	if env.GetEnv("VISITS_FALLBACK_STORE", "database") == "memory" {
		storage = statistics.NewMemoryStorage()
	}
	return factory.GetSubscriberRepository(), storage, nil
}

func findDocs() string {
	for _, base := range []string{"./", "../../", "../../../"} {
		path := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Close stops the trackers, waits for pending welcome emails and releases
// the connections.
func (a *Application) Close() {
	log := logging.GetLogger()
	a.cancel()
	a.trackers.Close()
	a.waitlist.Wait()
	if err := cache.Close(); err != nil {
		log.Warn().Err(err).Msg("could not close redis client")
	}
	if err := database.Close(); err != nil {
		log.Warn().Err(err).Msg("could not close database")
	}
}
