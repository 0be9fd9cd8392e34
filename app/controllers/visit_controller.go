package controllers

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/nomadaapp/nomada/internal/pkg/middleware"
	"github.com/nomadaapp/nomada/internal/pkg/statistics"
)

// DefaultStreamHeartbeat is how often an idle visit stream writes a comment
// line to find clients that went away.
const DefaultStreamHeartbeat = 15 * time.Second

// VisitController serves the visit counter widget and the live total.
type VisitController struct {
	// ctx is the server lifetime, streams end when it is done.
	ctx        context.Context
	aggregator *statistics.Aggregator
	trackers   *statistics.TrackerPool
	devMode    bool
	log        zerolog.Logger
	clock      quartz.Clock
	heartbeat  time.Duration
}

func NewVisitController(ctx context.Context, aggregator *statistics.Aggregator, trackers *statistics.TrackerPool, devMode bool, log zerolog.Logger) *VisitController {
	return &VisitController{
		ctx:        ctx,
		aggregator: aggregator,
		trackers:   trackers,
		devMode:    devMode,
		log:        log,
		clock:      quartz.NewReal(),
		heartbeat:  DefaultStreamHeartbeat,
	}
}

// WithHeartbeat sets the clock and interval of the stream heartbeat.
func (vc *VisitController) WithHeartbeat(clock quartz.Clock, every time.Duration) *VisitController {
	if clock != nil {
		vc.clock = clock
	}
	if every > 0 {
		vc.heartbeat = every
	}
	return vc
}

// HandleVisitStats mounts the tracker of the calling profile, which counts
// the visit once per session, and returns the widget state.
func (vc *VisitController) HandleVisitStats(c *fiber.Ctx) error {
	profile := middleware.GetProfileID(c)
	st := vc.trackers.Acquire(profile).State()

	resp := fiber.Map{
		"weekly":  st.Weekly,
		"monthly": st.Monthly,
		"loading": st.Loading,
	}
	if vc.devMode {
		resp["dataSource"] = st.DataSource
		resp["registered"] = st.Registered
		if st.Error != "" {
			resp["error"] = st.Error
		}
		if !st.UpdatedAt.IsZero() {
			resp["updated_at"] = st.UpdatedAt.UTC().Format(time.RFC3339)
		}
	}
	return c.JSON(resp)
}

// HandleRegisterVisit counts a visit outside the widget lifecycle.
func (vc *VisitController) HandleRegisterVisit(c *fiber.Ctx) error {
	profile := middleware.GetProfileID(c)
	counted, err := vc.aggregator.ForProfile(profile).RegisterVisit(c.UserContext())
	if err != nil {
		// Visit accounting never fails the page.
		vc.log.Error().Err(err).Str("profile", profile).Msg("could not register visit")
	}
	return c.JSON(fiber.Map{"counted": counted})
}

func (vc *VisitController) HandleVisitTotal(c *fiber.Ctx) error {
	total, err := vc.aggregator.TotalVisits(c.UserContext())
	if err != nil {
		vc.log.Error().Err(err).Msg("could not read visit total")
	}
	resp := fiber.Map{"total": total.Value}
	if vc.devMode {
		resp["dataSource"] = total.Source
		updated, err := vc.aggregator.LastUpdated(c.UserContext())
		if err != nil {
			vc.log.Warn().Err(err).Msg("could not read visit last update")
		} else if !updated.IsZero() {
			resp["lastUpdated"] = updated.UTC().Format(time.RFC3339)
		}
	}
	return c.JSON(resp)
}

// HandleVisitStream pushes the total as server-sent events until the client
// goes away or the server shuts down.
func (vc *VisitController) HandleVisitStream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		vc.stream(vc.ctx, w)
	}))
	return nil
}

// stream writes total events to w until ctx is done or a write fails. The
// heartbeat makes a failed write show up even when no visit is counted.
func (vc *VisitController) stream(ctx context.Context, w *bufio.Writer) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	write := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, format, args...)
		if err := w.Flush(); err != nil {
			// Client disconnected.
			cancel()
		}
	}

	heartbeat := vc.clock.TickerFunc(ctx, vc.heartbeat, func() error {
		write(": ping\n\n")
		return nil
	}, "visits", "heartbeat")

	err := vc.aggregator.SubscribeTotal(ctx, func(total statistics.Count) {
		if vc.devMode {
			write("event: total\ndata: {\"total\":%d,\"dataSource\":%q}\n\n", total.Value, total.Source)
		} else {
			write("event: total\ndata: {\"total\":%d}\n\n", total.Value)
		}
	})
	if err != nil {
		vc.log.Warn().Err(err).Msg("visit stream ended")
	}
	cancel()
	_ = heartbeat.Wait()
}
