package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadaapp/nomada/internal/pkg/middleware"
	"github.com/nomadaapp/nomada/internal/pkg/statistics"
)

type visitTestEnv struct {
	app     *fiber.App
	agg     *statistics.Aggregator
	storage *statistics.MemoryStorage
}

func newVisitTestEnv(t *testing.T, ctx context.Context, devMode bool) *visitTestEnv {
	t.Helper()
	storage := statistics.NewMemoryStorage()
	agg := statistics.NewAggregator(statistics.Config{
		Fallback: statistics.NewLocalStore(storage, statistics.DefaultNamespace),
		Location: time.UTC,
		Logger:   zerolog.Nop(),
	})
	pool, err := statistics.NewTrackerPool(ctx, 100, time.Hour, func(profile string) *statistics.Tracker {
		return statistics.NewTracker(agg.ForProfile(profile), statistics.TrackerOptions{Logger: zerolog.Nop()})
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	vc := NewVisitController(ctx, agg, pool, devMode, zerolog.Nop())
	app := fiber.New()
	app.Use(middleware.ProfileMiddleware())
	app.Get("/visits", vc.HandleVisitStats)
	app.Post("/visits", vc.HandleRegisterVisit)
	app.Get("/visits/total", vc.HandleVisitTotal)
	app.Get("/visits/stream", vc.HandleVisitStream)

	return &visitTestEnv{app: app, agg: agg, storage: storage}
}

func doJSON(t *testing.T, app *fiber.App, method, target, cookie string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if cookie != "" {
		req.Header.Set("Cookie", middleware.ProfileCookie+"="+cookie)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp, out
}

func profileCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.ProfileCookie {
			return c.Value
		}
	}
	return ""
}

func TestHandleVisitStats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newVisitTestEnv(t, ctx, false)

	resp, _ := doJSON(t, env.app, "GET", "/visits", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	cookie := profileCookie(resp)
	require.NotEmpty(t, cookie)

	var body map[string]any
	require.Eventually(t, func() bool {
		_, body = doJSON(t, env.app, "GET", "/visits", cookie)
		return body["loading"] == false
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1.0, body["weekly"])
	assert.Equal(t, 1.0, body["monthly"])
	assert.NotContains(t, body, "dataSource")

	total, err := env.agg.TotalVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total.Value)
}

func TestHandleVisitStatsDevMode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newVisitTestEnv(t, ctx, true)
	cookie := "6f1f1c1e-8f57-4c55-9a43-1a4c1b3f9e10"

	var body map[string]any
	require.Eventually(t, func() bool {
		_, body = doJSON(t, env.app, "GET", "/visits", cookie)
		return body["loading"] == false
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "fallback", body["dataSource"])
	assert.Equal(t, true, body["registered"])
	assert.Contains(t, body, "updated_at")
}

func TestHandleRegisterVisit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newVisitTestEnv(t, ctx, false)
	cookie := "0b6f3f5e-3c1a-4a57-8f4c-5a1b2c3d4e5f"

	_, body := doJSON(t, env.app, "POST", "/visits", cookie)
	assert.Equal(t, true, body["counted"])

	// Same profile within the session window.
	_, body = doJSON(t, env.app, "POST", "/visits", cookie)
	assert.Equal(t, false, body["counted"])

	// Another browser is another visit.
	_, body = doJSON(t, env.app, "POST", "/visits", "")
	assert.Equal(t, true, body["counted"])

	_, body = doJSON(t, env.app, "GET", "/visits/total", cookie)
	assert.Equal(t, 2.0, body["total"])
	assert.NotContains(t, body, "dataSource")
}

func TestHandleVisitTotalDevMode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newVisitTestEnv(t, ctx, true)

	_, body := doJSON(t, env.app, "GET", "/visits/total", "")
	assert.Equal(t, 0.0, body["total"])
	assert.Equal(t, "fallback", body["dataSource"])
	assert.NotContains(t, body, "lastUpdated")

	_, err := env.agg.ForProfile("p1").RegisterVisit(ctx)
	require.NoError(t, err)

	_, body = doJSON(t, env.app, "GET", "/visits/total", "")
	assert.Equal(t, 1.0, body["total"])
	require.Contains(t, body, "lastUpdated")
	_, err = time.Parse(time.RFC3339, body["lastUpdated"].(string))
	assert.NoError(t, err)
}

func TestHandleVisitStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newVisitTestEnv(t, ctx, false)

	_, err := env.agg.ForProfile("p1").RegisterVisit(ctx)
	require.NoError(t, err)

	// Server shutdown ends the stream.
	time.AfterFunc(200*time.Millisecond, cancel)

	resp, err := env.app.Test(httptest.NewRequest("GET", "/visits/stream", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "event: total\ndata: {\"total\":1}\n\n"), string(body))
}

// closingWriter stands in for a client connection that can go away.
type closingWriter struct {
	mu     sync.Mutex
	buf    strings.Builder
	closed bool
}

func (w *closingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *closingWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func (w *closingWriter) written() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestVisitStreamEndsWhenClientGoesAway(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	agg := statistics.NewAggregator(statistics.Config{Location: time.UTC, Logger: zerolog.Nop()})
	vc := NewVisitController(ctx, agg, nil, false, zerolog.Nop()).WithHeartbeat(mClock, time.Second)

	trap := mClock.Trap().TickerFunc("visits", "heartbeat")
	defer trap.Close()

	conn := &closingWriter{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		vc.stream(ctx, bufio.NewWriter(conn))
	}()

	trap.MustWait(ctx).MustRelease(ctx)
	require.Eventually(t, func() bool {
		return strings.Contains(conn.written(), "event: total\ndata: {\"total\":0}\n\n")
	}, 5*time.Second, 10*time.Millisecond)

	mClock.Advance(time.Second).MustWait(ctx)
	assert.Contains(t, conn.written(), ": ping\n\n")

	// No visit is counted, only the heartbeat notices the broken connection.
	conn.close()
	mClock.Advance(time.Second).MustWait(ctx)

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("stream kept running after the client went away")
	}
}
