// Package httpapi is the ambient side-channel HTTP surface: process
// liveness and a snapshot of the hub's counters. It is not part of the
// WebTransport wire protocol and runs on its own TCP listener.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Stats is the subset of hub and capture state the status endpoint
// reports. It is a plain snapshot, not a live reference.
type Stats struct {
	ActiveSubscribers int    `json:"active_subscribers"`
	BlocksDropped     uint64 `json:"blocks_dropped"`
	QueueDepth        int    `json:"queue_depth"`
	SampleRate        int    `json:"sample_rate"`
	Channels          int    `json:"channels"`
	BlockSize         int    `json:"block_size"`
	Format            string `json:"format"`
}

// StatsFunc produces a fresh Stats snapshot on demand.
type StatsFunc func() Stats

// Server is the Echo application serving /health and /status.
type Server struct {
	echo  *echo.Echo
	stats StatsFunc
}

// New constructs the Echo app. stats is called once per /status request.
func New(stats StatsFunc) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, stats: stats}
	e.GET("/health", s.handleHealth)
	e.GET("/status", s.handleStatus)
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			if req.URL.Path == "/health" {
				slog.Debug("http request",
					"method", req.Method, "path", req.URL.Path,
					"status", c.Response().Status, "duration_ms", time.Since(start).Milliseconds())
			} else {
				slog.Info("http request",
					"method", req.Method, "path", req.URL.Path,
					"status", c.Response().Status, "duration_ms", time.Since(start).Milliseconds(),
					"remote", c.RealIP())
			}
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.stats())
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down http api", "component", "httpapi")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}
