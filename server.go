package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const eventsMaxBodyBytes int64 = 1 << 20 // 1 MiB

type eventDispatcher interface {
	Dispatch(ctx context.Context, body []byte, headers http.Header) DispatchResult
}

// EventsHandler exposes the Events API endpoint plus health probes.
type EventsHandler struct {
	dispatcher eventDispatcher
	now        func() time.Time
}

func NewEventsHandler(dispatcher eventDispatcher) *EventsHandler {
	return &EventsHandler{dispatcher: dispatcher, now: time.Now}
}

func (h *EventsHandler) Register(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.POST("/slack/events", h.Events)
	e.POST("/slack/interactive", h.Interactive)
}

func (h *EventsHandler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "SlackTable is running!",
		"status":  "healthy",
	})
}

func (h *EventsHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": float64(h.now().UnixNano()) / 1e9,
	})
}

// Interactive acknowledges interactive payloads; none are acted on yet.
func (h *EventsHandler) Interactive(c echo.Context) error {
	Info("Interactive component received")
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *EventsHandler) Events(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, eventsMaxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(body)) > eventsMaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", eventsMaxBodyBytes))
	}

	// Slack hangs up after 3s; processing continues and is bounded by HTTP_TIMEOUT on outbound calls.
	result := h.dispatcher.Dispatch(context.WithoutCancel(c.Request().Context()), body, c.Request().Header)
	return writeResult(c, result)
}

// writeResult maps a dispatch outcome to the HTTP reply. Only authentication and
// payload errors are surfaced; everything else is acknowledged so Slack does not
// redeliver.
func writeResult(c echo.Context, result DispatchResult) error {
	switch result.Outcome {
	case Rejected:
		if result.Reason == ReasonUnauthorized {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	case Failed:
		return c.JSON(http.StatusOK, map[string]string{
			"status": "failed",
			"reason": string(result.Reason),
		})
	}

	if result.URLVerification {
		return c.JSON(http.StatusOK, map[string]string{"challenge": result.Challenge})
	}
	if result.Reason == ReasonIgnored {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(addr string, handler *EventsHandler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return nil
		},
	}))
	handler.Register(e)
	return &Server{echo: e, addr: addr}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		Info("HTTP server listening on %s", s.addr)
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
