package daemon

import (
	"context"
	"errors"
	"foldersync/internal/logger"
	"foldersync/internal/repository"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	echo     *echo.Echo
	daemon   *Daemon
	histRepo *repository.HistoryRepository
	port     int
	stopCh   chan struct{}
}

func NewServer(d *Daemon, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		daemon:   d,
		histRepo: d.history,
		port:     port,
		stopCh:   make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)
	s.echo.POST("/sync", s.handleSync)
	s.echo.POST("/cache/flush", s.handleFlush)
	s.echo.GET("/history", s.handleHistory)
}

func (s *Server) Start() {
	go func() {
		addr := "localhost:" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

// Stop drains the daemon and then shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	stopErr := s.daemon.Stop(ctx)
	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	return stopErr
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := map[string]any{
		"status": s.daemon.Snapshot(),
	}

	if s.histRepo != nil {
		if stats, err := s.histRepo.GetStats(); err == nil {
			resp["history"] = stats
		}
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleSync(c echo.Context) error {
	if !s.daemon.RequestSync() {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "already requested"})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) handleFlush(c echo.Context) error {
	if err := s.daemon.FlushCache(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "flushed"})
}

func (s *Server) handleHistory(c echo.Context) error {
	if s.histRepo == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "history is disabled"})
	}

	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 {
			n = parsed
		}
	}

	histories, err := s.histRepo.GetRecent(n)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, histories)
}
