// Package api exposes the watcher's dashboard data and operator actions as
// JSON over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"theta_watcher/internal/config"
	"theta_watcher/internal/logger"
	"theta_watcher/internal/metrics"
	"theta_watcher/internal/models"
	"theta_watcher/internal/watcher"
)

// Server wraps the HTTP server and its gin router.
type Server struct {
	server *http.Server
	w      *watcher.Watcher
}

// New builds the router. Gin runs in debug mode only at LOG_LEVEL=debug.
func New(addr, logLevel string, w *watcher.Watcher) *Server {
	if logLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{w: w}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logLevel == "debug"))
	s.routes(r)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/rows", s.getRows)
		api.GET("/panels", s.getPanels)
		api.GET("/autolog", s.getAutoLog)
		api.GET("/status", s.getStatus)
		api.GET("/settings", s.getSettings)
		api.PUT("/settings", s.putSettings)

		api.POST("/scan", s.postScan)
		api.GET("/candidates", s.getCandidates)
		api.POST("/candidates/:id", s.addCandidate)
		api.POST("/positions", s.addPosition)

		api.POST("/trades/:id/close", s.closeTrade(true))
		api.POST("/trades/:id/half", s.closeTrade(false))
		api.POST("/trades/:id/order", s.submitOrder)
		api.GET("/trades/:id/order", s.getOrder)
		api.DELETE("/trades/:id/order", s.cancelOrder)
	}
}

// Start serves in the background and shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go func() {
		logger.Infof("HTTP API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP API stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("HTTP API shutdown: %v", err)
		}
	}()
}

func (s *Server) getRows(c *gin.Context) {
	c.JSON(http.StatusOK, s.w.Rows())
}

func (s *Server) getPanels(c *gin.Context) {
	c.JSON(http.StatusOK, s.w.Panels())
}

func (s *Server) getAutoLog(c *gin.Context) {
	n := 5
	if q := c.Query("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
			return
		}
		n = v
	}
	lines := s.w.AutoLog(n)
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": lines})
}

func (s *Server) getStatus(c *gin.Context) {
	c.String(http.StatusOK, s.w.StatusText())
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.w.Settings())
}

func (s *Server) putSettings(c *gin.Context) {
	next := s.w.Settings()
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.w.UpdateSettings(next); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": next, "summary": next.Summary()})
}

func (s *Server) postScan(c *gin.Context) {
	res, err := s.w.Scan(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Candidates == nil {
		res.Candidates = []models.Candidate{}
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getCandidates(c *gin.Context) {
	out := s.w.Candidates()
	if out == nil {
		out = []models.Candidate{}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) addCandidate(c *gin.Context) {
	p, err := s.w.AddCandidate(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) addPosition(c *gin.Context) {
	var cand models.Candidate
	if err := c.ShouldBindJSON(&cand); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := s.w.AddPosition(cand)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) closeTrade(full bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.w.CloseTrade(c.Param("id"), full)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func (s *Server) submitOrder(c *gin.Context) {
	msg, err := s.w.SubmitOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondBrokerError(c, err, msg)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) getOrder(c *gin.Context) {
	status, err := s.w.OrderStatus(c.Param("id"))
	if err != nil {
		respondBrokerError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) cancelOrder(c *gin.Context) {
	msg, err := s.w.CancelOrder(c.Param("id"))
	if err != nil {
		respondBrokerError(c, err, msg)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// respondBrokerError reports failures that are not the caller's fault as 502.
func respondBrokerError(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error(), "message": msg})
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrPositionNotFound), errors.Is(err, models.ErrNoCandidate):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPositionClosed):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, models.ErrMissingContract):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger logs every request at debug level, otherwise only 4xx/5xx.
func requestLogger(logAll bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if !logAll && status < http.StatusBadRequest {
			return
		}
		log := logger.With("status", status, "method", c.Request.Method,
			"path", c.Request.URL.Path, "latency", time.Since(start), "ip", c.ClientIP())
		if status >= http.StatusInternalServerError {
			log.Errorw("http request")
		} else if status >= http.StatusBadRequest {
			log.Warnw("http request")
		} else {
			log.Infow("http request")
		}
	}
}
