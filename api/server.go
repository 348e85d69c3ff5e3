// Package api exposes the operator commands over HTTP. Every /api route
// except login requires a bearer token issued by /api/login.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pibot/metrics"
	"pibot/trader"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Options configures the listener and operator credentials.
type Options struct {
	Addr         string
	JWTSecret    string
	PasswordHash string // bcrypt
	TOTPSecret   string // empty disables the second factor
	TokenTTL     time.Duration
}

// Server is the gin based operator API.
type Server struct {
	opts     Options
	operator trader.Operator
	history  trader.History
	events   http.Handler // websocket hub
	metrics  *metrics.Metrics
	auth     *authenticator
	engine   *gin.Engine
	http     *http.Server
	log      zerolog.Logger
}

// New wires routes. history, events and m may be nil.
func New(opts Options, op trader.Operator, history trader.History, events http.Handler, m *metrics.Metrics, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}

	s := &Server{
		opts:     opts,
		operator: op,
		history:  history,
		events:   events,
		metrics:  m,
		auth: &authenticator{
			secret:       []byte(opts.JWTSecret),
			passwordHash: []byte(opts.PasswordHash),
			totpSecret:   opts.TOTPSecret,
			ttl:          opts.TokenTTL,
			now:          time.Now,
		},
		log: log.With().Str("component", "api").Logger(),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.POST("/api/login", s.handleLogin)

	authed := r.Group("/api", s.auth.middleware())
	authed.GET("/status", s.handleStatus)
	authed.GET("/position", s.handlePosition)
	authed.GET("/params", s.handleGetParams)
	authed.PUT("/params", s.handleSetParams)
	authed.POST("/buy", s.handleBuy)
	authed.POST("/sell", s.handleSell)
	authed.GET("/trades", s.handleTrades)
	if s.events != nil {
		authed.GET("/ws", gin.WrapH(s.events))
	}
	return r
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens in the background.
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Msg("🌐 [API] 服务启动")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("❌ [API] 服务异常退出")
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.auth.login(req)
	if err != nil {
		s.log.Warn().Str("remote", c.ClientIP()).Msg("🚫 [API] 登录失败")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c *gin.Context) {
	report, err := s.operator.Status(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handlePosition(c *gin.Context) {
	c.JSON(http.StatusOK, s.operator.Position())
}

func (s *Server) handleGetParams(c *gin.Context) {
	c.JSON(http.StatusOK, s.operator.Params())
}

type paramsRequest struct {
	OrderSizeFraction json.Number `json:"order_size_fraction" binding:"required"`
	ProfitThreshold   json.Number `json:"profit_threshold" binding:"required"`
	StopLossThreshold json.Number `json:"stop_loss_threshold" binding:"required"`
}

func (s *Server) handleSetParams(c *gin.Context) {
	var req paramsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := s.operator.SetParams(req.OrderSizeFraction.String(), req.ProfitThreshold.String(), req.StopLossThreshold.String())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleBuy(c *gin.Context) {
	pos, err := s.operator.ManualBuy(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handleSell(c *gin.Context) {
	trade, err := s.operator.ManualSell(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade journal disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}
	entries, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if entries == nil {
		entries = []trader.JournalEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// fail maps trader errors onto HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	if reason, ok := trader.RejectionReason(err); ok {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "reason": reason})
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, trader.ErrParameter):
		status = http.StatusBadRequest
	case errors.Is(err, trader.ErrDataUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, trader.ErrExecution):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
