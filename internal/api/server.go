// Package api exposes a small authenticated HTTP server for monitoring and
// operating the bot.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bibot/config"
	"bibot/internal/trading"
)

// Server is the HTTP status API. All endpoints except /health and /api/login
// require a bearer token obtained from /api/login.
type Server struct {
	cfg          config.APIConfig
	executor     *trading.TradingExecutor
	positions    *trading.PositionManager
	tokens       *TokenManager
	passwordHash string
	logger       zerolog.Logger
	httpServer   *http.Server
}

// NewServer builds the status API server
func NewServer(cfg config.APIConfig, executor *trading.TradingExecutor, positions *trading.PositionManager, logger zerolog.Logger) (*Server, error) {
	passwordHash, err := hashPassword(cfg.Password)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	s := &Server{
		cfg:          cfg,
		executor:     executor,
		positions:    positions,
		tokens:       NewTokenManager(cfg.JWTSecret, ttl),
		passwordHash: passwordHash,
		logger:       logger.With().Str("component", "APIServer").Logger(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/health", s.handleHealth)
	router.POST("/api/login", s.handleLogin)

	authorized := router.Group("/api", s.tokens.Middleware())
	authorized.GET("/account", s.handleAccount)
	authorized.GET("/positions", s.handlePositions)
	authorized.POST("/cleanup", s.handleCleanup)

	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
	return s, nil
}

// Start runs the server until Shutdown is called. Blocks; run in a goroutine.
func (s *Server) Start() {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("Status API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error().Err(err).Msg("Status API server failed")
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"positions": s.positions.GetPositionCount(),
	})
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	if !checkPassword(s.passwordHash, req.Password) {
		s.logger.Warn().Str("remote", c.ClientIP()).Msg("Failed login attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := s.tokens.Generate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(time.Duration(s.cfg.TokenTTLMinutes) * time.Minute / time.Second),
	})
}

func (s *Server) handleAccount(c *gin.Context) {
	info, err := s.executor.GetAccountInfo()
	if err != nil {
		s.logger.Error().Err(err).Msg("Account info fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "exchange unavailable"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"positions": s.positions.Positions(),
		"count":     s.positions.GetPositionCount(),
	})
}

func (s *Server) handleCleanup(c *gin.Context) {
	if err := s.positions.CleanupAllPositions(); err != nil {
		s.logger.Error().Err(err).Msg("Cleanup via API failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleaned"})
}
