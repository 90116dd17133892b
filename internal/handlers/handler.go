package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/lifecounter/internal/apperr"
	"github.com/mossy-p/lifecounter/internal/damage"
	"github.com/mossy-p/lifecounter/internal/jobs"
	"github.com/mossy-p/lifecounter/internal/live"
	"github.com/mossy-p/lifecounter/internal/lobby"
	"github.com/mossy-p/lifecounter/internal/middleware"
	"github.com/mossy-p/lifecounter/internal/ratelimit"
	"github.com/mossy-p/lifecounter/internal/store"
	"github.com/sirupsen/logrus"
)

// Options tune the gateway.
type Options struct {
	JWTSecret        string
	AllowedOrigins   []string
	DebounceInterval time.Duration
	RequestTimeout   time.Duration
	CreateTimeout    time.Duration
}

// Handler serves the lobby API.
type Handler struct {
	lobbies *lobby.Manager
	damage  *damage.Protocol
	store   store.Store
	limiter ratelimit.Backend
	jobs    *jobs.Runner
	hub     *live.Hub
	logger  *logrus.Logger
	opts    Options
}

func New(lobbies *lobby.Manager, dmg *damage.Protocol, s store.Store, limiter ratelimit.Backend, runner *jobs.Runner, hub *live.Hub, logger *logrus.Logger, opts Options) *Handler {
	if opts.DebounceInterval <= 0 {
		opts.DebounceInterval = 50 * time.Millisecond
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.CreateTimeout <= 0 {
		opts.CreateTimeout = 10 * time.Second
	}
	return &Handler{
		lobbies: lobbies,
		damage:  dmg,
		store:   s,
		limiter: limiter,
		jobs:    runner,
		hub:     hub,
		logger:  logger,
		opts:    opts,
	}
}

// Router builds the gin engine with every route.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(h.logger))

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(h.opts.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middleware.JWTAuth(h.opts.JWTSecret)
	timeout := middleware.Timeout(h.opts.RequestTimeout)

	apiGroup := router.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", Login(h.opts.JWTSecret))

		apiGroup.POST("/lobbies", auth, middleware.Timeout(h.opts.CreateTimeout), h.CreateLobby)
		apiGroup.POST("/lobbies/join", auth, timeout, h.JoinLobby)

		lobbyGroup := apiGroup.Group("/lobbies/:lobbyId", auth, timeout, h.lobbyParam)
		{
			lobbyGroup.GET("/players", h.GetPlayers)
			lobbyGroup.POST("/players", h.AddPlayer)
			lobbyGroup.POST("/touch", h.TouchLobby)
			lobbyGroup.POST("/timer", h.StartTimer)

			player := lobbyGroup.Group("/players/:playerId", h.playerParam)
			{
				player.PATCH("", h.UpdatePlayer)
				player.DELETE("", h.DeletePlayer)
				player.POST("/increment", h.IncrementField)
				player.POST("/stage", h.StageDamage)
				player.POST("/commander", h.StageCommanderDamage)
				player.PUT("/commander", h.UpdateCommanderDamage)
				player.POST("/apply", h.ApplyDamage)
				player.POST("/abort", h.AbortDamage)
				player.PUT("/settings", h.UpdateSettings)
			}
		}

		maintenance := apiGroup.Group("/maintenance", auth, timeout)
		{
			maintenance.POST("/rate-limits/cleanup", h.CleanupRateLimits)
			maintenance.POST("/lobbies/cleanup", h.CleanupLobbies)
		}

		apiGroup.POST("/users/me", auth, timeout, h.SaveUser)
		apiGroup.POST("/interest/pay", auth, timeout, h.RecordPayInterest)
	}

	// Live lobby updates
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/lobbies/:lobbyId", auth, h.lobbyParam, h.Subscribe)
	}

	return router
}

// lobbyParam normalises and checks the lobby code in the path.
func (h *Handler) lobbyParam(c *gin.Context) {
	code := lobby.NormalizeCode(c.Param("lobbyId"))
	if !lobby.ValidCode(code) {
		middleware.AbortWithError(c, apperr.InvalidArgument("lobbyId must be a 6 character lobby code"))
		return
	}
	c.Set("lobby_id", code)
	c.Next()
}

func (h *Handler) playerParam(c *gin.Context) {
	id := c.Param("playerId")
	if id == "" || len(id) > 128 {
		middleware.AbortWithError(c, apperr.InvalidArgument("playerId is required"))
		return
	}
	c.Next()
}

func lobbyID(c *gin.Context) string {
	return c.GetString("lobby_id")
}

// bind decodes the JSON body into req and answers invalid-argument on
// failure.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.AbortWithError(c, bindError(err))
		return false
	}
	return true
}

// allow checks policy for key and answers resource-exhausted when the quota
// is spent.
func (h *Handler) allow(c *gin.Context, policy ratelimit.Policy, key string) bool {
	ok, err := policy.Allow(c.Request.Context(), h.limiter, key)
	if err != nil {
		middleware.AbortWithError(c, err)
		return false
	}
	if !ok {
		h.logger.WithFields(logrus.Fields{
			"actor":  key,
			"action": policy.Action,
		}).Warn("rate limit exceeded")
		middleware.AbortWithError(c, apperr.ResourceExhausted("rate limit exceeded, please slow down"))
		return false
	}
	return true
}

// debounce rejects an update of a hot field arriving too soon after the
// previous accepted one from the same actor.
func (h *Handler) debounce(c *gin.Context, playerID string, fields ...string) bool {
	actor := middleware.ActorID(c)
	for _, field := range fields {
		skip, err := h.limiter.ShouldDebounce(c.Request.Context(), actor, playerID, field, h.opts.DebounceInterval)
		if err != nil {
			middleware.AbortWithError(c, err)
			return false
		}
		if skip {
			middleware.AbortWithError(c, apperr.ResourceExhausted("updating %s too quickly, please slow down", field))
			return false
		}
	}
	return true
}

func success(c *gin.Context, extra gin.H) {
	body := gin.H{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
