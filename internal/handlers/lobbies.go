package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/lifecounter/internal/middleware"
	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/mossy-p/lifecounter/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// CreateLobby opens a lobby owned by the caller
func (h *Handler) CreateLobby(c *gin.Context) {
	actor := middleware.ActorID(c)

	var req models.CreateLobbyRequest
	if !bind(c, &req) {
		return
	}
	if !h.allow(c, ratelimit.CreateLobby, actor) {
		return
	}
	h.jobs.Kick()

	code, err := h.lobbies.Create(c.Request.Context(), actor, *req.PlayerData)
	if err != nil {
		fail(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{"lobby": code, "actor": actor}).Info("Lobby created")
	c.JSON(http.StatusCreated, models.LobbyResponse{Success: true, LobbyCode: code})
}

// JoinLobby adds the caller's player to an existing lobby
func (h *Handler) JoinLobby(c *gin.Context) {
	actor := middleware.ActorID(c)

	var req models.JoinLobbyRequest
	if !bind(c, &req) {
		return
	}
	if !h.allow(c, ratelimit.JoinLobby, actor) {
		return
	}
	h.jobs.Kick()

	code, err := h.lobbies.Join(c.Request.Context(), req.LobbyCode, actor, *req.PlayerData)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.LobbyResponse{Success: true, LobbyCode: code})
}

// GetPlayers lists the players of a lobby in join order
func (h *Handler) GetPlayers(c *gin.Context) {
	players, err := h.lobbies.Players(c.Request.Context(), lobbyID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": players})
}

// TouchLobby marks the lobby as active so it is not purged
func (h *Handler) TouchLobby(c *gin.Context) {
	if err := h.lobbies.Touch(c.Request.Context(), lobbyID(c)); err != nil {
		fail(c, err)
		return
	}
	success(c, nil)
}

// StartTimer stores the end of a countdown the clients display
func (h *Handler) StartTimer(c *gin.Context) {
	var req models.TimerRequest
	if !bind(c, &req) {
		return
	}
	if !h.allow(c, ratelimit.StartTimer, middleware.ActorID(c)) {
		return
	}
	end, err := h.lobbies.StartTimer(c.Request.Context(), lobbyID(c), req.DurationMinutes)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"timerEnd": end.UnixMilli()})
}
