package handlers

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/lifecounter/internal/apperr"
	"github.com/mossy-p/lifecounter/internal/middleware"
	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/mossy-p/lifecounter/internal/ratelimit"
)

// hotFields are debounced per (actor, player, field).
var hotFields = map[string]bool{
	models.FieldLife:          true,
	models.FieldLifeToApply:   true,
	models.FieldInfectToApply: true,
}

// AddPlayer adds a player that is not tied to the caller, such as a friend
// sharing the device. Missing ids and names are generated.
func (h *Handler) AddPlayer(c *gin.Context) {
	var req models.AddPlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.AbortWithError(c, bindError(err))
		return
	}
	if !h.allow(c, ratelimit.AddPlayer, middleware.ActorID(c)) {
		return
	}
	var in models.PlayerInput
	if req.PlayerData != nil {
		in = *req.PlayerData
	}
	p, err := h.lobbies.AddPlayer(c.Request.Context(), lobbyID(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"player": p})
}

// UpdatePlayer merges a partial update into a player record
func (h *Handler) UpdatePlayer(c *gin.Context) {
	actor := middleware.ActorID(c)
	playerID := c.Param("playerId")

	var req models.UpdatePlayerRequest
	if !bind(c, &req) {
		return
	}
	u := *req.Updates
	fields := u.Fields()
	if len(fields) == 0 {
		middleware.AbortWithError(c, apperr.InvalidArgument("updates must name at least one field"))
		return
	}
	if !h.allow(c, ratelimit.UpdatePlayer, actor) ||
		!h.allow(c, ratelimit.UpdateTarget, lobbyID(c)+":"+playerID) {
		return
	}
	var hot []string
	for _, f := range fields {
		if hotFields[f] {
			hot = append(hot, f)
		}
	}
	if !h.debounce(c, playerID, hot...) {
		return
	}

	if _, err := h.lobbies.UpdatePlayer(c.Request.Context(), lobbyID(c), playerID, u); err != nil {
		fail(c, err)
		return
	}
	success(c, nil)
}

// DeletePlayer removes a player. Any lobby member may remove any player.
func (h *Handler) DeletePlayer(c *gin.Context) {
	if !h.allow(c, ratelimit.DeletePlayer, middleware.ActorID(c)) {
		return
	}
	if err := h.lobbies.RemovePlayer(c.Request.Context(), lobbyID(c), c.Param("playerId")); err != nil {
		fail(c, err)
		return
	}
	success(c, nil)
}

// IncrementField atomically adds a bounded value to a counter field
func (h *Handler) IncrementField(c *gin.Context) {
	playerID := c.Param("playerId")

	var req models.IncrementRequest
	if !bind(c, &req) {
		return
	}
	if !h.allow(c, ratelimit.IncrementField, middleware.ActorID(c)) {
		return
	}
	v, err := h.lobbies.IncrementField(c.Request.Context(), lobbyID(c), playerID, req.Field, *req.Value)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"value": v})
}

// UpdateSettings changes a player's name and colors
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req models.SettingsRequest
	if !bind(c, &req) {
		return
	}
	u := req.Update()
	if u.Empty() {
		middleware.AbortWithError(c, apperr.InvalidArgument("settings must name at least one field"))
		return
	}
	if !h.allow(c, ratelimit.Settings, middleware.ActorID(c)) {
		return
	}
	if _, err := h.lobbies.UpdatePlayer(c.Request.Context(), lobbyID(c), c.Param("playerId"), u); err != nil {
		fail(c, err)
		return
	}
	success(c, nil)
}
