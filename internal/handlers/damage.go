package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mossy-p/lifecounter/internal/middleware"
	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/mossy-p/lifecounter/internal/ratelimit"
)

// StageDamage adds a delta to a player's staged life or infect
func (h *Handler) StageDamage(c *gin.Context) {
	playerID := c.Param("playerId")

	var req models.StageRequest
	if !bind(c, &req) {
		return
	}
	if !h.allow(c, ratelimit.StageDamage, middleware.ActorID(c)) {
		return
	}
	v, err := h.damage.Stage(c.Request.Context(), lobbyID(c), playerID, req.Field, *req.Delta)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"value": v})
}

// StageCommanderDamage stages commander damage one opponent dealt to the
// player
func (h *Handler) StageCommanderDamage(c *gin.Context) {
	var req models.StageCommanderRequest
	if !bind(c, &req) {
		return
	}
	if !h.allow(c, ratelimit.Commander, middleware.ActorID(c)) {
		return
	}
	p, err := h.damage.StageCommander(c.Request.Context(), lobbyID(c), c.Param("playerId"), req.Opponent(), *req.Delta)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"data": p})
}

// UpdateCommanderDamage replaces a player's commander damage list
func (h *Handler) UpdateCommanderDamage(c *gin.Context) {
	var req models.CommanderDamagesRequest
	if !bind(c, &req) {
		return
	}
	if !h.allow(c, ratelimit.Commander, middleware.ActorID(c)) {
		return
	}
	if _, err := h.damage.ReplaceCommanderDamages(c.Request.Context(), lobbyID(c), c.Param("playerId"), req.CommanderDamages); err != nil {
		fail(c, err)
		return
	}
	success(c, nil)
}

// ApplyDamage commits every staged delta of a player
func (h *Handler) ApplyDamage(c *gin.Context) {
	if !h.allow(c, ratelimit.ApplyDamage, middleware.ActorID(c)) {
		return
	}
	p, err := h.damage.Commit(c.Request.Context(), lobbyID(c), c.Param("playerId"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"data": p})
}

// AbortDamage discards every staged delta of a player
func (h *Handler) AbortDamage(c *gin.Context) {
	if !h.allow(c, ratelimit.StageDamage, middleware.ActorID(c)) {
		return
	}
	p, err := h.damage.Abort(c.Request.Context(), lobbyID(c), c.Param("playerId"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"data": p})
}
