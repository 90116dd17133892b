package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mossy-p/lifecounter/internal/middleware"
	"github.com/mossy-p/lifecounter/internal/ratelimit"
)

// CleanupRateLimits deletes one batch of expired rate limit records
func (h *Handler) CleanupRateLimits(c *gin.Context) {
	if !h.allow(c, ratelimit.Maintenance, middleware.ActorID(c)) {
		return
	}
	n, err := h.jobs.CleanupRateLimits(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"deleted": n})
}

// CleanupLobbies purges one batch of idle lobbies
func (h *Handler) CleanupLobbies(c *gin.Context) {
	if !h.allow(c, ratelimit.Maintenance, middleware.ActorID(c)) {
		return
	}
	n, err := h.jobs.CleanupLobbies(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{"deleted": n})
}
