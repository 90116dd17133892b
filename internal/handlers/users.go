package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mossy-p/lifecounter/internal/middleware"
	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/sirupsen/logrus"
)

// SaveUser records the profile of the signed-in user
func (h *Handler) SaveUser(c *gin.Context) {
	var req models.SaveUserRequest
	if !bind(c, &req) {
		return
	}
	u := models.User{
		ID:       middleware.ActorID(c),
		Name:     req.Name,
		Email:    req.Email,
		PhotoURL: req.PhotoURL,
	}
	if err := h.store.SaveUser(c.Request.Context(), u); err != nil {
		fail(c, err)
		return
	}
	success(c, nil)
}

// RecordPayInterest notes that the caller clicked the upgrade button.
// Failures are logged and hidden from the caller.
func (h *Handler) RecordPayInterest(c *gin.Context) {
	actor := middleware.ActorID(c)
	added, err := h.store.RecordInterest(c.Request.Context(), actor)
	if err != nil {
		h.logger.WithFields(logrus.Fields{"actor": actor, "error": err}).Warn("Failed to record pay interest")
	}
	success(c, gin.H{"recorded": added})
}
