package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/lifecounter/internal/apperr"
	"github.com/mossy-p/lifecounter/internal/middleware"
)

const tokenTTL = 24 * time.Hour

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=128"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Login handles user login and JWT generation
// For demo purposes, accepts any username/password combination
func Login(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if !bind(c, &req) {
			return
		}

		// For demo: accept any username/password
		// In production, identity comes from the upstream account service
		userID := req.Username

		tokenString, err := middleware.IssueToken(jwtSecret, userID, time.Now(), tokenTTL)
		if err != nil {
			middleware.AbortWithError(c, apperr.Internal(err, "failed to generate token"))
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:  tokenString,
			UserID: userID,
		})
	}
}
