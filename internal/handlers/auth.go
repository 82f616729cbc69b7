package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"diabetes-clinic-server/internal/utils"
)

// AuthHandler exposes the identity carried by the caller's token.
type AuthHandler struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(secret string, ttl time.Duration) *AuthHandler {
	return &AuthHandler{JWTSecret: secret, TokenTTL: ttl}
}

// GetProfile returns the authenticated actor.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	utils.Success(c, "Profile fetched successfully", actor)
}

// RefreshToken issues a fresh token for the authenticated actor.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	token, err := utils.GenerateAccessToken(actor, h.JWTSecret, h.TokenTTL)
	if err != nil {
		utils.InternalServerError(c, "Failed to generate access token")
		return
	}
	utils.Success(c, "Token refreshed successfully", gin.H{
		"accessToken": token,
		"expiresIn":   int(h.TokenTTL.Seconds()),
	})
}
