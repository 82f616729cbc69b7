package handlers

import (
	"github.com/gin-gonic/gin"

	"diabetes-clinic-server/internal/middleware"
	"diabetes-clinic-server/internal/models"
	"diabetes-clinic-server/internal/utils"
)

// requireActor returns the authenticated actor or writes a 401.
func requireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not found in token")
		return models.Actor{}, false
	}
	return actor, true
}
