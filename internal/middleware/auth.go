package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"diabetes-clinic-server/internal/models"
	"diabetes-clinic-server/internal/utils"
)

const actorKey = "actor"

// AuthMiddleware creates a middleware for JWT authentication.
// The verified claims become the request's actor.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(parts[1], jwtSecret)
		if err != nil {
			utils.Unauthorized(c, "Invalid token: "+err.Error())
			c.Abort()
			return
		}

		c.Set(actorKey, claims.Actor())
		c.Next()
	}
}

// RoleAuthMiddleware creates a middleware for role-based authorization.
// It should be used *after* AuthMiddleware.
func RoleAuthMiddleware(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActorFromContext(c)
		if !ok {
			utils.InternalServerError(c, "Actor not found in context. AuthMiddleware might be missing.")
			c.Abort()
			return
		}

		if !slices.Contains(allowedRoles, actor.Role) {
			utils.Forbidden(c, "You do not have permission to access this resource.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// PatientSelfOrRoles lets the listed roles through, and patients only when
// the :patientId path parameter is their own ID.
func PatientSelfOrRoles(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActorFromContext(c)
		if !ok {
			utils.InternalServerError(c, "Actor not found in context. AuthMiddleware might be missing.")
			c.Abort()
			return
		}

		self := actor.Role == models.RolePatient && actor.ID == c.Param("patientId")
		if !self && !slices.Contains(allowedRoles, actor.Role) {
			utils.Forbidden(c, "You are not authorized to view this patient's records.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetActorFromContext returns the authenticated actor.
func GetActorFromContext(c *gin.Context) (models.Actor, bool) {
	v, exists := c.Get(actorKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
