package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"diabetes-clinic-server/internal/config"
	"diabetes-clinic-server/internal/equipment"
	"diabetes-clinic-server/internal/handlers"
	"diabetes-clinic-server/internal/labs"
	"diabetes-clinic-server/internal/logger"
	"diabetes-clinic-server/internal/metrics"
	"diabetes-clinic-server/internal/middleware"
	"diabetes-clinic-server/internal/models"
)

// Services are the core components the HTTP layer calls into.
type Services struct {
	Equipment *equipment.Manager
	Labs      *labs.Interpreter
}

// NewRouter builds the engine with the global middleware and all routes.
func NewRouter(cfg *config.Config, log *logger.Logger, svc Services) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(metrics.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	SetupRoutes(router, cfg, svc)
	return router
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, cfg *config.Config, svc Services) {
	equipmentHandler := handlers.NewEquipmentHandler(svc.Equipment)
	labHandler := handlers.NewLabHandler(svc.Labs)
	authHandler := handlers.NewAuthHandler(cfg.JWTSecret, time.Duration(cfg.JWTExpirationMinutes)*time.Minute)

	clinicStaff := []models.Role{models.RoleAdmin, models.RoleDoctor, models.RoleLab, models.RoleStaff}

	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		authRoutes := private.Group("/auth")
		{
			authRoutes.GET("/profile", authHandler.GetProfile)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}

		patientRoutes := private.Group("/patients/:patientId")
		{
			// Patients may read their own equipment and results
			patientRoutes.GET("/equipment", middleware.PatientSelfOrRoles(clinicStaff...), equipmentHandler.GetProfile)
			patientRoutes.GET("/equipment/history", middleware.PatientSelfOrRoles(clinicStaff...), equipmentHandler.GetHistory)
			patientRoutes.GET("/lab-results", middleware.PatientSelfOrRoles(models.RoleDoctor, models.RoleLab, models.RoleAdmin), labHandler.GetPatientResults)

			// Only staff and admins install or swap devices
			deviceRoutes := patientRoutes.Group("/equipment/:deviceType")
			deviceRoutes.Use(middleware.RoleAuthMiddleware(models.RoleStaff, models.RoleAdmin))
			{
				deviceRoutes.POST("", equipmentHandler.AddEquipment)
				deviceRoutes.PATCH("", equipmentHandler.UpdateEquipment)
				deviceRoutes.POST("/replace", equipmentHandler.ReplaceEquipment)
			}
		}

		private.GET("/equipment/warranty-status", equipmentHandler.GetWarrantyStatus)

		labRoutes := private.Group("/lab")
		{
			labRoutes.GET("/catalog", labHandler.GetCatalog)

			labRoutes.POST("/orders", middleware.RoleAuthMiddleware(models.RoleDoctor), labHandler.CreateOrder)
			labRoutes.GET("/orders", middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleLab), labHandler.GetPendingOrders)
			labRoutes.PATCH("/orders/:id/collect", middleware.RoleAuthMiddleware(models.RoleLab), labHandler.CollectSample)
			labRoutes.DELETE("/orders/:id", middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin), labHandler.DeleteOrder)
			labRoutes.POST("/orders/:id/results", middleware.RoleAuthMiddleware(models.RoleLab), labHandler.SubmitResult)

			labRoutes.GET("/results", middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleLab, models.RoleAdmin), labHandler.GetCompletedResults)
			labRoutes.GET("/results/critical", middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleLab), labHandler.GetCriticalResults)
			labRoutes.POST("/results/:id/notify", middleware.RoleAuthMiddleware(models.RoleLab), labHandler.NotifyDoctor)
		}
	}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
}
