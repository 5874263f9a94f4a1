package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/williamalexakis/stcats-ops/docs"
	"github.com/williamalexakis/stcats-ops/internal/audit"
	"github.com/williamalexakis/stcats-ops/internal/auth"
	"github.com/williamalexakis/stcats-ops/internal/handlers"
	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/storage"
	"github.com/williamalexakis/stcats-ops/internal/ws"
)

// @Title						St Catherine's CS Department Portal
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	if os.Getenv("ENV_CHECK") == "" {
		fmt.Println("Loading .env")
		if err := godotenv.Load(); err != nil {
			log.Fatal("Failed to load .env")
		}
	}

	storage.ConnectDatabase()

	err := storage.DB.AutoMigrate(
		&models.User{},
		&models.InviteCode{},
		&models.Classroom{},
		&models.Subject{},
		&models.Course{},
		&models.ClassGroup{},
		&models.ScheduleEntry{},
		&models.AuditLog{},
	)
	if err != nil {
		log.Fatal("Migration failed: ", err.Error())
	}

	storage.InitRedis()

	go ws.HubInstance.Run()

	handlers.RegisterValidators()

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", handlers.Register)
		authGroup.POST("/login", handlers.Login)
		authGroup.POST("/refresh", handlers.RefreshToken)
	}

	api := r.Group("/api", auth.AuthMiddleware(), audit.Middleware())
	{
		api.GET("/schedule", handlers.GetSchedule)
		api.GET("/schedule/updates", handlers.GetScheduleUpdates)
		api.GET("/schedule/upcoming", handlers.UpcomingEntries)
		api.GET("/schedule/export", handlers.ExportScheduleCSV)
		api.GET("/schedule/export/xlsx", handlers.ExportScheduleXLSX)
		api.POST("/schedule/entries/:id/note", handlers.SavePrivateNote)

		admin := api.Group("", auth.RequireAdmin())
		{
			admin.POST("/schedule/entries", handlers.CreateScheduleEntry)
			admin.PUT("/schedule/entries/:id", handlers.UpdateScheduleEntry)
			admin.DELETE("/schedule/entries/:id", handlers.DeleteScheduleEntry)

			admin.GET("/members", handlers.ListMembers)
			admin.POST("/members/:id/promote", handlers.PromoteMember)
			admin.POST("/members/:id/demote", handlers.DemoteMember)
			admin.DELETE("/members/:id", handlers.RemoveMember)

			admin.GET("/config", handlers.GetConfig)
			admin.POST("/config/:kind", handlers.CreateConfigItem)
			admin.DELETE("/config/:kind/:id", handlers.DeleteConfigItem)

			admin.GET("/admin/invites", handlers.ListInvites)
			admin.POST("/admin/invites", handlers.CreateInvite)
			admin.DELETE("/admin/invites/:id", handlers.DeleteInvite)

			admin.GET("/admin/audit-logs", handlers.ListAuditLogs)
			admin.GET("/admin/dashboard", handlers.Dashboard)
		}
	}

	r.GET("/ws/schedule", auth.AuthMiddleware(), ws.ScheduleWebSocketHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Server failed to start: ", err.Error())
	}
}
