package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"resumatch/internal/api/middleware"
	"resumatch/internal/auth"
	"resumatch/internal/config"
	"resumatch/internal/identity"
	"resumatch/internal/job"
	"resumatch/internal/resume"
	"resumatch/internal/storage"
	"resumatch/internal/user"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	db *gorm.DB,
	cfg *config.Config,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	userService := user.NewService(db, authService, logger)
	resumeService := resume.NewService(db, logger)
	resolver := identity.NewResolver(db, logger)
	jobService := job.NewService(db, resolver, logger)

	authHandler := NewAuthHandler(
		userService,
		authService,
		redisClient,
		logger,
		cfg.Auth.LoginRateLimitPerHour,
		cfg.Auth.LoginLockThreshold,
		cfg.Auth.LoginLockTTL(),
	)
	resumeHandler := NewResumeHandler(resumeService, asynqClient, storageClient, logger, cfg.Upload.ClamdAddr, cfg.Upload.MaxBytes)
	jobHandler := NewJobHandler(jobService, logger)
	wsHandler := NewWsHandler(redisClient, authService, logger, nil)
	authMiddleware := middleware.AuthMiddleware(authService)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		profileGroup := v1.Group("/profile")
		profileGroup.Use(authMiddleware)
		{
			profileGroup.GET("", authHandler.GetProfile)
			profileGroup.PATCH("", authHandler.UpdateProfile)
		}

		resumeGroup := v1.Group("/resumes")
		resumeGroup.Use(authMiddleware)
		{
			resumeGroup.POST("", resumeHandler.CreateResume)
			resumeGroup.GET("", resumeHandler.ListResumes)
			resumeGroup.GET("/:id", resumeHandler.GetResume)
			resumeGroup.PATCH("/:id", resumeHandler.UpdateResume)
			resumeGroup.DELETE("/:id", resumeHandler.DeleteResume)
			resumeGroup.POST("/:id/file", resumeHandler.UploadResumeFile)
			resumeGroup.GET("/:id/download-link", resumeHandler.GetDownloadLink)
		}

		jobGroup := v1.Group("/jobs")
		{
			jobGroup.GET("/:id", jobHandler.GetJob)
			jobGroup.POST("", authMiddleware, jobHandler.CreateJob)
			jobGroup.GET("", authMiddleware, jobHandler.ListMyJobs)
			jobGroup.PATCH("/:id", authMiddleware, jobHandler.UpdateJob)
			jobGroup.DELETE("/:id", authMiddleware, jobHandler.DeleteJob)
		}
	}
}
