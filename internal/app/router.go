package app

import (
	"assessment_backend/docs"
	"assessment_backend/internal/config"
	"assessment_backend/internal/middleware"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/monitoring"
	"assessment_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	// 接口注解里的路径已带 /api 前缀
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/health", c.health.HealthCheck)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由，按用户限流
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(&cfg.JWT))
	if a.limiter != nil {
		authGroup.Use(security.RateLimiter(a.limiter, security.UserOrIPKey))
	}
	{
		registerStudentRoutes(authGroup, c)
		registerStaffRoutes(authGroup, c)
	}
}

// registerStudentRoutes 作答接口；归属校验在服务层完成，教师也可查看
func registerStudentRoutes(r *gin.RouterGroup, c *controllers) {
	r.POST("/tests/:id/attempts", c.attempt.StartAttempt)

	attempts := r.Group("/attempts/:id")
	{
		attempts.GET("", c.attempt.GetAttempt)
		attempts.POST("/sections/:index/start", c.attempt.StartSection)
		attempts.GET("/sections/:index", c.attempt.GetSectionStatus)
		attempts.GET("/sections/:index/questions", c.attempt.GetSectionQuestions)
		attempts.PUT("/answers", c.attempt.SubmitAnswer)
		attempts.PUT("/answers/:questionId/flag", c.attempt.FlagQuestion)
		attempts.POST("/submit", c.attempt.Submit)
		attempts.GET("/result", c.attempt.GetResult)
		attempts.GET("/review", c.attempt.GetReview)
	}
}

// registerStaffRoutes 教师端：考试管理、评分与导出
func registerStaffRoutes(r *gin.RouterGroup, c *controllers) {
	staff := r.Group("/staff")
	staff.Use(middleware.RoleMiddleware(util.RoleTeacher))
	{
		tests := staff.Group("/tests/:id")
		tests.POST("/schedule", c.test.Schedule)
		tests.POST("/publish", c.test.Publish)
		tests.POST("/complete", c.test.Complete)
		tests.POST("/archive", c.test.Archive)
		tests.GET("/stats", c.test.Stats)
		tests.GET("/export", c.test.Export)
		tests.GET("/ungraded", c.grading.ListUngraded)
		tests.POST("/questions/:questionId/grades", c.grading.BulkGrade)
		tests.POST("/finalize", c.grading.Finalize)

		staff.PUT("/attempts/:id/answers/:questionId/grade", c.grading.GradeAnswer)
		staff.POST("/attempts/:id/auto-submit", middleware.RoleMiddleware(util.RoleAdmin), c.grading.ForceSubmit)
	}
}
