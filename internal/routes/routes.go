package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/moments-social/moments-backend/internal/handler"
	"github.com/moments-social/moments-backend/internal/middleware"
	pkgjwt "github.com/moments-social/moments-backend/pkg/jwt"
)

// Handlers bundles everything the route table needs
type Handlers struct {
	Auth   *handler.AuthHandler
	Post   *handler.PostHandler
	Upload *handler.UploadHandler
	AI     *handler.AIHandler
}

// Setup registers all API routes
func Setup(router *gin.Engine, h *Handlers, jwtManager *pkgjwt.Manager) {
	auth := middleware.JWTAuth(jwtManager)

	api := router.Group("/api")

	// Auth
	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Auth.Register)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.POST("/check-email", h.Auth.CheckEmail)
	authGroup.POST("/send-code", h.Auth.SendCode)
	authGroup.GET("/me", auth, h.Auth.GetMe)
	authGroup.PUT("/profile", auth, h.Auth.UpdateProfile)

	// Posts. /draft must be registered before /:id so it is not captured
	// as a post ID.
	posts := api.Group("/posts")
	posts.GET("", h.Post.List)
	posts.GET("/draft", auth, h.Post.LatestDraft)
	posts.GET("/:id", h.Post.Get)
	posts.POST("", auth, h.Post.Create)
	posts.PUT("/:id", auth, h.Post.Update)
	posts.DELETE("/:id", auth, h.Post.Delete)

	// Upload
	upload := api.Group("/upload")
	upload.GET("/presign", auth, h.Upload.Presign)
	upload.DELETE("", auth, h.Upload.Delete)

	// AI
	ai := api.Group("/ai")
	ai.POST("/suggest-topics", h.AI.SuggestTopics)
}
