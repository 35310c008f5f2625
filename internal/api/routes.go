package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the ops HTTP surface. metrics may be nil. User history
// is only served when apiToken is set, and then requires it as a bearer token.
func NewRouter(handler *Handler, metrics http.Handler, allowedOrigins []string, apiToken string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AddAllowHeaders("Authorization")
	if allowsAny(allowedOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	router.Use(cors.New(corsConfig))

	SetupRoutes(router, handler, metrics, apiToken)
	return router
}

func SetupRoutes(router *gin.Engine, handler *Handler, metrics http.Handler, apiToken string) {
	router.GET("/healthz", handler.Health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	api := router.Group("/api")
	{
		api.GET("/buildings/nearest", handler.GetNearestBuilding)
		api.GET("/buildings/top", handler.GetTopBuildings)
	}

	if apiToken != "" {
		users := api.Group("/users", RequireToken(apiToken, handler.logger))
		users.GET("/:id/history", handler.GetUserHistory)
	}
}

func allowsAny(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
