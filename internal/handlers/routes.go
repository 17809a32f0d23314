package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the ops endpoints and the console API on router.
func RegisterRoutes(router *gin.Engine, health *HealthHandler, console *ConsoleHandler) {
	// Register health check routes
	router.GET("/health", health.Health)
	router.GET("/health/ready", health.Ready)

	v1 := router.Group("/api/v1")
	v1.GET("/info", health.Info)
	v1.POST("/session/login", console.Login)

	// Everything below needs an open session
	api := v1.Group("", console.RequireSession())
	{
		api.DELETE("/session", console.Logout)

		api.GET("/parcels", console.ListParcels)
		api.POST("/parcels/reload", console.Reload)

		api.POST("/selection", console.Select)
		api.POST("/navigation/next", console.Next)
		api.POST("/navigation/prev", console.Prev)

		form := api.Group("/form")
		{
			form.GET("", console.GetForm)
			form.PUT("/geometry", console.PutGeometry)
			form.POST("/geometry/commit", console.CommitGeometry)
			form.PUT("/style", console.PutStyle)
			form.POST("/update", console.Update)
			form.POST("/delete", console.RequestDelete)
			form.POST("/delete/confirm", console.ConfirmDelete)
			form.POST("/delete/cancel", console.CancelDelete)
		}

		api.POST("/map/center", console.MapCenter)
		api.GET("/map/ws", console.WS)
	}
}
