package handler

import (
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the quote API on an authenticated group.
func RegisterRoutes(api *gin.RouterGroup, h *Handlers) {
	quotes := api.Group("/quotes")
	{
		quotes.POST("", h.Quote.Create)
		quotes.GET("", h.Quote.List)
		quotes.GET("/:id", h.Quote.Get)
		quotes.GET("/:id/audit-log", h.Quote.AuditLog)
		quotes.GET("/:id/permissions", h.Quote.Permissions)
		quotes.POST("/:id/submit", h.Quote.Submit)
		quotes.POST("/:id/convert", h.Quote.Convert)
		quotes.GET("/:id/messages", h.Quote.ListMessages)
		quotes.POST("/:id/messages", h.Quote.PostMessage)
	}
	api.GET("/quote-statuses/:status/next", h.Quote.NextStates)

	basket := api.Group("/basket")
	{
		basket.GET("", h.Basket.Get)
		basket.PUT("", h.Basket.Replace)
		basket.DELETE("", h.Basket.Clear)
		basket.POST("/items", h.Basket.AddItem)
		basket.PUT("/items/:itemId", h.Basket.UpdateItem)
		basket.DELETE("/items/:itemId", h.Basket.RemoveItem)
		basket.POST("/submit", h.Basket.Submit)
	}

	api.GET("/me/profile", h.Profile.Me)
	api.GET("/events", h.SSE.Stream)

	admin := api.Group("/admin", middleware.RequireAdmin())
	{
		admin.GET("/quotes", h.Admin.List)
		admin.GET("/quotes/export", h.Admin.Export)
		admin.POST("/quotes/:id/start-review", h.Admin.StartReview)
		admin.POST("/quotes/:id/approve", h.Admin.Approve)
		admin.POST("/quotes/:id/reject", h.Admin.Reject)
		admin.POST("/quotes/:id/pricing", h.Admin.SetPricing)
		admin.POST("/quotes/:id/pricing-visibility", h.Admin.SetPricingVisibility)
		admin.POST("/quotes/:id/expire", h.Admin.Expire)
		admin.GET("/quotes/:id/order", h.Admin.Order)
		admin.POST("/quotes/:id/order", h.Admin.EnsureOrder)
		admin.PUT("/quotes/:id/items", h.Admin.UpdateItems)
		admin.PUT("/buyers/:userId/verification", h.Admin.SetVerification)
	}
}
