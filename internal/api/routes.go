package api

import (
	"github.com/gin-gonic/gin"

	"stockcount/internal/metrics"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		products := v1.Group("/products")
		products.GET("", handler.ListProducts)
		products.GET("/search", handler.SearchProducts)
		products.GET("/autocomplete", handler.Autocomplete)
		products.GET("/code/:code", handler.FindByCode)
		products.POST("", handler.CreateProduct)
		products.PUT("/:id", handler.UpdateProduct)
		products.DELETE("/:id", handler.DeleteProduct)
		products.DELETE("", handler.ClearProducts)
		products.POST("/import", handler.ImportCatalog)

		v1.GET("/imports", handler.ListImportRuns)

		stock := v1.Group("/stock")
		stock.GET("/items", handler.ListStock)
		stock.POST("/items", handler.AddStock)
		stock.DELETE("/items", handler.ClearStock)
		stock.PATCH("/items/:id", handler.UpdateStock)
		stock.DELETE("/items/:id", handler.DeleteStock)
		stock.GET("/export", handler.ExportStock)
	}
}
