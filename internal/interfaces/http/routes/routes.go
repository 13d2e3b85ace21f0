// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/your-org/distribution-backend/internal/config"
	"github.com/your-org/distribution-backend/internal/domain/stock"
	"github.com/your-org/distribution-backend/internal/interfaces/http/handlers"
)

// SetupRoutes wires all API v1 routes. One stock service is shared across
// handlers so every mutation goes through the same per-item lock guard.
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config) {
	stockService := stock.NewService(db, cfg)

	SetupCatalogRoutes(rg, db, cfg)
	SetupPartyRoutes(rg, db, cfg)
	SetupOrderRoutes(rg, db, cfg, stockService)
	SetupStockRoutes(rg, cfg, stockService)
}

// SetupCatalogRoutes sets up catalog item routes
func SetupCatalogRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config) {
	catalogHandler := handlers.NewCatalogHandler(db, cfg)

	items := rg.Group("/items")
	{
		items.GET("", catalogHandler.GetItems)
		items.POST("", catalogHandler.CreateItem)
		items.GET("/:id", catalogHandler.GetItem)
		items.DELETE("/:id", catalogHandler.DeleteItem)
	}
}

// SetupPartyRoutes sets up party master-data routes
func SetupPartyRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config) {
	partyHandler := handlers.NewPartyHandler(db, cfg)

	parties := rg.Group("/parties")
	{
		parties.GET("", partyHandler.GetParties)
		parties.POST("", partyHandler.CreateParty)
		parties.GET("/:id", partyHandler.GetParty)
	}
}

// SetupOrderRoutes sets up order, dispatch and return routes
func SetupOrderRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config, stockService *stock.Service) {
	orderHandler := handlers.NewOrderHandler(db, cfg, stockService)
	dispatchHandler := handlers.NewDispatchHandler(db, cfg, stockService)
	returnHandler := handlers.NewReturnHandler(db, cfg, stockService)

	orders := rg.Group("/orders")
	{
		orders.GET("", orderHandler.GetOrders)
		orders.POST("", orderHandler.CreateOrder)
		orders.GET("/:id", orderHandler.GetOrder)
		orders.DELETE("/:id", orderHandler.DeleteOrder)

		// Dispatches against an order
		orders.POST("/:id/dispatches", dispatchHandler.CreateDispatch)
		orders.GET("/:id/dispatches", dispatchHandler.GetDispatchHistory)

		// Returns against an order
		orders.POST("/:id/returns", returnHandler.CreateReturn)
		orders.GET("/:id/returns", returnHandler.GetReturnHistory)
	}

	// Dispatch events are addressed by their own identity for edits
	dispatches := rg.Group("/dispatches")
	{
		dispatches.PUT("/:id", dispatchHandler.EditDispatch)
		dispatches.DELETE("/:id", dispatchHandler.DeleteDispatch)
	}

	returns := rg.Group("/returns")
	{
		returns.POST("", returnHandler.CreateAdhocReturn)
		returns.PUT("/:id", returnHandler.EditReturn)
		returns.DELETE("/:id", returnHandler.DeleteReturn)
	}
}

// SetupStockRoutes sets up stock account routes
func SetupStockRoutes(rg *gin.RouterGroup, cfg *config.Config, stockService *stock.Service) {
	stockHandler := handlers.NewStockHandler(stockService, cfg)

	stocks := rg.Group("/stock")
	{
		stocks.POST("/adjust", stockHandler.AdjustStock)
		stocks.GET("/:itemId", stockHandler.GetStock)
		stocks.GET("/:itemId/movements", stockHandler.GetStockMovements)
	}
}
