// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kinbech/backend/internal/config"
	"github.com/kinbech/backend/internal/handlers"
	"github.com/kinbech/backend/internal/middleware"
	"github.com/kinbech/backend/internal/services"
	"github.com/kinbech/backend/internal/utils"
)

// Initialize wires the services and handlers onto a gin engine. The auction
// sweeper is started separately by the caller.
func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, *services.AuctionService) {
	// Services
	notificationService := services.NewNotificationService(db)
	storageService, _ := services.NewStorageService(cfg)
	productService := services.NewProductService(db)
	tradeService := services.NewTradeService(db, cfg, notificationService, productService)
	offerService := services.NewOfferService(db, cfg, notificationService, productService)
	auctionService := services.NewAuctionService(db, cfg, notificationService, productService)
	queryService := services.NewTradeQueryService(db)

	// Handlers
	tradeHandler := handlers.NewTradeHandler(tradeService, offerService, auctionService, queryService, storageService)

	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	v1 := r.Group("/v1")
	{
		trades := v1.Group("/trades")

		// The auction board is browsable without an account.
		trades.GET("/auctions/active", middleware.OptionalAuth(), tradeHandler.GetActiveAuctions)

		trades.Use(middleware.AuthRequired())
		{
			trades.POST("", tradeHandler.CreateTrade)
			trades.GET("", tradeHandler.GetTrades)
			trades.GET("/stats/overview", tradeHandler.GetTradeStats)
			trades.GET("/product/:productId", tradeHandler.GetTradesByProduct)
			trades.GET("/:id", tradeHandler.GetTrade)

			trades.POST("/:id/offer", tradeHandler.SubmitOffer)
			trades.PUT("/:id/offer/:offerId", tradeHandler.RespondToOffer)
			trades.PUT("/:id/counter/:offerId", tradeHandler.RespondToCounter)

			trades.PUT("/:id/status", tradeHandler.UpdateTradeStatus)
			trades.PUT("/:id/accept", tradeHandler.AcceptTrade)
			trades.PUT("/:id/reject", tradeHandler.RejectTrade)
			trades.POST("/:id/respond", tradeHandler.RespondToTrade)

			trades.POST("/:id/message", middleware.UploadRateLimit(), tradeHandler.PostMessage)

			trades.PUT("/:id/end-auction", tradeHandler.EndAuction)
			trades.POST("/:id/rate", tradeHandler.RateTrade)
			trades.POST("/:id/dispute", tradeHandler.RaiseDispute)
		}
	}

	return r, auctionService
}
