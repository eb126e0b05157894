package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	digestDelivery "maildigest/internal/digest/delivery"
	indexDelivery "maildigest/internal/index/delivery"
	messageDelivery "maildigest/internal/message/delivery"
)

func SetupRoutes(r *gin.Engine, messageHandler *messageDelivery.MessageHandler, searchHandler *indexDelivery.SearchHandler, digestHandler *digestDelivery.DigestHandler) {
	api := r.Group("/api")
	{
		// Health check
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Message routes (read-only)
		messages := api.Group("/messages")
		{
			messages.GET("", messageHandler.List)
			messages.GET("/:seq", messageHandler.GetBySeq)
		}

		// Sync status
		api.GET("/sync/status", messageHandler.SyncStatus)

		// Hybrid search
		api.GET("/search", searchHandler.Search)

		// Digest history per subscriber
		api.GET("/digests/:subscriber", digestHandler.ListForSubscriber)
	}
}
