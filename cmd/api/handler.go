package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	digestDelivery "maildigest/internal/digest/delivery"
	digestRepo "maildigest/internal/digest/repository"
	digestUsecase "maildigest/internal/digest/usecase"
	indexDelivery "maildigest/internal/index/delivery"
	indexUsecase "maildigest/internal/index/usecase"
	messageDelivery "maildigest/internal/message/delivery"
	messageRepo "maildigest/internal/message/repository"
)

type Handler struct {
	messageHandler *messageDelivery.MessageHandler
	searchHandler  *indexDelivery.SearchHandler
	digestHandler  *digestDelivery.DigestHandler

	server *http.Server
}

func NewHandler(
	messages messageRepo.MessageStore,
	indexEngine *indexUsecase.Engine,
	registry digestRepo.SubscriberRegistry,
	digests digestRepo.PendingDigestRepository,
	scheduler *digestUsecase.Scheduler,
) *Handler {
	return &Handler{
		messageHandler: messageDelivery.NewMessageHandler(messages),
		searchHandler:  indexDelivery.NewSearchHandler(indexEngine, messages),
		digestHandler:  digestDelivery.NewDigestHandler(registry, digests, scheduler),
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.messageHandler, h.searchHandler, h.digestHandler)

	h.server = &http.Server{Addr: addr, Handler: r}
	if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (h *Handler) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}
