package delivery

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"maildigest/internal/digest/repository"
	"maildigest/internal/digest/usecase"
)

type DigestHandler struct {
	registry  repository.SubscriberRegistry
	digests   repository.PendingDigestRepository
	scheduler *usecase.Scheduler
}

func NewDigestHandler(registry repository.SubscriberRegistry, digests repository.PendingDigestRepository, scheduler *usecase.Scheduler) *DigestHandler {
	return &DigestHandler{
		registry:  registry,
		digests:   digests,
		scheduler: scheduler,
	}
}

func (h *DigestHandler) ListForSubscriber(c *gin.Context) {
	subscriberID := c.Param("subscriber")

	sub, err := h.registry.GetByID(subscriberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscriber not found"})
		return
	}

	limit := 10
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	digests, err := h.digests.ListBySubscriber(subscriberID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriber": gin.H{
			"id":        sub.ID,
			"email":     sub.Email,
			"name":      sub.Name,
			"watermark": sub.Watermark,
			"state":     h.scheduler.SubscriberState(sub.ID),
		},
		"digests": digests,
	})
}
