package delivery

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"maildigest/internal/message/repository"
)

type MessageHandler struct {
	store repository.MessageStore
}

func NewMessageHandler(store repository.MessageStore) *MessageHandler {
	return &MessageHandler{store: store}
}

func (h *MessageHandler) List(c *gin.Context) {
	after := int64(0)
	limit := 20

	if afterStr := c.Query("after"); afterStr != "" {
		if parsed, err := strconv.ParseInt(afterStr, 10, 64); err == nil && parsed >= 0 {
			after = parsed
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := h.store.GetSince(after, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"after":    after,
		"limit":    limit,
	})
}

func (h *MessageHandler) GetBySeq(c *gin.Context) {
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence number"})
		return
	}

	msg, err := h.store.GetBySeq(seq)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) SyncStatus(c *gin.Context) {
	cursor, err := h.store.LoadCursor()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	maxSeq, err := h.store.MaxSeq()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cursor":     cursor.Token,
		"up_to_seq":  cursor.UpToSeq,
		"max_seq":    maxSeq,
		"updated_at": cursor.UpdatedAt,
	})
}
