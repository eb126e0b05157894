package delivery

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"maildigest/internal/index/usecase"
	messagerepo "maildigest/internal/message/repository"
)

type SearchHandler struct {
	engine   *usecase.Engine
	messages messagerepo.MessageStore
}

func NewSearchHandler(engine *usecase.Engine, messages messagerepo.MessageStore) *SearchHandler {
	return &SearchHandler{engine: engine, messages: messages}
}

type searchHit struct {
	Seq          int64     `json:"seq"`
	From         string    `json:"from"`
	Subject      string    `json:"subject"`
	ReceivedAt   time.Time `json:"received_at"`
	Score        float64   `json:"score"`
	LexicalScore float64   `json:"lexical_score"`
	VectorScore  float64   `json:"vector_score"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	k := 10
	if kStr := c.Query("k"); kStr != "" {
		if parsed, err := strconv.Atoi(kStr); err == nil && parsed > 0 {
			k = parsed
		}
	}

	results, err := h.engine.Search(c.Request.Context(), query, k)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hit := searchHit{
			Seq:          r.MessageSeq,
			Score:        r.Score,
			LexicalScore: r.LexicalScore,
			VectorScore:  r.VectorScore,
		}
		if msg, err := h.messages.GetBySeq(r.MessageSeq); err == nil && msg != nil {
			hit.From = msg.From
			hit.Subject = msg.Subject
			hit.ReceivedAt = msg.ReceivedAt
		}
		hits = append(hits, hit)
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"results": hits,
	})
}
