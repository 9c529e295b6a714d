package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/bdlaw/internal/rag/feedback"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
	"github.com/kart-io/bdlaw/pkg/utils/response"
)

// Feedback records a rating of an earlier answer.
func (h *RAGHandler) Feedback(c *gin.Context) {
	lang := requestLang(c)

	var fb feedback.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		response.FailWithLang(c, bindError(err, lang), lang)
		return
	}

	ok, err := h.feedback.RecordFeedback(c.Request.Context(), &fb)
	if err != nil {
		response.FailWithLang(c, err, lang)
		return
	}
	if !ok {
		response.FailWithLang(c, errors.ErrFeedbackStore, lang)
		return
	}

	h.metrics.RecordFeedback(fb.Rating)
	response.OK(c, gin.H{"recorded": true})
}
