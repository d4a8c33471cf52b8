package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-widget-chat/internal/services"
)

// RatingRequest is the JSON payload for rating a conversation.
type RatingRequest struct {
	SessionID string `json:"sessionId" example:"3f0c2a9e-visitor"`
	// Rating is 1..5.
	Rating   int     `json:"rating" example:"5"`
	Feedback *string `json:"feedback,omitempty" example:"¡Muy útil!"`
}

// RatingResponse echoes the stored rating.
type RatingResponse struct {
	ID             uint      `json:"id"`
	ConversationID uint      `json:"conversationId"`
	Rating         int       `json:"rating"`
	Feedback       *string   `json:"feedback"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PostRating godoc
// @ID          postRating
// @Summary     Rate a conversation
// @Description Stores the visitor's 1..5 rating with optional feedback. One rating per conversation.
// @Tags        Widget
// @Accept      json
// @Produce     json
//
// @Param       chatbotId  path  string  true  "Chatbot ID"  format(uuid)
// @Param       body       body  handlers.RatingRequest  true  "Rating payload"
//
// @Success     201  {object}  handlers.RatingResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Chatbot inactive"
// @Failure     404  {object}  handlers.ErrorResponse  "Chatbot or conversation not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already rated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /widget/{chatbotId}/rating [post]
func (h *Handlers) PostRating(c *gin.Context) {
	var body RatingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	var feedback string
	if body.Feedback != nil {
		feedback = *body.Feedback
	}

	r, err := h.ratingSvc.Rate(c.Request.Context(), services.RatingRequest{
		ChatbotID: c.Param("chatbotId"),
		SessionID: body.SessionID,
		Rating:    body.Rating,
		Feedback:  feedback,
	})
	if err != nil {
		failService(c, err)
		return
	}

	ok(c, http.StatusCreated, RatingResponse{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Rating:         r.Rating,
		Feedback:       r.Feedback,
		CreatedAt:      r.CreatedAt,
	})
}
