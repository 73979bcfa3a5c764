package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mediator/internal/app"
	"mediator/internal/protocol"
)

// Submitter принимает конверты в очередь медиатора.
type Submitter interface {
	Submit(env *protocol.Envelope) error
}

// SubmitMessage godoc
// @Summary Отправить сообщение медиатору
// @Description Принимает подписанный конверт и ставит его в очередь. Ответ медиатора приходит через /ws/messages.
// @Tags messages
// @Accept json
// @Produce json
// @Param input body protocol.Envelope true "подписанный конверт"
// @Success 202 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /messages [post]
func SubmitMessage(sub Submitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var env protocol.Envelope
		if err := c.ShouldBindJSON(&env); err != nil || env.ID == "" || env.Content == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid envelope"})
			return
		}
		if err := env.Verify(); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		if err := sub.Submit(&env); err != nil {
			if errors.Is(err, app.ErrInboxFull) {
				c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "inbox full"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "submit error"})
			return
		}
		c.JSON(http.StatusAccepted, StatusResponse{Status: "accepted"})
	}
}
