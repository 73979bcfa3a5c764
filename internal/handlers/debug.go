package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mediator/internal/lightning"
)

// HoldInvoiceAcceptor имитирует оплату hold-инвойса продавцом.
type HoldInvoiceAcceptor interface {
	Accept(hash string) error
}

// DebugAcceptInvoice godoc
// @Summary      Тестовая оплата hold-инвойса
// @Description  Переводит hold-инвойс во встроенном Lightning-бэкенде в состояние accepted
// @Tags         debug
// @Produce      json
// @Param        hash path string true "хеш платежа"
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /debug/invoices/{hash}/accept [post]
func DebugAcceptInvoice(acceptor HoldInvoiceAcceptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := acceptor.Accept(c.Param("hash"))
		switch {
		case err == nil:
			c.Status(http.StatusNoContent)
		case errors.Is(err, lightning.ErrInvoiceNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "invoice not found"})
		case errors.Is(err, lightning.ErrInvalidState):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid invoice state"})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
	}
}
