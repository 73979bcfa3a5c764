package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mediator/internal/models"
	"mediator/internal/protocol"
)

// ListOrders godoc
// @Summary Книга ордеров
// @Description Опубликованные ордера в статусе pending, новые первыми
// @Tags orders
// @Produce json
// @Param kind query string false "buy или sell"
// @Param fiat_code query string false "код валюты"
// @Param limit query int false "максимум записей"
// @Param offset query int false "смещение"
// @Success 200 {array} models.Order
// @Failure 400 {object} ErrorResponse
// @Router /orders [get]
func ListOrders(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := parsePagination(c)
		q := db.Where("status = ?", protocol.StatusPending)
		if kind := c.Query("kind"); kind != "" {
			k := protocol.OrderKind(strings.ToLower(kind))
			if !k.IsValid() {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid kind"})
				return
			}
			q = q.Where("kind = ?", k)
		}
		if code := c.Query("fiat_code"); code != "" {
			q = q.Where("fiat_code = ?", strings.ToUpper(code))
		}
		var orders []models.Order
		if err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&orders).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

// GetOrder godoc
// @Summary Ордер по идентификатору
// @Tags orders
// @Produce json
// @Param id path string true "id ордера"
// @Success 200 {object} models.Order
// @Failure 404 {object} ErrorResponse
// @Router /orders/{id} [get]
func GetOrder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ord models.Order
		if err := db.Where("id = ?", c.Param("id")).First(&ord).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, ord)
	}
}
