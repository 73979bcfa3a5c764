package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mediator/internal/models"
)

// GetCurrencies godoc
// @Summary Список фиатных валют
// @Tags reference
// @Produce json
// @Success 200 {array} models.Currency
// @Router /currencies [get]
func GetCurrencies(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []models.Currency
		if err := db.Where("enabled = ?", true).Order("code").Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}
