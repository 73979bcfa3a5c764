package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mediator/internal/models"
	"mediator/internal/services/storage"
)

// DisputeResponse спор вместе с ордером
type DisputeResponse struct {
	models.Dispute
	Order models.Order `json:"order"`
}

type TranscriptURLResponse struct {
	URL string `json:"url"`
}

// ListDisputes godoc
// @Summary Список споров
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param status query string false "статус спора"
// @Param limit query int false "максимум записей"
// @Param offset query int false "смещение"
// @Success 200 {array} models.Dispute
// @Failure 401 {object} ErrorResponse
// @Router /admin/disputes [get]
func ListDisputes(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := parsePagination(c)
		q := db.Model(&models.Dispute{})
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		var list []models.Dispute
		if err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func loadDispute(c *gin.Context, db *gorm.DB) (*models.Dispute, bool) {
	var d models.Dispute
	if err := db.Preload("Order").Where("id = ?", c.Param("id")).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "dispute not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
		return nil, false
	}
	return &d, true
}

// GetDispute godoc
// @Summary Спор по идентификатору
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "id спора"
// @Success 200 {object} DisputeResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/disputes/{id} [get]
func GetDispute(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, ok := loadDispute(c, db)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, DisputeResponse{Dispute: *d, Order: d.Order})
	}
}

// GetDisputeTranscript godoc
// @Summary Архив переписки по спору
// @Description Возвращает JSON архива. С параметром presign=true отдаёт временную ссылку на объект.
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "id спора"
// @Param presign query bool false "вернуть ссылку"
// @Success 200 {object} TranscriptURLResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/disputes/{id}/transcript [get]
func GetDisputeTranscript(db *gorm.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, ok := loadDispute(c, db)
		if !ok {
			return
		}
		if d.TranscriptObject == nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "transcript not archived"})
			return
		}
		if c.Query("presign") == "true" {
			url, err := store.GetURL(c.Request.Context(), *d.TranscriptObject, 15*time.Minute)
			if err != nil {
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage error"})
				return
			}
			c.JSON(http.StatusOK, TranscriptURLResponse{URL: url})
			return
		}
		data, err := store.Download(c.Request.Context(), *d.TranscriptObject)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "transcript not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage error"})
			return
		}
		c.Data(http.StatusOK, "application/json", data)
	}
}

// ListUsers godoc
// @Summary Участники протокола
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param solver query bool false "только арбитры"
// @Param banned query bool false "только заблокированные"
// @Param limit query int false "максимум записей"
// @Param offset query int false "смещение"
// @Success 200 {array} models.User
// @Failure 401 {object} ErrorResponse
// @Router /admin/users [get]
func ListUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := parsePagination(c)
		q := db.Model(&models.User{})
		if c.Query("solver") == "true" {
			q = q.Where("is_solver = ?", true)
		}
		if c.Query("banned") == "true" {
			q = q.Where("is_banned = ?", true)
		}
		var users []models.User
		if err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

type BanRequest struct {
	Banned bool `json:"banned"`
}

// SetUserBan godoc
// @Summary Блокировка участника
// @Description Заблокированный участник получает отказ invalid-pubkey на любое сообщение
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param pubkey path string true "публичный ключ"
// @Param input body BanRequest true "флаг блокировки"
// @Success 200 {object} models.User
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/users/{pubkey}/ban [post]
func SetUserBan(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var r BanRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		res := db.Model(&models.User{}).Where("pubkey = ?", c.Param("pubkey")).Update("is_banned", r.Banned)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		var u models.User
		db.Where("pubkey = ?", c.Param("pubkey")).First(&u)
		c.JSON(http.StatusOK, u)
	}
}
