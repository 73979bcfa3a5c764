package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"mediator/internal/models"
	"mediator/internal/utils"
)

// Общие структуры запросов и ответов для Swagger и тестов

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type Enable2FARequest struct {
	Password string `json:"password"`
}

type Enable2FAResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

type ProfileResponse struct {
	Username     string  `json:"username"`
	Pubkey       *string `json:"pubkey,omitempty"`
	TwoFAEnabled bool    `json:"twofa_enabled"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func issueTokens(db *gorm.DB, operatorID string, ttl map[string]time.Duration) (TokenResponse, error) {
	accessStr, err := utils.GenerateToken()
	if err != nil {
		return TokenResponse{}, err
	}
	refreshStr, err := utils.GenerateToken()
	if err != nil {
		return TokenResponse{}, err
	}
	now := time.Now()
	tokens := []models.Token{
		{OperatorID: operatorID, Token: accessStr, Type: "access", ExpiresAt: now.Add(ttl["access"])},
		{OperatorID: operatorID, Token: refreshStr, Type: "refresh", ExpiresAt: now.Add(ttl["refresh"])},
	}
	if err := db.Create(&tokens).Error; err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{AccessToken: accessStr, RefreshToken: refreshStr}, nil
}

// Login godoc
// @Summary Вход оператора
// @Description Аутентифицирует оператора панели споров и выдаёт пару токенов. При включённой 2FA требуется код.
// @Tags auth
// @Accept json
// @Produce json
// @Param input body LoginRequest true "учётные данные"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func Login(db *gorm.DB, ttl map[string]time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var r LoginRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		var op models.Operator
		if err := db.Where("username = ?", r.Username).First(&op).Error; err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(op.Password), []byte(r.Password)) != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		if op.TwoFAEnabled {
			if r.Code == "" || op.TOTPSecret == nil || !totp.Validate(r.Code, *op.TOTPSecret) {
				c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid code"})
				return
			}
		}
		resp, err := issueTokens(db, op.ID, ttl)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Refresh godoc
// @Summary Обновление access токена
// @Tags auth
// @Accept json
// @Produce json
// @Param input body RefreshRequest true "refresh токен"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/refresh [post]
func Refresh(db *gorm.DB, ttl map[string]time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var r RefreshRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		var token models.Token
		if err := db.Where("token = ? AND type = ?", r.RefreshToken, "refresh").First(&token).Error; err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}
		if token.ExpiresAt.Before(time.Now()) {
			db.Delete(&token)
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "token expired"})
			return
		}
		db.Delete(&token)
		resp, err := issueTokens(db, token.OperatorID, ttl)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Logout godoc
// @Summary Выход оператора
// @Description Удаляет все токены оператора
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} StatusResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout [post]
func Logout(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID := c.GetString("operator_id")
		if operatorID == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no operator"})
			return
		}
		if err := db.Where("operator_id = ?", operatorID).Delete(&models.Token{}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
	}
}

// Profile godoc
// @Summary Профиль оператора
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} ProfileResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/profile [get]
func Profile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		op, ok := currentOperator(c, db)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, ProfileResponse{
			Username:     op.Username,
			Pubkey:       op.Pubkey,
			TwoFAEnabled: op.TwoFAEnabled,
		})
	}
}

// Enable2FA godoc
// @Summary Включение двухфакторной аутентификации
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body Enable2FARequest true "подтверждение пароля"
// @Success 200 {object} Enable2FAResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/2fa/enable [post]
func Enable2FA(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var r Enable2FARequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		op, ok := currentOperator(c, db)
		if !ok {
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(op.Password), []byte(r.Password)) != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid password"})
			return
		}
		if op.TwoFAEnabled {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "2fa already enabled"})
			return
		}
		key, err := totp.Generate(totp.GenerateOpts{Issuer: "mediator", AccountName: op.Username})
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "totp error"})
			return
		}
		secret := key.Secret()
		op.TwoFAEnabled = true
		op.TOTPSecret = &secret
		if err := db.Save(op).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, Enable2FAResponse{Secret: secret, URL: key.URL()})
	}
}

// currentOperator загружает оператора, установленного AuthMiddleware.
// При ошибке ответ уже записан.
func currentOperator(c *gin.Context, db *gorm.DB) (*models.Operator, bool) {
	operatorID := c.GetString("operator_id")
	if operatorID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no operator"})
		return nil, false
	}
	var op models.Operator
	if err := db.Where("id = ?", operatorID).First(&op).Error; err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid operator"})
		return nil, false
	}
	return &op, true
}

func AuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization"})
			return
		}
		var token models.Token
		if err := db.Where("token = ? AND type = ?", parts[1], "access").First(&token).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}
		if token.ExpiresAt.Before(time.Now()) {
			db.Delete(&token)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "token expired"})
			return
		}
		c.Set("operator_id", token.OperatorID)
		c.Next()
	}
}
