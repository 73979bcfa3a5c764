package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mediator/internal/db"
	"mediator/internal/services/storage"
)

// setupTest создаёт in-memory БД и маршруты для тестов.
func setupTest(t *testing.T) (*gorm.DB, *gin.Engine, *storage.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.NewDB("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	store := storage.NewMemory()
	ttl := map[string]time.Duration{"access": time.Minute, "refresh": time.Hour}

	r := gin.New()
	auth := r.Group("/auth")
	auth.POST("/login", Login(gdb, ttl))
	auth.POST("/refresh", Refresh(gdb, ttl))
	auth.Use(AuthMiddleware(gdb))
	auth.GET("/profile", Profile(gdb))
	auth.POST("/2fa/enable", Enable2FA(gdb))
	auth.POST("/logout", Logout(gdb))

	r.GET("/orders", ListOrders(gdb))
	r.GET("/orders/:id", GetOrder(gdb))
	r.GET("/currencies", GetCurrencies(gdb))

	admin := r.Group("/admin")
	admin.Use(AuthMiddleware(gdb))
	admin.GET("/disputes", ListDisputes(gdb))
	admin.GET("/disputes/:id", GetDispute(gdb))
	admin.GET("/disputes/:id/transcript", GetDisputeTranscript(gdb, store))
	admin.GET("/users", ListUsers(gdb))
	admin.POST("/users/:pubkey/ban", SetUserBan(gdb))

	return gdb, r, store
}

func doRequest(r http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// loginOperator создаёт оператора и возвращает его access токен.
func loginOperator(t *testing.T, gdb *gorm.DB, r http.Handler) TokenResponse {
	t.Helper()
	if err := db.SeedOperator(gdb, "op", "secret", nil); err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	w := doRequest(r, "POST", "/auth/login", `{"username":"op","password":"secret"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d", w.Code)
	}
	var tok TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tok); err != nil {
		t.Fatalf("login parse: %v", err)
	}
	return tok
}
