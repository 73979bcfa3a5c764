// @title Mediator API
// @version 1.0
// @description Медиатор P2P-сделок bitcoin за фиат с эскроу на hold-инвойсах
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"mediator/config"
	"mediator/internal/app"
	"mediator/internal/db"
	"mediator/internal/handlers"
	"mediator/internal/invoicewatcher"
	"mediator/internal/lightning"
	"mediator/internal/logging"
	"mediator/internal/protocol"
	"mediator/internal/services"
	"mediator/internal/services/storage"

	docs "mediator/docs"
)

func main() {
	// 1. Загружаем конфиг из .env / окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Prod: cfg.IsProd()})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Открываем GORM-подключение
	gormDB, err := db.NewDB(cfg.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	keys, err := mediatorKeys(cfg)
	if err != nil {
		log.Fatalf("mediator key: %v", err)
	}
	logger.Info("mediator key loaded", zap.String("pubkey", keys.PublicKey()))

	rdb, err := openRedis(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("redis connect failed: %v", err)
	}
	defer rdb.Close()

	store, err := storage.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}

	ln, err := lightning.New(cfg.LightningBackend)
	if err != nil {
		log.Fatalf("lightning init failed: %v", err)
	}

	// 3. Медиатор и фоновые задачи
	msgLog := services.NewMessageLog(rdb, 500)
	settings := cfg.Settings
	med := app.New(app.Deps{
		DB:          gormDB,
		Lightning:   ln,
		Keys:        keys,
		Settings:    settings,
		AdminPubkey: cfg.AdminPubkey,
		Messenger:   app.NewOutbox(gormDB, keys, msgLog),
		Guard:       services.NewReplayGuard(rdb, 2*settings.Mediator.MaxMessageAge),
		MessageLog:  msgLog,
		Storage:     store,
		Logger:      logger,
	})
	go med.Run(ctx)

	watcher := invoicewatcher.New(gormDB, ln, med, logger, settings.Lightning.InvoicePollInterval)
	watcher.Start(ctx)
	defer watcher.Stop()

	scheduler := app.NewScheduler(med, settings.Scheduler.Interval)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	docs.SwaggerInfo.BasePath = "/"

	// 4. Создаём Gin-роутер
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:   []string{"Content-Length"},
	}))
	r.GET("/health", handlers.Health(gormDB))
	r.GET("/metrics", handlers.Metrics())
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/orders", handlers.ListOrders(gormDB))
	r.GET("/orders/:id", handlers.GetOrder(gormDB))
	r.GET("/currencies", handlers.GetCurrencies(gormDB))
	r.POST("/messages", handlers.SubmitMessage(med))
	r.GET("/ws/messages", handlers.MessagesWS(med, logger, settings.Mediator.MaxMessageAge))

	auth := r.Group("/auth")
	auth.POST("/login", handlers.Login(gormDB, cfg.TokenTypeTTL))
	auth.POST("/refresh", handlers.Refresh(gormDB, cfg.TokenTypeTTL))
	auth.Use(handlers.AuthMiddleware(gormDB))
	auth.GET("/profile", handlers.Profile(gormDB))
	auth.POST("/2fa/enable", handlers.Enable2FA(gormDB))
	auth.POST("/logout", handlers.Logout(gormDB))

	admin := r.Group("/admin")
	admin.Use(handlers.AuthMiddleware(gormDB))
	admin.GET("/disputes", handlers.ListDisputes(gormDB))
	admin.GET("/disputes/:id", handlers.GetDispute(gormDB))
	admin.GET("/disputes/:id/transcript", handlers.GetDisputeTranscript(gormDB, store))
	admin.GET("/users", handlers.ListUsers(gormDB))
	admin.POST("/users/:pubkey/ban", handlers.SetUserBan(gormDB))

	if mem, ok := ln.(*lightning.Memory); ok && !cfg.IsProd() {
		r.POST("/debug/invoices/:hash/accept", handlers.DebugAcceptInvoice(mem))
	}

	// 5. Запускаем сервер
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

// mediatorKeys ключ медиатора из hex или мнемоники. Без них ключ
// генерируется заново, что допустимо только в dev.
func mediatorKeys(cfg *config.Config) (*protocol.Keys, error) {
	switch {
	case cfg.MediatorPrivkey != "":
		return protocol.KeysFromHex(cfg.MediatorPrivkey)
	case cfg.MediatorMnemonic != "":
		return protocol.KeysFromMnemonic(cfg.MediatorMnemonic, "")
	case cfg.IsProd():
		return nil, errors.New("MEDIATOR_PRIVKEY or MEDIATOR_MNEMONIC must be set")
	}
	return protocol.GenerateKeys()
}

// openRedis подключается к REDIS_ADDR; без адреса в dev поднимает встроенный miniredis.
func openRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		if cfg.IsProd() {
			return nil, errors.New("REDIS_ADDR must be set")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, err
		}
		addr = mr.Addr()
		logger.Warn("REDIS_ADDR not set, using embedded redis", zap.String("addr", addr))
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}
