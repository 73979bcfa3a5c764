package main

import (
	"log"

	"mediator/config"
	"mediator/internal/db"
	"mediator/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	gormDB, err := db.NewDB(cfg.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	migrator := gormDB.Migrator()
	// доставка недошедших уведомлений идёт по pubkey и sent_at
	if !migrator.HasIndex(&models.Notification{}, "idx_notifications_pubkey_sent_at") {
		if err := gormDB.Exec("CREATE INDEX idx_notifications_pubkey_sent_at ON notifications (pubkey, sent_at)").Error; err != nil {
			log.Fatalf("create index failed: %v", err)
		}
	}
	if !migrator.HasIndex(&models.Order{}, "idx_orders_status_expires_at") {
		if err := gormDB.Exec("CREATE INDEX idx_orders_status_expires_at ON orders (status, expires_at)").Error; err != nil {
			log.Fatalf("create index failed: %v", err)
		}
	}

	log.Println("migration completed")
}
