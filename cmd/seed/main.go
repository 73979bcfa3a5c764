package main

import (
	"log"
	"os"

	"mediator/config"
	"mediator/internal/db"
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

	if err := db.SeedCurrencies(gormDB); err != nil {
		log.Fatalf("seed currencies failed: %v", err)
	}
	log.Println("currencies seeded")

	username := os.Getenv("OPERATOR_USERNAME")
	if username == "" {
		return
	}
	var pubkey *string
	if pk := os.Getenv("OPERATOR_PUBKEY"); pk != "" {
		pubkey = &pk
	}
	if err := db.SeedOperator(gormDB, username, os.Getenv("OPERATOR_PASSWORD"), pubkey); err != nil {
		log.Fatalf("seed operator failed: %v", err)
	}
	log.Printf("operator %s seeded", username)
}
