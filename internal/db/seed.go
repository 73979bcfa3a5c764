package db

import (
	"fmt"

	"github.com/biter777/countries"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"mediator/internal/models"
)

// SeedCurrencies заполняет таблицу валют перечнем ISO 4217.
func SeedCurrencies(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Currency{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seen := make(map[string]bool)
	var list []models.Currency
	for _, code := range countries.AllCurrencies() {
		alpha := code.Alpha()
		if !code.IsValid() || alpha == "" || seen[alpha] {
			continue
		}
		seen[alpha] = true
		list = append(list, models.Currency{
			Code:    alpha,
			Name:    code.String(),
			Numeric: int(code),
			Enabled: true,
		})
	}
	return db.CreateInBatches(&list, 100).Error
}

// SeedOperator создаёт оператора панели споров, если его ещё нет.
func SeedOperator(db *gorm.DB, username, password string, pubkey *string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password required")
	}
	var count int64
	if err := db.Model(&models.Operator{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	op := models.Operator{Username: username, Password: string(hash), Pubkey: pubkey}
	return db.Create(&op).Error
}
