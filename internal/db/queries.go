package db

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mediator/internal/models"
)

// FindOrCreateUser возвращает пользователя по pubkey, создавая его при отсутствии.
func FindOrCreateUser(db *gorm.DB, pubkey string) (*models.User, error) {
	u := models.User{Pubkey: pubkey}
	if err := db.Where(models.User{Pubkey: pubkey}).FirstOrCreate(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUser возвращает пользователя или nil, если его нет.
func FindUser(db *gorm.DB, pubkey string) (*models.User, error) {
	var u models.User
	err := db.Where("pubkey = ?", pubkey).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertSolver помечает pubkey как арбитра.
func UpsertSolver(db *gorm.DB, pubkey string) error {
	u := models.User{Pubkey: pubkey, IsSolver: true}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pubkey"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"is_solver": true}),
	}).Create(&u).Error
}

// FindDisputeByOrderID спор по ордеру или gorm.ErrRecordNotFound.
func FindDisputeByOrderID(db *gorm.DB, orderID string) (*models.Dispute, error) {
	var d models.Dispute
	if err := db.Where("order_id = ?", orderID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// IsAssignedSolver сообщает, назначен ли pubkey арбитром спора по ордеру.
func IsAssignedSolver(db *gorm.DB, pubkey, orderID string) (bool, error) {
	var count int64
	err := db.Model(&models.Dispute{}).
		Where("order_id = ? AND solver_pubkey = ?", orderID, pubkey).
		Count(&count).Error
	return count > 0, err
}
