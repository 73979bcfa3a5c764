package models

import (
	"time"

	"gorm.io/gorm"

	"mediator/internal/utils"
)

// Operator учётная запись оператора панели споров
type Operator struct {
	ID           string    `gorm:"primaryKey;size:21"`
	Username     string    `gorm:"type:varchar(255);not null;unique"`
	Password     string    `gorm:"type:varchar(255);not null"`
	Pubkey       *string   `gorm:"type:varchar(64)"`
	TwoFAEnabled bool      `gorm:"not null;default:false"`
	TOTPSecret   *string   `gorm:"type:varchar(255)"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (o *Operator) BeforeCreate(tx *gorm.DB) (err error) {
	if o.ID == "" {
		o.ID, err = utils.GenerateNanoID()
	}
	return
}
