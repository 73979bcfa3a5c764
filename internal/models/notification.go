package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"mediator/internal/protocol"
	"mediator/internal/utils"
)

// Notification исходящее сообщение медиатора участнику
// swagger:model
type Notification struct {
	ID        string          `gorm:"primaryKey;size:21" json:"id"`
	Pubkey    string          `gorm:"type:varchar(64);not null;index" json:"pubkey"`
	Action    protocol.Action `gorm:"type:varchar(40);not null" json:"action" swaggertype:"string"`
	OrderID   *string         `gorm:"size:21;index" json:"orderID,omitempty"`
	Envelope  datatypes.JSON  `gorm:"type:json" json:"envelope" swaggertype:"object"`
	SentAt    *time.Time      `gorm:"index" json:"sentAt"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"createdAt"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID, err = utils.GenerateNanoID()
	}
	return
}
