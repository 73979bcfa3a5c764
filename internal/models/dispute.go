package models

import (
	"time"

	"gorm.io/gorm"

	"mediator/internal/protocol"
	"mediator/internal/utils"
)

type DisputeStatus string

const (
	DisputeStatusInitiated      DisputeStatus = "initiated"
	DisputeStatusInProgress     DisputeStatus = "in-progress"
	DisputeStatusSellerRefunded DisputeStatus = "seller-refunded"
	DisputeStatusSettled        DisputeStatus = "settled"
)

// Dispute спор по ордеру
// swagger:model
type Dispute struct {
	ID                  string          `gorm:"primaryKey;size:21" json:"id"`
	OrderID             string          `gorm:"size:21;not null;uniqueIndex" json:"orderID"`
	Order               Order           `gorm:"foreignKey:OrderID" json:"-"`
	Status              DisputeStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	OrderPreviousStatus protocol.Status `gorm:"type:varchar(32);not null" json:"orderPreviousStatus"`
	InitiatorPubkey     string          `gorm:"type:varchar(64);not null" json:"initiatorPubkey"`
	SolverPubkey        *string         `gorm:"type:varchar(64);index" json:"solverPubkey,omitempty"`
	TranscriptObject    *string         `gorm:"type:varchar(255)" json:"-"`
	TakenAt             *time.Time      `json:"takenAt,omitempty"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (d *Dispute) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == "" {
		d.ID, err = utils.GenerateNanoID()
	}
	return
}
