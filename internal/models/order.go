package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mediator/internal/protocol"
	"mediator/internal/utils"
)

type Order struct {
	ID                    string             `gorm:"primaryKey;size:21" json:"id"`
	Kind                  protocol.OrderKind `gorm:"type:varchar(8);not null" json:"kind"`
	Status                protocol.Status    `gorm:"type:varchar(32);not null;index" json:"status"`
	Amount                int64              `gorm:"not null" json:"amount"`
	FiatCode              string             `gorm:"type:varchar(8);not null;index" json:"fiatCode"`
	FiatAmount            decimal.Decimal    `gorm:"type:decimal(32,8);not null" json:"fiatAmount"`
	PaymentMethod         string             `gorm:"type:varchar(255);not null" json:"paymentMethod"`
	Premium               int64              `gorm:"not null;default:0" json:"premium"`
	Market                bool               `gorm:"not null;default:false" json:"market"`
	Fee                   int64              `gorm:"not null;default:0" json:"fee"`
	CreatorPubkey         string             `gorm:"type:varchar(64);not null;index" json:"creatorPubkey"`
	BuyerPubkey           *string            `gorm:"type:varchar(64)" json:"buyerPubkey,omitempty"`
	SellerPubkey          *string            `gorm:"type:varchar(64)" json:"sellerPubkey,omitempty"`
	BuyerInvoice          *string            `gorm:"type:text" json:"-"`
	Hash                  *string            `gorm:"type:varchar(64);index" json:"-"`
	Preimage              *string            `gorm:"type:varchar(64)" json:"-"`
	HoldInvoiceAccepted   bool               `gorm:"not null;default:false" json:"-"`
	CancelInitiatorPubkey *string            `gorm:"type:varchar(64)" json:"-"`
	BuyerDispute          bool               `gorm:"not null;default:false" json:"-"`
	SellerDispute         bool               `gorm:"not null;default:false" json:"-"`
	BuyerSentRate         bool               `gorm:"not null;default:false" json:"-"`
	SellerSentRate        bool               `gorm:"not null;default:false" json:"-"`
	FailedPayment         bool               `gorm:"not null;default:false" json:"-"`
	PaymentAttempts       int                `gorm:"not null;default:0" json:"-"`
	LastPaymentAttemptAt  *time.Time         `json:"-"`
	TakenAt               *time.Time         `json:"takenAt,omitempty"`
	ExpiresAt             time.Time          `gorm:"not null;index" json:"expiresAt"`
	CreatedAt             time.Time          `json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) (err error) {
	if o.ID == "" {
		o.ID, err = utils.GenerateNanoID()
	}
	return
}

// IsBuyer сообщает, является ли pubkey покупателем.
func (o *Order) IsBuyer(pubkey string) bool {
	return o.BuyerPubkey != nil && *o.BuyerPubkey == pubkey
}

// IsSeller сообщает, является ли pubkey продавцом.
func (o *Order) IsSeller(pubkey string) bool {
	return o.SellerPubkey != nil && *o.SellerPubkey == pubkey
}

// Counterpart возвращает второго участника сделки.
func (o *Order) Counterpart(pubkey string) string {
	switch {
	case o.IsBuyer(pubkey) && o.SellerPubkey != nil:
		return *o.SellerPubkey
	case o.IsSeller(pubkey) && o.BuyerPubkey != nil:
		return *o.BuyerPubkey
	}
	return ""
}

// TakerPubkey участник, взявший ордер.
func (o *Order) TakerPubkey() string {
	if o.Kind == protocol.OrderKindSell && o.BuyerPubkey != nil {
		return *o.BuyerPubkey
	}
	if o.Kind == protocol.OrderKindBuy && o.SellerPubkey != nil {
		return *o.SellerPubkey
	}
	return ""
}

// HoldAmount сумма hold-инвойса продавца.
func (o *Order) HoldAmount() int64 { return o.Amount + o.Fee }

// PayoutAmount сумма выплаты покупателю.
func (o *Order) PayoutAmount() int64 { return o.Amount - o.Fee }

// Small представление ордера для полезной нагрузки сообщения.
func (o *Order) Small() *protocol.SmallOrder {
	id := o.ID
	created := o.CreatedAt
	expires := o.ExpiresAt
	return &protocol.SmallOrder{
		ID:            &id,
		Kind:          o.Kind,
		Status:        o.Status,
		Amount:        o.Amount,
		FiatCode:      o.FiatCode,
		FiatAmount:    o.FiatAmount,
		PaymentMethod: o.PaymentMethod,
		Premium:       o.Premium,
		BuyerPubkey:   o.BuyerPubkey,
		SellerPubkey:  o.SellerPubkey,
		CreatedAt:     &created,
		ExpiresAt:     &expires,
	}
}
